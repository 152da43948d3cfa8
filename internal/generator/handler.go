package generator

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	sharedMessaging "mission-server/shared/messaging"
)

// TaskHandler обрабатывает задачи генерации подсказок
type TaskHandler struct {
	cfg      *Config
	aiClient AIClient
	notifier Notifier
}

// NewTaskHandler создает новый экземпляр обработчика задач
func NewTaskHandler(cfg *Config, aiClient AIClient, notifier Notifier) *TaskHandler {
	return &TaskHandler{
		cfg:      cfg,
		aiClient: aiClient,
		notifier: notifier,
	}
}

// Handle обрабатывает одну задачу генерации. Колбэк отправляется РОВНО один
// раз на задачу: success с результатом либо error с деталями, независимо от
// того, на каком этапе обработка провалилась.
func (h *TaskHandler) Handle(payload sharedMessaging.SuggestionTaskPayload) (err error) {
	MetricsIncrementTasksReceived()
	taskStartTime := time.Now()
	log.Printf("[TaskID: %s] Обработка задачи: SuggestionID=%s, EventID=%s, Model=%s, PromptVersion=%s",
		payload.TaskID, payload.SuggestionID, payload.EventID, payload.Model, payload.PromptVersion)

	taskStatus := "success"

	var resultJSON string
	var processingErr error
	var finalUsageInfo UsageInfo

	defer func() {
		duration := time.Since(taskStartTime)
		MetricsRecordTaskProcessingDuration(duration)
		if err != nil {
			taskStatus = "failed"
		}
		log.Printf("[TaskID: %s] Завершение обработки задачи. Статус: %s. Общее время: %v.", payload.TaskID, taskStatus, duration)
	}()

	model := payload.Model
	if model == "" {
		model = h.cfg.AIModel
	}

	// --- Этап 1: Вызов AI API с ретраями ---
	baseDelay := h.cfg.AIBaseRetryDelay
	for attempt := 1; attempt <= h.cfg.AIMaxAttempts; attempt++ {
		log.Printf("[TaskID: %s] Вызов AI API (Попытка %d/%d)...", payload.TaskID, attempt, h.cfg.AIMaxAttempts)
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.AITimeout)

		var attemptUsageInfo UsageInfo
		var attemptErr error
		resultJSON, attemptUsageInfo, attemptErr = h.aiClient.GenerateSuggestion(ctx, model, payload.PromptVersion, payload.InputSummary)
		cancel()

		if attemptErr == nil {
			log.Printf("[TaskID: %s] AI API успешно ответил (Попытка %d).", payload.TaskID, attempt)
			finalUsageInfo = attemptUsageInfo
			processingErr = nil
			break
		}

		processingErr = attemptErr
		log.Printf("[TaskID: %s] Ошибка вызова AI API (Попытка %d/%d): %v", payload.TaskID, attempt, h.cfg.AIMaxAttempts, processingErr)

		if attempt == h.cfg.AIMaxAttempts {
			log.Printf("[TaskID: %s] Достигнуто максимальное количество попыток (%d) вызова AI.", payload.TaskID, h.cfg.AIMaxAttempts)
			MetricsIncrementTaskFailed("ai_error")
			break
		}

		// Экспоненциальная задержка с джиттером
		delay := float64(baseDelay) * math.Pow(2, float64(attempt-1))
		jitter := delay * 0.1
		delay += jitter * (rand.Float64()*2 - 1)
		waitDuration := time.Duration(delay)
		if waitDuration < baseDelay {
			waitDuration = baseDelay
		}
		log.Printf("[TaskID: %s] Ожидание %v перед следующей попыткой...", payload.TaskID, waitDuration)
		time.Sleep(waitDuration)
	}

	if finalUsageInfo.TotalTokens > 0 {
		log.Printf("[TaskID: %s] AI Usage: Tokens P=%d, C=%d, T=%d",
			payload.TaskID, finalUsageInfo.PromptTokens, finalUsageInfo.CompletionTokens, finalUsageInfo.TotalTokens)
	}

	// --- Этап 2: Отправка колбэка ---
	notifyErr := h.notifyResult(payload, resultJSON, processingErr)
	if notifyErr != nil {
		log.Printf("[TaskID: %s] Критическая ошибка при отправке колбэка: %v", payload.TaskID, notifyErr)
		MetricsIncrementTaskFailed("notify_error")
		if processingErr != nil {
			// Ошибка AI приоритетнее для возврата наверх
			return processingErr
		}
		return notifyErr
	}

	if processingErr != nil {
		return processingErr
	}

	MetricsIncrementTaskSucceeded()
	return nil
}

// notifyResult отправляет колбэк об исходе задачи.
func (h *TaskHandler) notifyResult(task sharedMessaging.SuggestionTaskPayload, resultJSON string, processingErr error) error {
	ctx := context.Background() // Фоновый контекст: колбэк должен уйти даже при отмене задачи

	payload := sharedMessaging.SuggestionResultPayload{
		TaskID:       task.TaskID,
		SuggestionID: task.SuggestionID,
		EventID:      task.EventID,
		Status:       sharedMessaging.ResultStatusSuccess,
		ResultJSON:   resultJSON,
	}
	if processingErr != nil {
		payload.Status = sharedMessaging.ResultStatusError
		payload.ErrorDetails = processingErr.Error()
		payload.ResultJSON = ""
	}

	log.Printf("[TaskID: %s] Отправка колбэка (статус: %s)...", task.TaskID, payload.Status)
	return h.notifier.Notify(ctx, payload)
}
