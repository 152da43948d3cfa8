package messaging

// Имена очередей по умолчанию. Реальные имена берутся из конфига сервисов,
// эти константы используются как default-значения envconfig.
const (
	DefaultSuggestionTaskQueue   = "suggestion_generation_tasks"
	DefaultInternalUpdatesQueue  = "suggestion_internal_updates"
	SuggestionTasksDLX           = "suggestion_generation_tasks_dlx"
	SuggestionTasksDLQRoutingKey = "dlq"
)

// SuggestionTaskPayload - структура сообщения для задачи генерации подсказки.
// Воркер получает из нее все, что нужно для вызова AI: модель, версию промпта
// и снимок входного контекста.
type SuggestionTaskPayload struct {
	TaskID        string `json:"taskId"`        // Уникальный ID задачи
	SuggestionID  string `json:"suggestionId"`  // ID попытки, которую нужно закрыть колбэком
	EventID       string `json:"eventId"`       // ID редакционного события (для логов/метрик)
	Model         string `json:"model"`         // Модель AI
	PromptVersion string `json:"promptVersion"` // Версия промпта
	InputSummary  string `json:"inputSummary"`  // Входной контекст на момент запроса
}

// ResultStatus определяет исход выполнения задачи генерации
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

// SuggestionResultPayload - структура сообщения-колбэка от воркера.
// Ровно одно из полей ResultJSON/ErrorDetails осмысленно заполнено.
type SuggestionResultPayload struct {
	TaskID       string       `json:"task_id"`
	SuggestionID string       `json:"suggestion_id"`
	EventID      string       `json:"event_id,omitempty"`
	Status       ResultStatus `json:"status"`
	ResultJSON   string       `json:"result_json,omitempty"`   // Сериализованный результат (при успехе)
	ErrorDetails string       `json:"error_details,omitempty"` // Детали ошибки (при ошибке)
}

// IsValidResultStatus проверяет, является ли строка допустимым ResultStatus.
func IsValidResultStatus(s ResultStatus) bool {
	return s == ResultStatusSuccess || s == ResultStatusError
}
