package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mission-server/internal/messaging"
	"mission-server/internal/repository"
	sharedMessaging "mission-server/shared/messaging"
	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// staleAttemptMessage - синтетическое сообщение об ошибке для попыток,
// закрытых sweep'ом.
const staleAttemptMessage = "suggestion generation timed out"

// SuggestionService defines the lifecycle operations for suggestion attempts.
type SuggestionService interface {
	// CreateSuggestionAttempt открывает новую попытку генерации и отправляет
	// задачу воркеру. Возвращенная попытка уже сохранена и доступна для чтения.
	CreateSuggestionAttempt(ctx context.Context, eventID, profileID, model, promptVersion, inputSummary string) (*sharedModels.SuggestionAttempt, error)
	// FinishSuggestionAttempt закрывает попытку terminal-статусом.
	// status = generating отклоняется до обращения к хранилищу; повторный
	// finish уже закрытой попытки отклоняется с ErrAttemptFinished.
	FinishSuggestionAttempt(ctx context.Context, id uuid.UUID, status sharedModels.SuggestionStatus, resultJSON json.RawMessage, errorMessage string) (*sharedModels.SuggestionAttempt, error)
	GetAttempt(ctx context.Context, id uuid.UUID) (*sharedModels.SuggestionAttempt, error)
	ListEventAttempts(ctx context.Context, eventID string) ([]sharedModels.SuggestionAttempt, error)
	// SweepStaleAttempts закрывает попытки, висящие в generating дольше maxAge.
	SweepStaleAttempts(ctx context.Context, maxAge time.Duration) (int64, error)
}

type suggestionServiceImpl struct {
	repo            repository.AttemptRepository
	publisher       messaging.TaskPublisher
	logger          *zap.Logger
	generationLimit int // 0 = конкурентные попытки на событие не ограничены
	nowFn           func() int64
}

// NewSuggestionService creates a new instance of SuggestionService.
func NewSuggestionService(
	repo repository.AttemptRepository,
	publisher messaging.TaskPublisher,
	logger *zap.Logger,
	generationLimitPerEvent int,
) SuggestionService {
	return &suggestionServiceImpl{
		repo:            repo,
		publisher:       publisher,
		logger:          logger.Named("SuggestionService"),
		generationLimit: generationLimitPerEvent,
		nowFn:           func() int64 { return time.Now().UTC().UnixMilli() },
	}
}

// CreateSuggestionAttempt creates a new SuggestionAttempt entry and sends a generation task.
func (s *suggestionServiceImpl) CreateSuggestionAttempt(ctx context.Context, eventID, profileID, model, promptVersion, inputSummary string) (*sharedModels.SuggestionAttempt, error) {
	log := s.logger.With(zap.String("eventID", eventID), zap.String("profileID", profileID))
	log.Info("CreateSuggestionAttempt called")

	if eventID == "" || profileID == "" {
		log.Warn("Missing eventID or profileID")
		return nil, fmt.Errorf("%w: eventID and profileID are required", sharedModels.ErrInvalidInput)
	}

	// Лимит выключен по умолчанию: конкурентные регенерации одного события
	// разрешены, каждая получает независимую попытку.
	if s.generationLimit > 0 {
		activeCount, err := s.repo.CountActiveForEvent(ctx, eventID)
		if err != nil {
			log.Error("Error counting active generations", zap.Error(err))
			return nil, fmt.Errorf("error checking generation status: %w", err)
		}
		if activeCount >= s.generationLimit {
			log.Warn("Event reached the active generation limit", zap.Int("limit", s.generationLimit))
			return nil, sharedModels.ErrEventHasActiveGeneration
		}
	}

	now := s.nowFn()
	attempt := &sharedModels.SuggestionAttempt{
		ID:                 uuid.New(),
		EventID:            eventID,
		CreatedByProfileID: profileID,
		Model:              model,
		PromptVersion:      promptVersion,
		InputSummary:       inputSummary,
		Status:             sharedModels.StatusGenerating,
		ResultJSON:         json.RawMessage(sharedModels.EmptyResultJSON),
		ErrorMessage:       "",
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, attempt); err != nil {
		log.Error("Error saving suggestion attempt", zap.String("suggestionID", attempt.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("error saving suggestion attempt: %w", err)
	}
	log.Info("Suggestion attempt created and saved", zap.String("suggestionID", attempt.ID.String()))

	taskID := uuid.New().String()
	taskPayload := sharedMessaging.SuggestionTaskPayload{
		TaskID:        taskID,
		SuggestionID:  attempt.ID.String(),
		EventID:       eventID,
		Model:         model,
		PromptVersion: promptVersion,
		InputSummary:  inputSummary,
	}

	if err := s.publisher.PublishSuggestionTask(ctx, taskPayload); err != nil {
		log.Error("Error publishing generation task, closing attempt with error", zap.String("suggestionID", attempt.ID.String()), zap.String("taskID", taskID), zap.Error(err))
		// Попытка не должна навсегда зависнуть в generating, если задача так
		// и не ушла воркеру. Закрываем ее синтетической ошибкой.
		rollback := repository.AttemptFinish{
			Status:       sharedModels.StatusError,
			ErrorMessage: "failed to dispatch generation task",
			UpdatedAt:    s.nowFn(),
		}
		if _, rollbackErr := s.repo.Finish(context.Background(), attempt.ID, rollback); rollbackErr != nil {
			log.Error("CRITICAL ERROR: Failed to close attempt after publish error", zap.String("suggestionID", attempt.ID.String()), zap.Error(rollbackErr))
		}
		return nil, fmt.Errorf("error sending generation task: %w", err)
	}

	log.Info("Generation task sent successfully", zap.String("suggestionID", attempt.ID.String()), zap.String("taskID", taskID))
	return attempt, nil
}

// FinishSuggestionAttempt applies the terminal patch driven by the worker callback.
func (s *suggestionServiceImpl) FinishSuggestionAttempt(ctx context.Context, id uuid.UUID, status sharedModels.SuggestionStatus, resultJSON json.RawMessage, errorMessage string) (*sharedModels.SuggestionAttempt, error) {
	log := s.logger.With(zap.String("suggestionID", id.String()), zap.String("newStatus", string(status)))
	log.Info("FinishSuggestionAttempt called")

	// Валидация статуса ДО обращения к хранилищу: finish в generating (или
	// в неизвестный статус) - нарушение контракта.
	if !sharedModels.StatusGenerating.CanTransitionTo(status) {
		log.Warn("Rejecting finish with non-terminal status")
		return nil, fmt.Errorf("%w: cannot finish into status %q", sharedModels.ErrInvalidTransition, status)
	}

	// Terminal-патч несет ровно одно из двух: результат у ready, сообщение
	// об ошибке у error. Лишнее поле отбрасывается, а пустой результат
	// трактуется как "не предоставлен".
	errorMessage = sharedModels.NormalizeErrorMessage(errorMessage)
	if status == sharedModels.StatusReady {
		errorMessage = ""
	} else {
		resultJSON = nil
	}
	if len(resultJSON) == 0 {
		resultJSON = nil
	}

	patch := repository.AttemptFinish{
		Status:       status,
		ResultJSON:   resultJSON, // nil = оставить прежний payload
		ErrorMessage: errorMessage,
		UpdatedAt:    s.nowFn(),
	}

	attempt, err := s.repo.Finish(ctx, id, patch)
	if err != nil {
		log.Warn("Error finishing suggestion attempt", zap.Error(err))
		return nil, err
	}

	log.Info("Suggestion attempt finished", zap.String("status", string(attempt.Status)))
	return attempt, nil
}

// GetAttempt gets a single suggestion attempt by ID.
func (s *suggestionServiceImpl) GetAttempt(ctx context.Context, id uuid.UUID) (*sharedModels.SuggestionAttempt, error) {
	log := s.logger.With(zap.String("suggestionID", id.String()))
	log.Debug("GetAttempt called")

	attempt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.Warn("Error getting suggestion attempt", zap.Error(err))
		return nil, err
	}
	return attempt, nil
}

// ListEventAttempts retrieves the attempt history of an event, oldest first.
func (s *suggestionServiceImpl) ListEventAttempts(ctx context.Context, eventID string) ([]sharedModels.SuggestionAttempt, error) {
	log := s.logger.With(zap.String("eventID", eventID))
	log.Debug("ListEventAttempts called")

	attempts, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		log.Error("Error listing event attempts from repository", zap.Error(err))
		return nil, fmt.Errorf("error listing event attempts: %w", err)
	}
	return attempts, nil
}

// SweepStaleAttempts closes attempts stuck in generating longer than maxAge.
func (s *suggestionServiceImpl) SweepStaleAttempts(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := s.nowFn()
	cutoff := now - maxAge.Milliseconds()

	marked, err := s.repo.MarkStale(ctx, cutoff, now, staleAttemptMessage)
	if err != nil {
		s.logger.Error("Error sweeping stale attempts", zap.Error(err))
		return 0, fmt.Errorf("error sweeping stale attempts: %w", err)
	}
	if marked > 0 {
		s.logger.Info("Stale attempts swept", zap.Int64("count", marked), zap.Duration("maxAge", maxAge))
	}
	return marked, nil
}
