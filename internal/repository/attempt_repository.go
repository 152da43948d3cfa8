package repository

import (
	"context"
	"encoding/json"

	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
)

// AttemptFinish описывает terminal-патч, применяемый к попытке ровно один раз.
// ResultJSON == nil означает "оставить предыдущее значение".
type AttemptFinish struct {
	Status       sharedModels.SuggestionStatus
	ResultJSON   json.RawMessage
	ErrorMessage string // Уже нормализовано сервисом; пустая строка = отсутствует
	UpdatedAt    int64  // Unix-время в миллисекундах
}

// AttemptRepository определяет контракт хранилища попыток генерации.
//
// Гарантии, которые обязана давать реализация:
//   - Create не блокируется несвязанными вставками (нет глобального лока);
//   - Finish атомарен относительно конкурентных читателей и применяется
//     только к попытке в статусе generating (гонка двух колбэков безопасна);
//   - ListByEvent возвращает попытки по возрастанию created_at,
//     при равных created_at - в порядке вставки.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *sharedModels.SuggestionAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*sharedModels.SuggestionAttempt, error)
	ListByEvent(ctx context.Context, eventID string) ([]sharedModels.SuggestionAttempt, error)
	// Finish переводит попытку в terminal-статус. Возвращает
	// sharedModels.ErrAttemptNotFound, если попытки нет, и
	// sharedModels.ErrAttemptFinished, если она уже в terminal-статусе.
	Finish(ctx context.Context, id uuid.UUID, patch AttemptFinish) (*sharedModels.SuggestionAttempt, error)
	CountActiveForEvent(ctx context.Context, eventID string) (int, error)
	// MarkStale переводит в error все попытки, висящие в generating с
	// created_at раньше cutoff. Возвращает число закрытых попыток.
	MarkStale(ctx context.Context, cutoffMs int64, nowMs int64, message string) (int64, error)
}
