package repository

import (
	"context"
	"sort"
	"sync"

	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
)

// Compile-time check
var _ AttemptRepository = (*memoryAttemptRepository)(nil)

// memoryAttemptRepository - in-process реализация AttemptRepository.
// Используется в тестах и для локального запуска без Postgres. Дает те же
// гарантии, что и Postgres-реализация: атомарный Finish (под локом) и
// порядок ListByEvent по created_at с разрешением ничьих по порядку вставки.
type memoryAttemptRepository struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]*storedAttempt
	nextSeq  int64
}

type storedAttempt struct {
	sharedModels.SuggestionAttempt
	seq int64
}

// NewMemoryAttemptRepository создает пустое in-memory хранилище попыток.
func NewMemoryAttemptRepository() AttemptRepository {
	return &memoryAttemptRepository{
		attempts: make(map[uuid.UUID]*storedAttempt),
	}
}

func (r *memoryAttemptRepository) Create(_ context.Context, attempt *sharedModels.SuggestionAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	stored := &storedAttempt{SuggestionAttempt: *attempt, seq: r.nextSeq}
	// Копируем срез, чтобы мутации у вызывающего не просачивались в хранилище
	stored.ResultJSON = append([]byte(nil), attempt.ResultJSON...)
	r.attempts[attempt.ID] = stored
	return nil
}

func (r *memoryAttemptRepository) GetByID(_ context.Context, id uuid.UUID) (*sharedModels.SuggestionAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.attempts[id]
	if !ok {
		return nil, sharedModels.ErrAttemptNotFound
	}
	return copyAttempt(stored), nil
}

func (r *memoryAttemptRepository) ListByEvent(_ context.Context, eventID string) ([]sharedModels.SuggestionAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*storedAttempt, 0)
	for _, stored := range r.attempts {
		if stored.EventID == eventID {
			matched = append(matched, stored)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt < matched[j].CreatedAt
		}
		return matched[i].seq < matched[j].seq
	})

	attempts := make([]sharedModels.SuggestionAttempt, 0, len(matched))
	for _, stored := range matched {
		attempts = append(attempts, *copyAttempt(stored))
	}
	return attempts, nil
}

func (r *memoryAttemptRepository) Finish(_ context.Context, id uuid.UUID, patch AttemptFinish) (*sharedModels.SuggestionAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.attempts[id]
	if !ok {
		return nil, sharedModels.ErrAttemptNotFound
	}
	if stored.Status.IsTerminal() {
		return nil, sharedModels.ErrAttemptFinished
	}

	stored.Status = patch.Status
	if patch.ResultJSON != nil {
		stored.ResultJSON = append([]byte(nil), patch.ResultJSON...)
	}
	stored.ErrorMessage = patch.ErrorMessage
	stored.UpdatedAt = patch.UpdatedAt
	return copyAttempt(stored), nil
}

func (r *memoryAttemptRepository) CountActiveForEvent(_ context.Context, eventID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, stored := range r.attempts {
		if stored.EventID == eventID && stored.Status == sharedModels.StatusGenerating {
			count++
		}
	}
	return count, nil
}

func (r *memoryAttemptRepository) MarkStale(_ context.Context, cutoffMs int64, nowMs int64, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var marked int64
	for _, stored := range r.attempts {
		if stored.Status == sharedModels.StatusGenerating && stored.CreatedAt < cutoffMs {
			stored.Status = sharedModels.StatusError
			stored.ErrorMessage = message
			stored.UpdatedAt = nowMs
			marked++
		}
	}
	return marked, nil
}

func copyAttempt(stored *storedAttempt) *sharedModels.SuggestionAttempt {
	a := stored.SuggestionAttempt
	a.ResultJSON = append([]byte(nil), stored.ResultJSON...)
	return &a
}
