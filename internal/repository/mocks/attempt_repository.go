package mocks

import (
	"context"

	"mission-server/internal/repository"
	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock AttemptRepository
type AttemptRepository struct {
	mock.Mock
}

func (m *AttemptRepository) Create(ctx context.Context, attempt *sharedModels.SuggestionAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*sharedModels.SuggestionAttempt, error) {
	args := m.Called(ctx, id)
	attempt, _ := args.Get(0).(*sharedModels.SuggestionAttempt)
	return attempt, args.Error(1)
}

func (m *AttemptRepository) ListByEvent(ctx context.Context, eventID string) ([]sharedModels.SuggestionAttempt, error) {
	args := m.Called(ctx, eventID)
	attempts, _ := args.Get(0).([]sharedModels.SuggestionAttempt)
	return attempts, args.Error(1)
}

func (m *AttemptRepository) Finish(ctx context.Context, id uuid.UUID, patch repository.AttemptFinish) (*sharedModels.SuggestionAttempt, error) {
	args := m.Called(ctx, id, patch)
	attempt, _ := args.Get(0).(*sharedModels.SuggestionAttempt)
	return attempt, args.Error(1)
}

func (m *AttemptRepository) CountActiveForEvent(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *AttemptRepository) MarkStale(ctx context.Context, cutoffMs int64, nowMs int64, message string) (int64, error) {
	args := m.Called(ctx, cutoffMs, nowMs, message)
	count, _ := args.Get(0).(int64)
	return count, args.Error(1)
}
