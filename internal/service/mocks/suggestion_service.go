package mocks

import (
	"context"
	"encoding/json"
	"time"

	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock SuggestionService
type SuggestionService struct {
	mock.Mock
}

func (m *SuggestionService) CreateSuggestionAttempt(ctx context.Context, eventID, profileID, model, promptVersion, inputSummary string) (*sharedModels.SuggestionAttempt, error) {
	args := m.Called(ctx, eventID, profileID, model, promptVersion, inputSummary)
	attempt, _ := args.Get(0).(*sharedModels.SuggestionAttempt)
	return attempt, args.Error(1)
}

func (m *SuggestionService) FinishSuggestionAttempt(ctx context.Context, id uuid.UUID, status sharedModels.SuggestionStatus, resultJSON json.RawMessage, errorMessage string) (*sharedModels.SuggestionAttempt, error) {
	args := m.Called(ctx, id, status, resultJSON, errorMessage)
	attempt, _ := args.Get(0).(*sharedModels.SuggestionAttempt)
	return attempt, args.Error(1)
}

func (m *SuggestionService) GetAttempt(ctx context.Context, id uuid.UUID) (*sharedModels.SuggestionAttempt, error) {
	args := m.Called(ctx, id)
	attempt, _ := args.Get(0).(*sharedModels.SuggestionAttempt)
	return attempt, args.Error(1)
}

func (m *SuggestionService) ListEventAttempts(ctx context.Context, eventID string) ([]sharedModels.SuggestionAttempt, error) {
	args := m.Called(ctx, eventID)
	attempts, _ := args.Get(0).([]sharedModels.SuggestionAttempt)
	return attempts, args.Error(1)
}

func (m *SuggestionService) SweepStaleAttempts(ctx context.Context, maxAge time.Duration) (int64, error) {
	args := m.Called(ctx, maxAge)
	count, _ := args.Get(0).(int64)
	return count, args.Error(1)
}
