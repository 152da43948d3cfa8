package mocks

import (
	"context"

	"mission-server/internal/generator"
	sharedMessaging "mission-server/shared/messaging"

	"github.com/stretchr/testify/mock"
)

// AIClient - мок для generator.AIClient
type AIClient struct {
	mock.Mock
}

func (m *AIClient) GenerateSuggestion(ctx context.Context, model, promptVersion, inputSummary string) (string, generator.UsageInfo, error) {
	args := m.Called(ctx, model, promptVersion, inputSummary)
	return args.String(0), args.Get(1).(generator.UsageInfo), args.Error(2)
}

// Notifier - мок для generator.Notifier
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Notify(ctx context.Context, payload sharedMessaging.SuggestionResultPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
