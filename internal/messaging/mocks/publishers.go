package mocks

import (
	"context"

	sharedMessaging "mission-server/shared/messaging"

	"github.com/stretchr/testify/mock"
)

// Mock TaskPublisher
type TaskPublisher struct {
	mock.Mock
}

func (m *TaskPublisher) PublishSuggestionTask(ctx context.Context, payload sharedMessaging.SuggestionTaskPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
