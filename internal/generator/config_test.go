package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("AI_API_KEY", "test-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "suggestion_generation_tasks", cfg.SuggestionTaskQueue)
	assert.Equal(t, "suggestion_internal_updates", cfg.InternalUpdatesQueueName)
	// Тег непустой: по этому же тегу отменяется подписка при завершении,
	// пустой тег RabbitMQ заменяет автосгенерированным
	assert.Equal(t, "suggestion_generation_worker", cfg.ConsumerName)
	assert.NotEmpty(t, cfg.ConsumerName)
	assert.Equal(t, 3, cfg.AIMaxAttempts)
	assert.Equal(t, "test-key", cfg.AIAPIKey)
}
