package config

import (
	"fmt"
	"log"
	"time"

	sharedMessaging "mission-server/shared/messaging"
	"mission-server/shared/utils"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию для Suggestion Service
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"SUGGESTION_SERVER_PORT" default:"8084"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки RabbitMQ
	RabbitMQURL              string `envconfig:"RABBITMQ_URL" required:"true"`
	SuggestionTaskQueue      string `envconfig:"SUGGESTION_TASK_QUEUE" default:"suggestion_generation_tasks"`
	InternalUpdatesQueueName string `envconfig:"INTERNAL_UPDATES_QUEUE_NAME" default:"suggestion_internal_updates"`

	// Политика конкурентных генераций: 0 = без ограничения (каждый запрос
	// получает независимую попытку), N > 0 = не больше N попыток в статусе
	// generating на одно событие.
	GenerationLimitPerEvent int `envconfig:"GENERATION_LIMIT_PER_EVENT" default:"0"`

	// Sweep зависших попыток: попытки старше StaleAttemptMaxAge закрываются
	// синтетической ошибкой. 0 отключает sweep.
	StaleAttemptMaxAge time.Duration `envconfig:"STALE_ATTEMPT_MAX_AGE" default:"15m"`
	StaleSweepInterval time.Duration `envconfig:"STALE_SWEEP_INTERVAL" default:"1m"`

	// Наборы эквивалентности контактных идентификаторов для Visibility
	// Resolver. Формат: группы через ';', участники группы через ','.
	VisibilityEquivalenceSets string `envconfig:"VISIBILITY_EQUIVALENCE_SETS" default:""`
	// Справочник profile_id=contact через ','. Пусто - co-visibility только
	// по точному совпадению profile_id.
	ProfileContacts string `envconfig:"PROFILE_CONTACTS" default:""`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации suggestion-service: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = utils.ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}

	if cfg.SuggestionTaskQueue == "" {
		cfg.SuggestionTaskQueue = sharedMessaging.DefaultSuggestionTaskQueue
	}
	if cfg.InternalUpdatesQueueName == "" {
		cfg.InternalUpdatesQueueName = sharedMessaging.DefaultInternalUpdatesQueue
	}

	log.Printf("Конфигурация Suggestion Service загружена:")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  RabbitMQ URL: %s", cfg.RabbitMQURL)
	log.Printf("  Suggestion Task Queue: %s", cfg.SuggestionTaskQueue)
	log.Printf("  Internal Updates Queue Name: %s", cfg.InternalUpdatesQueueName)
	log.Printf("  Generation Limit Per Event: %d", cfg.GenerationLimitPerEvent)
	log.Printf("  Stale Attempt Max Age: %v", cfg.StaleAttemptMaxAge)

	return &cfg, nil
}
