package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mission-server/internal/config"
	"mission-server/internal/handler"
	"mission-server/internal/messaging"
	"mission-server/internal/repository"
	"mission-server/internal/service"
	"mission-server/migrations"
	"mission-server/pkg/migration"
	sharedLogger "mission-server/shared/logger"
	sharedMiddleware "mission-server/shared/middleware"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Suggestion Service...")

	// Загружаем конфиг ДО инициализации логгера
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err) // zap еще нет
	}

	// --- Инициализация логгера ---
	logger, err := sharedLogger.New(sharedLogger.Config{
		Level: cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer logger.Sync()
	logger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// Подключение к PostgreSQL
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		logger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer dbPool.Close()
	logger.Info("Успешное подключение к PostgreSQL")

	// Применяем миграции
	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, dbPool)
	if err := migrator.Up(context.Background()); err != nil {
		logger.Fatal("Ошибка применения миграций", zap.Error(err))
	}
	logger.Info("Миграции применены")

	// Подключение к RabbitMQ
	rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer rabbitConn.Close()
	logger.Info("Успешное подключение к RabbitMQ")

	// Инициализация зависимостей
	attemptRepo := repository.NewPgAttemptRepository(dbPool, logger)

	taskPublisher, err := messaging.NewRabbitMQTaskPublisher(rabbitConn, cfg.SuggestionTaskQueue)
	if err != nil {
		logger.Fatal("Не удалось создать TaskPublisher", zap.Error(err))
	}

	suggestionService := service.NewSuggestionService(attemptRepo, taskPublisher, logger, cfg.GenerationLimitPerEvent)

	resolver := service.NewVisibilityResolver(
		service.ParseEquivalenceSets(cfg.VisibilityEquivalenceSets),
		service.ParseProfileContacts(cfg.ProfileContacts),
		logger,
	)
	suggestionHandler := handler.NewSuggestionHandler(suggestionService, resolver, logger)

	// Консьюмер колбэков воркера
	resultProcessor := messaging.NewResultProcessor(suggestionService, logger)
	resultConsumer := messaging.NewResultConsumer(rabbitConn, resultProcessor, cfg.InternalUpdatesQueueName, logger)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	go func() {
		logger.Info("Запуск горутины консьюмера колбэков...")
		if err := resultConsumer.Start(consumerCtx); err != nil {
			logger.Error("Консьюмер колбэков завершился с ошибкой", zap.Error(err))
		}
		logger.Info("Горутина консьюмера колбэков завершена.")
	}()

	// Sweep зависших попыток
	sweeper := service.NewStalenessSweeper(suggestionService, cfg.StaleSweepInterval, cfg.StaleAttemptMaxAge, logger)
	sweeper.Start(context.Background())

	// Настройка Echo
	e := echo.New()
	e.Use(sharedMiddleware.EchoZapLogger(logger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Profile-ID"},
	}))

	// Регистрация маршрутов
	suggestionHandler.RegisterRoutes(e)

	log.Printf("Suggestion сервер слушает на порту %s", cfg.Port)

	// Запуск HTTP сервера
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("Ошибка запуска HTTP сервера: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	// Останавливаем фоновые компоненты
	sweeper.Stop()
	resultConsumer.Stop()
	consumerCancel()

	// Shutdown Echo
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal("Ошибка при graceful shutdown Echo: ", err)
	}

	log.Println("Suggestion Service успешно остановлен")
}

// setupDatabase инициализирует и возвращает пул соединений с БД
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.GetDSN()
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул соединений: %w", err)
	}
	if err = dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД (ping failed): %w", err)
	}
	return dbPool, nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
