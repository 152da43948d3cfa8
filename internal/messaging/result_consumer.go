package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sharedMessaging "mission-server/shared/messaging"
	sharedModels "mission-server/shared/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AttemptFinisher - часть SuggestionService, нужная консьюмеру колбэков.
// Узкий интерфейс, чтобы процессор легко мокался в тестах.
type AttemptFinisher interface {
	FinishSuggestionAttempt(ctx context.Context, id uuid.UUID, status sharedModels.SuggestionStatus, resultJSON json.RawMessage, errorMessage string) (*sharedModels.SuggestionAttempt, error)
}

// ResultProcessor обрабатывает один колбэк воркера. Вынесен в отдельную
// структуру для тестируемости.
type ResultProcessor struct {
	finisher AttemptFinisher
	logger   *zap.Logger
}

// NewResultProcessor создает новый экземпляр ResultProcessor.
func NewResultProcessor(finisher AttemptFinisher, logger *zap.Logger) *ResultProcessor {
	return &ResultProcessor{
		finisher: finisher,
		logger:   logger.Named("ResultProcessor"),
	}
}

// Process обрабатывает тело одного сообщения-колбэка.
// Возвращает ошибку, если сообщение нельзя подтвердить (ack).
func (p *ResultProcessor) Process(ctx context.Context, body []byte) error {
	var result sharedMessaging.SuggestionResultPayload
	if err := json.Unmarshal(body, &result); err != nil {
		p.logger.Error("Failed to unmarshal suggestion result", zap.Error(err))
		return fmt.Errorf("ошибка десериализации колбэка: %w", err)
	}

	log := p.logger.With(zap.String("taskID", result.TaskID), zap.String("suggestionID", result.SuggestionID))

	suggestionID, err := uuid.Parse(result.SuggestionID)
	if err != nil {
		log.Error("Invalid suggestion ID in result payload", zap.Error(err))
		return fmt.Errorf("невалидный suggestion ID в колбэке: %w", err)
	}

	dbCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch result.Status {
	case sharedMessaging.ResultStatusSuccess:
		// Пустая строка на проводе = результат не предоставлен. Передаем nil,
		// чтобы сохраненный payload остался нетронутым.
		var doc json.RawMessage
		if result.ResultJSON != "" {
			doc = json.RawMessage(result.ResultJSON)
		}
		_, err = p.finisher.FinishSuggestionAttempt(dbCtx, suggestionID, sharedModels.StatusReady, doc, "")
	case sharedMessaging.ResultStatusError:
		_, err = p.finisher.FinishSuggestionAttempt(dbCtx, suggestionID, sharedModels.StatusError, nil, result.ErrorDetails)
	default:
		log.Error("Unknown result status in callback", zap.String("status", string(result.Status)))
		return fmt.Errorf("неизвестный статус колбэка: %q", result.Status)
	}

	if err != nil {
		// NotFound и повторный finish не ретраятся: доставка колбэков - зона
		// ответственности воркера, мы здесь только логируем и подтверждаем.
		if errors.Is(err, sharedModels.ErrAttemptNotFound) || errors.Is(err, sharedModels.ErrAttemptFinished) {
			log.Warn("Dropping suggestion result for missing or finished attempt", zap.Error(err))
			return nil
		}
		log.Error("Failed to finish suggestion attempt from callback", zap.Error(err))
		return fmt.Errorf("ошибка применения колбэка к попытке %s: %w", suggestionID, err)
	}

	log.Info("Suggestion result applied", zap.String("status", string(result.Status)))
	return nil
}

// ResultConsumer подписывается на очередь внутренних обновлений и прогоняет
// сообщения через ResultProcessor.
type ResultConsumer struct {
	conn      *amqp.Connection
	processor *ResultProcessor
	queueName string
	logger    *zap.Logger
	channel   *amqp.Channel
	done      chan struct{}
	started   bool
}

// NewResultConsumer создает новый ResultConsumer.
func NewResultConsumer(conn *amqp.Connection, processor *ResultProcessor, queueName string, logger *zap.Logger) *ResultConsumer {
	return &ResultConsumer{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		logger:    logger.Named("ResultConsumer"),
		done:      make(chan struct{}),
	}
}

// Start begins consuming messages from the internal updates queue.
func (c *ResultConsumer) Start(ctx context.Context) error {
	var err error
	c.channel, err = c.conn.Channel()
	if err != nil {
		c.logger.Error("Failed to open channel for result consumer", zap.Error(err))
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Очередь durable: колбэки не должны теряться при рестарте сервиса.
	_, err = c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		_ = c.channel.Close()
		c.logger.Error("Failed to declare internal updates queue", zap.Error(err), zap.String("queue", c.queueName))
		return fmt.Errorf("failed to declare queue '%s': %w", c.queueName, err)
	}

	if err := c.channel.Qos(1, 0, false); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (подтверждаем вручную после обработки)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		_ = c.channel.Close()
		c.logger.Error("Failed to register result consumer", zap.Error(err), zap.String("queue", c.queueName))
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Result consumer started, waiting for worker callbacks...", zap.String("queue", c.queueName))

	c.started = true
	go func() {
		defer close(c.done)
		for msg := range msgs {
			if err := c.processor.Process(ctx, msg.Body); err != nil {
				// Requeue=false: плохие сообщения не должны крутиться по кругу
				c.logger.Error("Failed to process suggestion result, rejecting (nack, no requeue)", zap.Error(err))
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
		c.logger.Info("Result consumer message channel closed")
	}()

	return nil
}

// Stop закрывает канал консьюмера и дожидается завершения горутины.
// Безопасен, если Start не был вызван или вернул ошибку: горутины в этом
// случае нет, и ждать нечего.
func (c *ResultConsumer) Stop() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if !c.started {
		return
	}
	<-c.done
	c.logger.Info("Result consumer stopped")
}
