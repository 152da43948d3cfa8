package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	sharedMessaging "mission-server/shared/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TaskPublisher defines the interface for publishing tasks to the generation queue.
type TaskPublisher interface {
	PublishSuggestionTask(ctx context.Context, payload sharedMessaging.SuggestionTaskPayload) error
}

// rabbitMQPublisher implements TaskPublisher for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
}

// NewRabbitMQTaskPublisher creates a new instance of TaskPublisher.
// Очередь объявляется здесь же, чтобы сервис не зависел от порядка запуска
// с воркером. Параметры очереди (DLX) должны совпадать с консьюмером.
func NewRabbitMQTaskPublisher(conn *amqp.Connection, queueName string) (TaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("task publisher: не удалось открыть канал: %w", err)
	}
	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    sharedMessaging.SuggestionTasksDLX,
		"x-dead-letter-routing-key": sharedMessaging.SuggestionTasksDLQRoutingKey,
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,
	)
	if err != nil {
		log.Printf("TaskPublisher ERROR: Не удалось объявить очередь '%s': %v", queueName, err)
		ch.Close()
		return nil, fmt.Errorf("task publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Printf("TaskPublisher: Очередь '%s' успешно объявлена/найдена.", queueName)
	return &rabbitMQPublisher{channel: ch, queueName: queueName}, nil
}

// PublishSuggestionTask publishes a suggestion generation task.
func (p *rabbitMQPublisher) PublishSuggestionTask(ctx context.Context, payload sharedMessaging.SuggestionTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s][SuggestionID: %s] Ошибка сериализации SuggestionTaskPayload: %v", payload.TaskID, payload.SuggestionID, err)
		return fmt.Errorf("ошибка сериализации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		log.Printf("[TaskID: %s][SuggestionID: %s] Ошибка публикации SuggestionTask: %v", payload.TaskID, payload.SuggestionID, err)
		return fmt.Errorf("ошибка публикации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}
	return nil
}

// publishMessage is a helper method for publishing a message.
func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		log.Println("Ошибка публикации: канал RabbitMQ не инициализирован (nil)")
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "suggestion-service",
			},
		)
		if err == nil {
			break
		}
		log.Printf("Ошибка публикации (attempt %d) в очередь '%s': %v", attempt, p.queueName, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
	}
	return nil
}
