package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	sharedMessaging "mission-server/shared/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Notifier определяет интерфейс для отправки колбэка о завершении задачи.
type Notifier interface {
	// Notify отправляет результат в очередь внутренних обновлений.
	Notify(ctx context.Context, payload sharedMessaging.SuggestionResultPayload) error
}

// rabbitMQNotifier реализует Notifier для отправки сообщений в RabbitMQ.
type rabbitMQNotifier struct {
	channel   *amqp.Channel
	queueName string
}

// NewRabbitMQNotifier создает новый экземпляр Notifier для RabbitMQ.
// Важно: предполагается, что канал уже открыт и будет закрыт в другом месте (например, в main.go).
func NewRabbitMQNotifier(ch *amqp.Channel, queueName string) (Notifier, error) {
	// Объявляем очередь обновлений (делаем ее durable)
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось объявить очередь обновлений '%s': %w", queueName, err)
	}
	log.Printf("Очередь обновлений '%s' успешно объявлена/найдена", queueName)

	return &rabbitMQNotifier{channel: ch, queueName: queueName}, nil
}

// Notify публикует колбэк с результатом в очередь RabbitMQ.
func (n *rabbitMQNotifier) Notify(ctx context.Context, payload sharedMessaging.SuggestionResultPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s] Ошибка сериализации SuggestionResultPayload: %v", payload.TaskID, err)
		return fmt.Errorf("ошибка сериализации колбэка для TaskID %s: %w", payload.TaskID, err)
	}

	err = n.channel.PublishWithContext(ctx,
		"",
		n.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "generation-worker",
			MessageId:    payload.TaskID + "-result",
		},
	)

	if err != nil {
		log.Printf("[TaskID: %s] Ошибка публикации колбэка в RabbitMQ: %v", payload.TaskID, err)
		return fmt.Errorf("ошибка публикации колбэка для TaskID %s: %w", payload.TaskID, err)
	}

	log.Printf("[TaskID: %s] Колбэк успешно отправлен в очередь '%s'. Status: %s", payload.TaskID, n.queueName, payload.Status)
	return nil
}
