package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mission-server/internal/generator"
	"mission-server/shared/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	log.Println("Запуск воркера генерации подсказок...")

	// Загружаем конфигурацию
	cfg, err := generator.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// HTTP-сервер метрик Prometheus и health в отдельной горутине
	metricsServer := startMetricsServer(cfg.MetricsPort)

	// Инициализация AI клиента
	log.Println("Инициализация AI клиента...")
	aiClient := generator.NewAIClient(cfg)

	// Подключаемся к RabbitMQ с логикой повторных попыток
	conn, err := connectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Не удалось подключиться к RabbitMQ: %v", err)
	}
	defer conn.Close()
	log.Println("Успешное подключение к RabbitMQ")

	// Открываем канал RabbitMQ (нужен для Notifier и Consumer)
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Не удалось открыть канал: %v", err)
	}
	defer ch.Close()
	log.Println("Канал успешно открыт")

	// --- Настройка Dead Letter Queue (DLQ) ---
	dlxName := messaging.SuggestionTasksDLX
	dlqName := cfg.SuggestionTaskQueue + "_dlq"
	dlqRoutingKey := messaging.SuggestionTasksDLQRoutingKey
	log.Printf("Настройка Dead Letter Exchange ('%s') и Queue ('%s')...", dlxName, dlqName)

	err = ch.ExchangeDeclare(
		dlxName,  // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		log.Fatalf("Не удалось объявить DLX: %v", err)
	}

	_, err = ch.QueueDeclare(
		dlqName, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		log.Fatalf("Не удалось объявить Dead Letter Queue '%s': %v", dlqName, err)
	}

	err = ch.QueueBind(
		dlqName,       // queue name
		dlqRoutingKey, // routing key
		dlxName,       // exchange
		false,
		nil,
	)
	if err != nil {
		log.Fatalf("Не удалось связать DLQ '%s' с DLX '%s': %v", dlqName, dlxName, err)
	}
	log.Printf("DLQ '%s' успешно связана с DLX '%s' с ключом '%s'.", dlqName, dlxName, dlqRoutingKey)

	// Объявляем основную очередь задач с аргументами DLX. Параметры должны
	// совпадать с паблишером на стороне сервиса.
	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    dlxName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	_, err = ch.QueueDeclare(
		cfg.SuggestionTaskQueue, // name
		true,                    // durable
		false,                   // delete when unused
		false,                   // exclusive
		false,                   // no-wait
		args,
	)
	if err != nil {
		log.Fatalf("Не удалось объявить очередь '%s': %v", cfg.SuggestionTaskQueue, err)
	}
	log.Printf("Очередь '%s' успешно объявлена.", cfg.SuggestionTaskQueue)

	// Устанавливаем QoS: одна задача за раз
	err = ch.Qos(1, 0, false)
	if err != nil {
		log.Fatalf("Не удалось установить QoS: %v", err)
	}
	log.Println("QoS (prefetch count=1) установлен")

	// Инициализация нотификатора и обработчика задач
	notifier, err := generator.NewRabbitMQNotifier(ch, cfg.InternalUpdatesQueueName)
	if err != nil {
		log.Fatalf("Не удалось создать notifier: %v", err)
	}
	taskHandler := generator.NewTaskHandler(cfg, aiClient, notifier)

	// Начинаем потреблять сообщения из очереди задач. Тег консьюмера
	// явный: по нему же отменяем подписку при завершении.
	msgs, err := ch.Consume(
		cfg.SuggestionTaskQueue, cfg.ConsumerName, false, false, false, false, nil)
	if err != nil {
		log.Fatalf("Не удалось зарегистрировать консьюмера: %v", err)
	}

	// Канал для graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	// Канал для синхронизации завершения горутины обработки сообщений
	done := make(chan struct{})

	log.Println(" [*] Ожидание задач. Для выхода нажмите CTRL+C")

	go func() {
		defer close(done)
		for msg := range msgs {
			var payload messaging.SuggestionTaskPayload
			err := json.Unmarshal(msg.Body, &payload)
			if err != nil {
				log.Printf("Ошибка десериализации JSON: %v. Отклоняем сообщение (nack, no requeue).", err)
				generator.MetricsIncrementTaskFailed("deserialization")
				msg.Nack(false, false) // Плохое сообщение уходит в DLQ
				continue
			}

			err = taskHandler.Handle(payload)
			if err != nil {
				// Requeue=false, чтобы избежать бесконечных циклов для
				// 'плохих' задач: они попадают в Dead Letter Queue.
				log.Printf("[TaskID: %s] Ошибка обработки задачи: %v. Отклоняем сообщение (nack, no requeue).", payload.TaskID, err)
				msg.Nack(false, false)
			} else {
				log.Printf("[TaskID: %s] Задача успешно обработана, колбэк отправлен. Подтверждаем сообщение (ack).", payload.TaskID)
				msg.Ack(false)
			}
		}
		log.Println("Канал сообщений закрыт, горутина обработки завершается.")
	}()

	// Ждем сигнала завершения либо закрытия канала сообщений
	select {
	case <-stopChan:
		log.Println("Получен сигнал завершения. Закрываем канал консьюмера...")
		if err := ch.Cancel(cfg.ConsumerName, false); err != nil {
			log.Printf("Ошибка отмены консьюмера: %v", err)
		}
	case <-done:
		log.Println("Канал сообщений закрыт извне.")
	}

	// Ожидаем завершения горутины обработки сообщений
	log.Println("Ожидание завершения обработки текущих сообщений...")
	<-done

	// Останавливаем HTTP сервер метрик
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка при остановке сервера метрик: %v", err)
	}

	log.Println("Воркер генерации подсказок остановлен.")
}

// startMetricsServer запускает HTTP-сервер для эндпоинтов /metrics и /health
func startMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", generator.MetricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		log.Printf("Запуск HTTP-сервера для метрик Prometheus и health на :%s...", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ошибка запуска HTTP-сервера для метрик: %v", err)
		}
	}()
	return server
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 10
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Printf("Не удалось подключиться к RabbitMQ (попытка %d/%d): %v. Повтор через %v...", i+1, maxRetries, err, retryDelay)
		time.Sleep(retryDelay)
	}
	return nil, err
}
