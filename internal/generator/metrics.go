package generator

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Общий реестр для всех метрик этого воркера.
	// Используем promauto.With(registry), чтобы метрики регистрировались в
	// локальном реестре, а не в глобальном prometheus.DefaultRegistry.
	registry = prometheus.NewRegistry()

	tasksReceived = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "suggestion_worker_tasks_received_total",
			Help: "Total number of generation tasks received by the worker.",
		},
	)
	tasksSucceeded = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "suggestion_worker_tasks_succeeded_total",
			Help: "Total number of tasks successfully processed.",
		},
	)
	tasksFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_worker_tasks_failed_total",
			Help: "Total number of tasks failed, partitioned by failure reason.",
		},
		[]string{"reason"},
	)
	taskProcessingDuration = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "suggestion_worker_task_duration_seconds",
			Help:    "Histogram of end-to-end task processing durations.",
			Buckets: prometheus.DefBuckets,
		},
	)
	aiRequestsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestion_worker_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "suggestion_worker_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiTotalTokens = promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "suggestion_worker_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(350, 350, 20), // 350, 700, ..., 7000
		},
		[]string{"model"},
	)
)

// MetricsIncrementTasksReceived увеличивает счетчик полученных задач.
func MetricsIncrementTasksReceived() {
	tasksReceived.Inc()
}

// MetricsIncrementTaskSucceeded увеличивает счетчик успешных задач.
func MetricsIncrementTaskSucceeded() {
	tasksSucceeded.Inc()
}

// MetricsIncrementTaskFailed увеличивает счетчик ошибок с указанием причины.
func MetricsIncrementTaskFailed(reason string) {
	tasksFailed.With(prometheus.Labels{"reason": reason}).Inc()
}

// MetricsRecordTaskProcessingDuration записывает общую длительность задачи.
func MetricsRecordTaskProcessingDuration(d time.Duration) {
	taskProcessingDuration.Observe(d.Seconds())
}

// MetricsRecordAIRequest записывает исход и длительность одного вызова AI.
func MetricsRecordAIRequest(model, status string, d time.Duration) {
	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": status}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(d.Seconds())
}

// MetricsRecordAITokens записывает количество токенов вызова AI.
func MetricsRecordAITokens(model string, totalTokens int) {
	if totalTokens > 0 {
		aiTotalTokens.With(prometheus.Labels{"model": model}).Observe(float64(totalTokens))
	}
}

// MetricsHandler возвращает HTTP-обработчик для скрейпа метрик воркера.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
