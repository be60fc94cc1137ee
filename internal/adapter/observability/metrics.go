package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	TasksEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_enqueued_total",
			Help: "Total number of classification tasks enqueued",
		},
	)
	TasksProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_processing",
			Help: "Number of tasks currently processing",
		},
	)
	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total number of tasks completed, by predicted category",
		},
		[]string{"category"},
	)
	TasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_failed_total",
			Help: "Total number of tasks that reached the failed state",
		},
	)

	ClassificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classification_duration_seconds",
			Help:    "End-to-end classification duration per task",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	TextExtractDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "text_extract_duration_seconds",
			Help:    "Text extraction duration per document",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Length of the classification task queue",
		},
	)
	WorkerCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_count",
			Help: "Current worker replica count as seen by the scaling controller",
		},
	)
	ScalingActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scaling_actions_total",
			Help: "Total number of scaling actions taken",
		},
		[]string{"direction"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksProcessing)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(ClassificationDuration)
	prometheus.MustRegister(TextExtractDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkerCount)
	prometheus.MustRegister(ScalingActionsTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func EnqueueTask() {
	TasksEnqueuedTotal.Inc()
}

func StartProcessingTask() {
	TasksProcessing.Inc()
}

func CompleteTask(category string) {
	TasksProcessing.Dec()
	TasksCompletedTotal.WithLabelValues(category).Inc()
}

func FailTask() {
	TasksProcessing.Dec()
	TasksFailedTotal.Inc()
}

// RecordScalingAction increments the counter for an up or down action.
func RecordScalingAction(direction string) {
	ScalingActionsTotal.WithLabelValues(direction).Inc()
}
