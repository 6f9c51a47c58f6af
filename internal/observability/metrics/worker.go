package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

// WorkerMetrics implements ports.ProcessingMetrics for one service name.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	chunksProduced  *prometheus.HistogramVec
	queueLag        *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kontext",
			Subsystem: "worker",
			Name:      "messages_processed_total",
			Help:      "Total processed envelopes by disposition and error code.",
		},
		[]string{"service", "disposition", "error_code"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kontext",
			Subsystem: "worker",
			Name:      "message_process_duration_seconds",
			Help:      "Envelope processing duration in seconds by disposition.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "disposition"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kontext",
			Subsystem: "worker",
			Name:      "messages_in_flight",
			Help:      "Number of envelopes currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chunksProduced := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kontext",
			Subsystem: "worker",
			Name:      "chunks_per_document",
			Help:      "Distribution of chunks stored per successful document.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kontext",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between request timestamp and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kontext",
			Subsystem: "worker",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per dependency operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, chunksProduced, queueLag, breakerState)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		chunksProduced:  chunksProduced,
		queueLag:        queueLag,
		breakerState:    breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartMessage() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishMessage(disposition domain.Disposition, code domain.ErrorCode, duration time.Duration) {
	m.processInFlight.Dec()

	errorCode := string(code)
	if errorCode == "" {
		errorCode = "none"
	}
	m.processTotal.WithLabelValues(m.service, string(disposition), errorCode).Inc()
	m.processDuration.WithLabelValues(m.service, string(disposition)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveChunks(count int) {
	m.chunksProduced.WithLabelValues(m.service).Observe(float64(count))
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) SetBreakerState(operation string, state int) {
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(state))
}
