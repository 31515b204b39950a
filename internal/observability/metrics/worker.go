package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the pre-classification worker.
type WorkerMetrics struct {
	registry *prometheus.Registry

	preclassifyTotal    *prometheus.CounterVec
	preclassifyDuration *prometheus.HistogramVec
	preclassifyInFlight prometheus.Gauge
	queueLag            *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	preclassifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apdoc",
			Subsystem: "worker",
			Name:      "preclassify_total",
			Help:      "Total pre-classified documents by status.",
		},
		[]string{"service", "status"},
	)
	preclassifyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apdoc",
			Subsystem: "worker",
			Name:      "preclassify_duration_seconds",
			Help:      "Pre-classification duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	preclassifyInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apdoc",
			Subsystem: "worker",
			Name:      "preclassify_in_flight",
			Help:      "Number of in-flight pre-classification tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apdoc",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document ingest and pre-classification start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(preclassifyTotal, preclassifyDuration, preclassifyInFlight, queueLag)

	return &WorkerMetrics{
		registry:            registry,
		preclassifyTotal:    preclassifyTotal,
		preclassifyDuration: preclassifyDuration,
		preclassifyInFlight: preclassifyInFlight,
		queueLag:            queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.preclassifyInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.preclassifyInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.preclassifyTotal.WithLabelValues(service, status).Inc()
	m.preclassifyDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
