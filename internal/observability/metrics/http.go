package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIMetrics covers the HTTP surface plus the review and binder
// workflows.
type APIMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	reviewQueueSize      *prometheus.HistogramVec
	classificationsTotal *prometheus.CounterVec
	classifyConflicts    *prometheus.CounterVec

	binderBuildsTotal *prometheus.CounterVec
	binderBundles     *prometheus.HistogramVec
	joinFailuresTotal *prometheus.CounterVec
	exportsTotal      *prometheus.CounterVec
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apdoc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apdoc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apdoc",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	reviewQueueSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apdoc",
			Subsystem: "review",
			Name:      "queue_size",
			Help:      "Queue size observed at review session start.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
		},
		[]string{"service"},
	)
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apdoc",
			Subsystem: "review",
			Name:      "classifications_total",
			Help:      "Total committed reviewer decisions by decision and resulting stage.",
		},
		[]string{"service", "decision", "stage"},
	)
	classifyConflicts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apdoc",
			Subsystem: "review",
			Name:      "classify_conflicts_total",
			Help:      "Total classify attempts rejected by kind (stale target, lost race).",
		},
		[]string{"service", "kind"},
	)
	binderBuildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apdoc",
			Subsystem: "binder",
			Name:      "builds_total",
			Help:      "Total bundle-list builds.",
		},
		[]string{"service"},
	)
	binderBundles := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apdoc",
			Subsystem: "binder",
			Name:      "bundles",
			Help:      "Distribution of bundles per build.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"service"},
	)
	joinFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apdoc",
			Subsystem: "binder",
			Name:      "join_failures_total",
			Help:      "Total per-anchor related-document joins that degraded to an empty list.",
		},
		[]string{"service"},
	)
	exportsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apdoc",
			Subsystem: "binder",
			Name:      "exports_total",
			Help:      "Total workbook exports.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		reviewQueueSize,
		classificationsTotal,
		classifyConflicts,
		binderBuildsTotal,
		binderBundles,
		joinFailuresTotal,
		exportsTotal,
	)

	return &APIMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		reviewQueueSize:      reviewQueueSize,
		classificationsTotal: classificationsTotal,
		classifyConflicts:    classifyConflicts,
		binderBuildsTotal:    binderBuildsTotal,
		binderBundles:        binderBundles,
		joinFailuresTotal:    joinFailuresTotal,
		exportsTotal:         exportsTotal,
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/blobs/"):
		return "/v1/blobs/{key}"
	case strings.HasPrefix(path, "/v1/review/sessions/"):
		return "/v1/review/sessions/{session_id}"
	case strings.HasPrefix(path, "/v1/binder/sessions/"):
		return "/v1/binder/sessions/{session_id}"
	default:
		return path
	}
}

func (m *APIMetrics) RecordReviewSessionStart(service string, queueSize int) {
	m.reviewQueueSize.WithLabelValues(service).Observe(float64(queueSize))
}

func (m *APIMetrics) RecordClassification(service, decision, stage string) {
	m.classificationsTotal.WithLabelValues(service, decision, stage).Inc()
}

func (m *APIMetrics) RecordClassifyConflict(service, kind string) {
	m.classifyConflicts.WithLabelValues(service, kind).Inc()
}

func (m *APIMetrics) RecordBinderBuild(service string, bundles, failedJoins int) {
	m.binderBuildsTotal.WithLabelValues(service).Inc()
	m.binderBundles.WithLabelValues(service).Observe(float64(bundles))
	if failedJoins > 0 {
		m.joinFailuresTotal.WithLabelValues(service).Add(float64(failedJoins))
	}
}

func (m *APIMetrics) RecordExport(service string) {
	m.exportsTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
