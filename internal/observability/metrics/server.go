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

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// ServerMetrics tracks the HTTP surface and the retrieval pipeline. It
// implements the retrieval observer contract, so one instance serves both
// the middleware and the coordinator.
type ServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	gatingTotal       *prometheus.CounterVec
	cacheTotal        *prometheus.CounterVec
	searchDuration    *prometheus.HistogramVec
	embedDuration     *prometheus.HistogramVec
	retrievedChunks   *prometheus.HistogramVec
	ingestChunksTotal *prometheus.CounterVec
}

func NewServerMetrics(service string) *ServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "retrieval",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	gatingTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "pipeline",
			Name:      "gating_decisions_total",
			Help:      "Total gating decisions by reason.",
		},
		[]string{"service", "reason"},
	)
	cacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "pipeline",
			Name:      "cache_lookups_total",
			Help:      "Total result-cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "pipeline",
			Name:      "search_duration_seconds",
			Help:      "Vector index search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	embedDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "pipeline",
			Name:      "embedding_duration_seconds",
			Help:      "Embedding request duration in seconds by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation", "status"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "pipeline",
			Name:      "retrieved_chunks",
			Help:      "Distribution of chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	ingestChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "pipeline",
			Name:      "ingested_chunks_total",
			Help:      "Total ingested chunks by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		gatingTotal,
		cacheTotal,
		searchDuration,
		embedDuration,
		retrievedChunks,
		ingestChunksTotal,
	)

	return &ServerMetrics{
		service:           service,
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		gatingTotal:       gatingTotal,
		cacheTotal:        cacheTotal,
		searchDuration:    searchDuration,
		embedDuration:     embedDuration,
		retrievedChunks:   retrievedChunks,
		ingestChunksTotal: ingestChunksTotal,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
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
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sources/"):
		return "/v1/sources/{source_id}"
	default:
		return path
	}
}

func (m *ServerMetrics) ObserveGating(reason domain.GatingReason) {
	r := string(reason)
	if r == "" {
		r = "unknown"
	}
	m.gatingTotal.WithLabelValues(m.service, r).Inc()
}

func (m *ServerMetrics) ObserveCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *ServerMetrics) ObserveSearch(duration time.Duration) {
	m.searchDuration.WithLabelValues(m.service).Observe(duration.Seconds())
}

func (m *ServerMetrics) ObserveEmbedding(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.embedDuration.WithLabelValues(m.service, operation, status).Observe(duration.Seconds())
}

func (m *ServerMetrics) RecordRetrieved(count int) {
	m.retrievedChunks.WithLabelValues(m.service).Observe(float64(count))
}

func (m *ServerMetrics) RecordIngest(summary domain.IngestSummary) {
	if summary.Added > 0 {
		m.ingestChunksTotal.WithLabelValues(m.service, "added").Add(float64(summary.Added))
	}
	if summary.SkippedDuplicates > 0 {
		m.ingestChunksTotal.WithLabelValues(m.service, "skipped_duplicate").Add(float64(summary.SkippedDuplicates))
	}
	if summary.FailedBatches > 0 {
		m.ingestChunksTotal.WithLabelValues(m.service, "failed_batch").Add(float64(summary.FailedBatches))
	}
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
