// Package server: metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the chi route pattern rather than the raw URL path, so document ids
	// never become label values.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// ragQueries counts /rag/query requests by outcome: "found",
	// "empty", or "error".
	ragQueries *prometheus.CounterVec

	// ragDuration records the wall-clock duration of /rag/query requests.
	ragDuration *prometheus.HistogramVec

	// ingestions counts /ingest requests by outcome: "ok" or "error".
	ingestions *prometheus.CounterVec

	// chunksSaved counts chunks persisted through any write endpoint.
	chunksSaved prometheus.Counter

	// rateLimited counts requests rejected with 429.
	rateLimited prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the router,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		ragQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "Total number of /rag/query requests, partitioned by outcome.",
		}, []string{"outcome"}),

		ragDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "botrag",
			Subsystem: "rag",
			Name:      "query_duration_seconds",
			Help:      "Wall-clock duration of /rag/query requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		ingestions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of /ingest requests, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "store",
			Name:      "chunks_saved_total",
			Help:      "Chunks persisted through the HTTP write endpoints.",
		}),

		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "botrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency per route pattern. It must
// run inside the chi router so the pattern is resolved after routing.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}

		start := time.Now()
		next.ServeHTTP(rw, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// incRateLimited records one rejected request.
func (m *serverMetrics) incRateLimited() { m.rateLimited.Inc() }
