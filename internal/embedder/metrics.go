package embedder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds embedding Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	// calls counts provider calls by backend and outcome (ok, error).
	calls *prometheus.CounterVec
	// retries counts backoff waits by backend.
	retries *prometheus.CounterVec
	// cache counts cache lookups by result (hit, miss, error).
	cache *prometheus.CounterVec
}

// NewMetrics registers the embedding collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "embedding",
			Name:      "calls_total",
			Help:      "Embedding provider calls by backend and outcome.",
		}, []string{"backend", "outcome"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "embedding",
			Name:      "retries_total",
			Help:      "Embedding calls retried after a failure.",
		}, []string{"backend"}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeCall(backend string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) incRetry(backend string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(backend).Inc()
}

func (m *Metrics) observeCache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}
