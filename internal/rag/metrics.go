package rag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds retrieval-side Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// searches counts completed searches by strategy.
	searches *prometheus.CounterVec
	// searchDuration observes search latency by strategy.
	searchDuration *prometheus.HistogramVec
	// fallbacks counts native-to-scan fallbacks.
	fallbacks prometheus.Counter
	// retrievals counts orchestrator calls by outcome (hit, empty, error).
	retrievals *prometheus.CounterVec
}

// NewMetrics registers the retrieval collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "search",
			Name:      "total",
			Help:      "Completed similarity searches by strategy.",
		}, []string{"strategy"}),
		searchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "botrag",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Similarity search latency by strategy.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "search",
			Name:      "fallbacks_total",
			Help:      "Searches that fell back to the scan because the native operator was unavailable.",
		}),
		retrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botrag",
			Subsystem: "retrieval",
			Name:      "total",
			Help:      "Retrieval calls by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeSearch(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(strategy).Inc()
	m.searchDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (m *Metrics) incFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) observeRetrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
}
