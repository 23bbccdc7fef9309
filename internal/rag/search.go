package rag

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Strategy names reported in logs and metrics.
const (
	StrategyNative = "native"
	StrategyScan   = "scan"
)

// NativeSearcher runs a similarity query inside the storage engine using its
// own vector distance operator. Implementations return an error matching
// ErrOperatorUnavailable (see ClassifyOperatorError) when the operator is
// missing, and any other error for genuine failures.
type NativeSearcher interface {
	NativeSearch(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}

// ScanSource loads every chunk of a tenant, in insertion order, for the
// in-process scan.
type ScanSource interface {
	LoadTenant(ctx context.Context, tenantID int64) ([]Chunk, error)
}

// Probe reports whether the native operator is available.
type Probe func(ctx context.Context) (bool, error)

// SearchStrategy is one way of answering a SearchQuery.
type SearchStrategy interface {
	Name() string
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}

// NativeStrategy delegates to the storage engine.
type NativeStrategy struct {
	Searcher NativeSearcher
}

// Name implements SearchStrategy.
func (NativeStrategy) Name() string { return StrategyNative }

// Search implements SearchStrategy.
func (s NativeStrategy) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	return s.Searcher.NativeSearch(ctx, q)
}

// ScanStrategy loads the whole tenant and ranks it in process. Cost is
// O(n·d) per query and memory grows with the tenant's chunk count.
type ScanStrategy struct {
	Source ScanSource
}

// Name implements SearchStrategy.
func (ScanStrategy) Name() string { return StrategyScan }

// Search implements SearchStrategy.
func (s ScanStrategy) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	if len(q.Embedding) == 0 {
		return nil, ErrEmptyVector
	}
	chunks, err := s.Source.LoadTenant(ctx, q.TenantID)
	if err != nil {
		return nil, err
	}
	return Rank(chunks, q.Embedding, q.K, q.Threshold)
}

// HybridSearcher exposes a single Search entry point over a native strategy
// and a scan strategy. The native strategy is enabled by a capability probe
// at construction and disabled for the rest of the process the first time it
// fails with ErrOperatorUnavailable.
type HybridSearcher struct {
	native   SearchStrategy
	scan     ScanStrategy
	nativeOK atomic.Bool
	log      *slog.Logger
	metrics  *Metrics
}

// HybridOption configures a HybridSearcher.
type HybridOption func(*HybridSearcher)

// WithSearchLogger sets the logger used for fallback warnings.
func WithSearchLogger(log *slog.Logger) HybridOption {
	return func(h *HybridSearcher) { h.log = log }
}

// WithSearchMetrics records strategy usage and fallbacks.
func WithSearchMetrics(m *Metrics) HybridOption {
	return func(h *HybridSearcher) { h.metrics = m }
}

// NewHybridSearcher builds a searcher over source, with native optional.
// probe may be nil, in which case the native strategy starts enabled and is
// only disabled by runtime detection. A probe error is logged and treated
// the same way.
func NewHybridSearcher(ctx context.Context, native NativeSearcher, source ScanSource, probe Probe, opts ...HybridOption) *HybridSearcher {
	h := &HybridSearcher{
		scan: ScanStrategy{Source: source},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if native == nil {
		return h
	}
	h.native = NativeStrategy{Searcher: native}

	enabled := true
	if probe != nil {
		ok, err := probe(ctx)
		switch {
		case err != nil:
			h.log.Warn("rag: native operator probe failed, relying on runtime detection",
				slog.String("error", err.Error()),
			)
		case !ok:
			enabled = false
		}
	}
	h.nativeOK.Store(enabled)
	h.log.Info("rag: search strategy selected", slog.String("strategy", h.Selected()))
	return h
}

// Selected returns the strategy the next Search call will try first.
func (h *HybridSearcher) Selected() string {
	if h.native != nil && h.nativeOK.Load() {
		return StrategyNative
	}
	return StrategyScan
}

// Search answers q with the native strategy when available, falling back to
// the scan strategy only when the native operator is unavailable.
func (h *HybridSearcher) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	if len(q.Embedding) == 0 {
		return nil, ErrEmptyVector
	}
	if q.K <= 0 {
		q.K = DefaultTopK
	}

	if h.Selected() == StrategyNative {
		start := time.Now()
		res, err := h.native.Search(ctx, q)
		if err == nil {
			h.metrics.observeSearch(StrategyNative, time.Since(start))
			return res, nil
		}
		if !errors.Is(err, ErrOperatorUnavailable) {
			return nil, err
		}
		h.nativeOK.Store(false)
		h.metrics.incFallback()
		h.log.Warn("rag: native vector operator unavailable, falling back to scan",
			slog.Int64("tenant_id", q.TenantID),
			slog.String("error", err.Error()),
		)
	}

	return h.runScan(ctx, q)
}

// Scan always uses the scan strategy and applies no threshold.
func (h *HybridSearcher) Scan(ctx context.Context, tenantID int64, embedding []float32, k int) ([]SearchResult, error) {
	if len(embedding) == 0 {
		return nil, ErrEmptyVector
	}
	return h.runScan(ctx, SearchQuery{TenantID: tenantID, Embedding: embedding, K: k, Threshold: NoThreshold})
}

func (h *HybridSearcher) runScan(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	start := time.Now()
	res, err := h.scan.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	h.metrics.observeSearch(StrategyScan, time.Since(start))
	return res, nil
}
