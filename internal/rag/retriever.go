package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	// TopK is used when Retrieve is called with k <= 0. Defaults to DefaultTopK.
	TopK int

	// Threshold is the minimum similarity for the two-tier search.
	// Zero selects DefaultThreshold; a negative value accepts every score.
	Threshold float64

	// Exhaustive routes every query through SimilaritySearch (scan only,
	// no threshold) instead of the two-tier Search.
	Exhaustive bool

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *Metrics
}

// Retriever answers "given a query, return the top-k relevant chunks" by
// combining an Embedder and a VectorStore, and renders results into a
// single context string.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the tenant-scoped similarity search.
	store VectorStore

	cfg RetrieverConfig
}

// NewRetriever constructs a Retriever from the given Embedder and VectorStore.
func NewRetriever(embedder Embedder, store VectorStore, cfg RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg}, nil
}

// Retrieve embeds query and returns up to k ranked chunks of tenantID.
// Empty query text fails with ErrEmptyQuery before any network or storage
// call. An empty result list is a valid outcome.
func (r *Retriever) Retrieve(ctx context.Context, tenantID int64, query string, k int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		r.cfg.Metrics.observeRetrieval("error")
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = r.cfg.TopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.cfg.Metrics.observeRetrieval("error")
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vec) == 0 {
		r.cfg.Metrics.observeRetrieval("error")
		return nil, fmt.Errorf("rag: embedder returned empty vector: %w", ErrEmptyVector)
	}

	var results []SearchResult
	if r.cfg.Exhaustive {
		results, err = r.store.SimilaritySearch(ctx, tenantID, vec, k)
	} else {
		threshold := r.cfg.Threshold
		if threshold < 0 {
			threshold = NoThreshold
		}
		results, err = r.store.Search(ctx, SearchQuery{
			TenantID:  tenantID,
			Embedding: vec,
			K:         k,
			Threshold: threshold,
		})
	}
	if err != nil {
		r.cfg.Metrics.observeRetrieval("error")
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	if len(results) == 0 {
		r.cfg.Metrics.observeRetrieval("empty")
	} else {
		r.cfg.Metrics.observeRetrieval("hit")
	}
	r.cfg.Logger.Debug("rag: retrieved chunks",
		slog.Int64("tenant_id", tenantID),
		slog.Int("count", len(results)),
	)
	return results, nil
}

// PrepareContext retrieves chunks for query and renders them with
// RenderContext. No results yields "" and a nil error.
func (r *Retriever) PrepareContext(ctx context.Context, tenantID int64, query string, k int) (string, error) {
	results, err := r.Retrieve(ctx, tenantID, query, k)
	if err != nil {
		return "", err
	}
	return RenderContext(results), nil
}

// RenderContext renders each result as "[Document N from <filename>]: <text>"
// in ranked order, joined by a blank line.
func RenderContext(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	blocks := make([]string, len(results))
	for i := range results {
		blocks[i] = renderBlock(i+1, &results[i])
	}
	return strings.Join(blocks, "\n\n")
}

func renderBlock(n int, res *SearchResult) string {
	return "[Document " + strconv.Itoa(n) + " from " + resultFilename(res) + "]: " + res.Text
}

// resultFilename prefers the stored filename, then metadata["filename"].
func resultFilename(res *SearchResult) string {
	if res.Filename != "" {
		return res.Filename
	}
	if s := metadataString(res.Metadata, "filename"); s != "" {
		return s
	}
	return "unknown"
}

// metadataString returns m[key] when it is a non-empty string.
func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
