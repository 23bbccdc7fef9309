// Package store provides the vector store backends behind rag.VectorStore:
// PostgreSQL (pgvector operator), SQLite (sqlite-vec function when loaded),
// Qdrant and Supabase. Every backend answers Search through a
// rag.HybridSearcher, so the native/scan choice is made in one place.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/54b3r/botrag-go/internal/rag"
)

// Store is a rag.VectorStore that can report its name and health.
type Store interface {
	rag.VectorStore
	// Name identifies the backend in logs and readiness reports.
	Name() string
	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error
}

// Options holds the settings shared by every backend.
type Options struct {
	// Coerce controls how non-finite embedding elements are handled on save.
	Coerce rag.CoercionPolicy
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *rag.Metrics
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// now returns the current time truncated to the millisecond, the
// precision every backend persists.
func (o Options) now() time.Time {
	return o.Now().UTC().Truncate(time.Millisecond)
}

// newChunks validates every input and returns the chunks to persist. The
// first invalid item fails the whole batch.
func (o Options) newChunks(in []rag.ChunkInput) ([]rag.Chunk, error) {
	now := o.now()
	chunks := make([]rag.Chunk, len(in))
	for i := range in {
		c, err := rag.NewChunk(in[i], o.Coerce, now, o.Logger)
		if err != nil {
			if len(in) == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks[i] = c
	}
	return chunks, nil
}

func (o Options) searchOptions() []rag.HybridOption {
	return []rag.HybridOption{
		rag.WithSearchLogger(o.Logger),
		rag.WithSearchMetrics(o.Metrics),
	}
}

// validateDelete checks the arguments of DeleteByDocument.
func validateDelete(tenantID int64, documentID string) error {
	if tenantID <= 0 {
		return rag.ErrInvalidTenant
	}
	if strings.TrimSpace(documentID) == "" {
		return rag.ErrMissingDocumentID
	}
	return nil
}

// classifyOperator marks err as rag.ErrOperatorUnavailable when its message
// carries any of tokens.
func classifyOperator(err error, tokens ...string) error {
	for _, tok := range tokens {
		err = rag.ClassifyOperatorError(err, tok)
	}
	return err
}

// sqlThreshold maps rag.NoThreshold to a finite value below any cosine
// similarity, so it can be bound as a query parameter.
func sqlThreshold(t float64) float64 {
	if math.IsInf(t, -1) || t < -1 {
		return -2
	}
	return t
}

// finiteScores scores NaN similarities as 0, the value CosineSimilarity
// gives a zero-norm pair, and drops rows not strictly above threshold.
// pgvector returns NaN for a zero vector and sorts it ahead of every
// finite score, so rows are re-ranked when one was rewritten.
func finiteScores(results []rag.SearchResult, threshold float64) []rag.SearchResult {
	out := results[:0]
	rewritten := false
	for _, r := range results {
		if math.IsNaN(r.Score) {
			r.Score = 0
			rewritten = true
		}
		if r.Score > threshold {
			out = append(out, r)
		}
	}
	if rewritten {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	return out
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func decodeMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
