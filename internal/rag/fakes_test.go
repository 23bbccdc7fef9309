package rag

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// ---------------------------------------------------------------------------
// Fakes shared by the rag tests
// ---------------------------------------------------------------------------

// fakeEmbedder returns a fixed vector or error and counts calls.
type fakeEmbedder struct {
	// vec is returned for every text.
	vec []float32
	// err is returned instead of vec when set.
	err error

	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memoryStore is an in-memory VectorStore backed by HybridSearcher with no
// native strategy, so Search always scans.
type memoryStore struct {
	mu     sync.Mutex
	chunks []Chunk
	// searchErr forces Search and SimilaritySearch to fail.
	searchErr error
	// lastQuery records the most recent Search call.
	lastQuery SearchQuery
	// similarityCalls counts SimilaritySearch calls.
	similarityCalls int
}

func (m *memoryStore) LoadTenant(_ context.Context, tenantID int64) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Chunk
	for _, c := range m.chunks {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryStore) Save(_ context.Context, in ChunkInput) (*Chunk, error) {
	return nil, nil
}

func (m *memoryStore) SaveBatch(_ context.Context, _ []ChunkInput) ([]Chunk, error) {
	return nil, nil
}

func (m *memoryStore) DeleteByDocument(_ context.Context, _ int64, _ string) (int64, error) {
	return 0, nil
}

func (m *memoryStore) CountByDocument(_ context.Context, _ string, _ int64) (int64, error) {
	return 0, nil
}

func (m *memoryStore) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	m.mu.Lock()
	m.lastQuery = q
	m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return NewHybridSearcher(ctx, nil, m, nil).Search(ctx, q)
}

func (m *memoryStore) SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int) ([]SearchResult, error) {
	m.mu.Lock()
	m.similarityCalls++
	m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return NewHybridSearcher(ctx, nil, m, nil).Scan(ctx, tenantID, embedding, k)
}

func (m *memoryStore) Close() error { return nil }

// fakeNative is a NativeSearcher with a scripted result.
type fakeNative struct {
	results []SearchResult
	err     error
	calls   int
}

func (f *fakeNative) NativeSearch(_ context.Context, _ SearchQuery) ([]SearchResult, error) {
	f.calls++
	return f.results, f.err
}

// countingSource wraps memoryStore to count scans.
type countingSource struct {
	*memoryStore
	loads int
}

func (c *countingSource) LoadTenant(ctx context.Context, tenantID int64) ([]Chunk, error) {
	c.loads++
	return c.memoryStore.LoadTenant(ctx, tenantID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
