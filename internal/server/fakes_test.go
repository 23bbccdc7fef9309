package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/botrag-go/internal/ingestion"
	"github.com/54b3r/botrag-go/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes shared by the server tests
// ---------------------------------------------------------------------------

// memStore is an in-memory rag.VectorStore ranked with rag.Rank.
type memStore struct {
	mu     sync.Mutex
	chunks []rag.Chunk
	// lastQuery records the most recent Search call.
	lastQuery rag.SearchQuery
	// err fails every call when set.
	err error
}

func (m *memStore) Save(_ context.Context, in rag.ChunkInput) (*rag.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, err := rag.NewChunk(in, rag.CoerceReject, time.Unix(0, 0).UTC(), nil)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, c)
	return &c, nil
}

func (m *memStore) SaveBatch(_ context.Context, in []rag.ChunkInput) ([]rag.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]rag.Chunk, 0, len(in))
	for _, ci := range in {
		c, err := rag.NewChunk(ci, rag.CoerceReject, time.Unix(0, 0).UTC(), nil)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, out...)
	return out, nil
}

func (m *memStore) DeleteByDocument(_ context.Context, tenantID int64, documentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []rag.Chunk
	var n int64
	for _, c := range m.chunks {
		if c.TenantID == tenantID && c.DocumentID == documentID {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return n, nil
}

func (m *memStore) CountByDocument(_ context.Context, documentID string, tenantID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.chunks {
		if c.DocumentID == documentID && (tenantID <= 0 || c.TenantID == tenantID) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) tenant(tenantID int64) []rag.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rag.Chunk
	for _, c := range m.chunks {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out
}

func (m *memStore) Search(_ context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.lastQuery = q
	m.mu.Unlock()
	if len(q.Embedding) == 0 {
		return nil, rag.ErrEmptyVector
	}
	return rag.Rank(m.tenant(q.TenantID), q.Embedding, q.K, q.Threshold)
}

func (m *memStore) SimilaritySearch(_ context.Context, tenantID int64, vec []float32, k int) ([]rag.SearchResult, error) {
	if len(vec) == 0 {
		return nil, rag.ErrEmptyVector
	}
	return rag.Rank(m.tenant(tenantID), vec, k, rag.NoThreshold)
}

func (m *memStore) Close() error { return nil }

// fakeEmbedder returns vec or err and records the last text.
type fakeEmbedder struct {
	mu   sync.Mutex
	vec  []float32
	err  error
	last string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

// fakeRetriever returns fixed results.
type fakeRetriever struct {
	results []rag.SearchResult
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ int64, query string, _ int) ([]rag.SearchResult, error) {
	if query == "" {
		return nil, rag.ErrEmptyQuery
	}
	return f.results, f.err
}

func (f *fakeRetriever) PrepareContext(ctx context.Context, tenantID int64, query string, k int) (string, error) {
	res, err := f.Retrieve(ctx, tenantID, query, k)
	if err != nil {
		return "", err
	}
	return rag.RenderContext(res), nil
}

// fakeAssembler returns ans.
type fakeAssembler struct {
	ans rag.Answer
}

func (f *fakeAssembler) Answer(_ context.Context, _ int64, query string, _ int) rag.Answer {
	a := f.ans
	a.Query = query
	return a
}

// fakeIngester records the last document or URL.
type fakeIngester struct {
	mu      sync.Mutex
	lastDoc ingestion.Document
	lastURL string
	err     error
}

func (f *fakeIngester) Ingest(_ context.Context, doc ingestion.Document) (*ingestion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDoc = doc
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.Result{DocumentID: doc.DocumentID, Chunks: 2, Stored: 2}, nil
}

func (f *fakeIngester) IngestURL(_ context.Context, _ int64, documentID, rawURL string, _ map[string]any) (*ingestion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURL = rawURL
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.Result{DocumentID: documentID, Chunks: 1, Stored: 1}, nil
}

var errBoom = errors.New("boom")

// testEnv bundles a Server with its fakes and isolated registry.
type testEnv struct {
	srv       *Server
	store     *memStore
	embedder  *fakeEmbedder
	retriever *fakeRetriever
	assembler *fakeAssembler
	ingester  *fakeIngester
	reg       *prometheus.Registry
}

// newTestEnv builds a Server over fresh fakes. mutate adjusts the config
// before construction.
func newTestEnv(mutate ...func(*Config)) *testEnv {
	env := &testEnv{
		store:     &memStore{},
		embedder:  &fakeEmbedder{vec: []float32{1, 0}},
		retriever: &fakeRetriever{},
		assembler: &fakeAssembler{ans: rag.Answer{Message: rag.NoInformationMessage, Sources: []rag.Source{}}},
		ingester:  &fakeIngester{},
		reg:       prometheus.NewRegistry(),
	}
	cfg := &Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		MetricsRegistry: env.reg,
		MetricsGatherer: env.reg,
		RateLimit:       1000,
		RateBurst:       1000,
	}
	for _, m := range mutate {
		m(cfg)
	}
	srv, err := New(Deps{
		Store:     env.store,
		Embedder:  env.embedder,
		Retriever: env.retriever,
		Assembler: env.assembler,
		Ingester:  env.ingester,
	}, cfg)
	if err != nil {
		panic(err)
	}
	env.srv = srv
	return env
}

// newTestServer returns a Server over fresh fakes.
func newTestServer() *Server {
	return newTestEnv().srv
}
