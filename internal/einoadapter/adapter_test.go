package einoadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/retriever"

	"github.com/54b3r/botrag-go/internal/rag"
)

// fakeChunkRetriever returns results and records its arguments.
type fakeChunkRetriever struct {
	results []rag.SearchResult
	err     error

	tenantID int64
	query    string
	k        int
}

func (f *fakeChunkRetriever) Retrieve(_ context.Context, tenantID int64, query string, k int) ([]rag.SearchResult, error) {
	f.tenantID, f.query, f.k = tenantID, query, k
	return f.results, f.err
}

func sampleResults() []rag.SearchResult {
	return []rag.SearchResult{
		{ID: "c1", TenantID: 3, DocumentID: "d1", Filename: "a.pdf", Text: strings.Repeat("a", 40), Score: 0.91, Metadata: map[string]any{"page": 1}},
		{ID: "c2", TenantID: 3, DocumentID: "d1", Text: strings.Repeat("b", 40), Score: 0.75},
		{ID: "c3", TenantID: 3, DocumentID: "d2", Text: strings.Repeat("c", 40), Score: 0.40},
	}
}

func TestRetriever_ConvertsResults(t *testing.T) {
	t.Parallel()

	inner := &fakeChunkRetriever{results: sampleResults()}
	r, err := NewRetriever(inner, RetrieverConfig{TenantID: 3, TopK: 4})
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}

	docs, err := r.Retrieve(context.Background(), "reset password")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if inner.tenantID != 3 || inner.query != "reset password" || inner.k != 4 {
		t.Errorf("inner called with tenant=%d query=%q k=%d", inner.tenantID, inner.query, inner.k)
	}
	if len(docs) != 3 {
		t.Fatalf("len(docs) = %d, want 3", len(docs))
	}

	first := docs[0]
	if first.ID != "c1" || first.Score() != 0.91 {
		t.Errorf("first doc = %+v score=%v", first, first.Score())
	}
	if first.MetaData[MetaDocumentID] != "d1" || first.MetaData[MetaFilename] != "a.pdf" || first.MetaData["page"] != 1 {
		t.Errorf("metadata = %v", first.MetaData)
	}
	if _, ok := docs[1].MetaData[MetaFilename]; ok {
		t.Error("empty filename should not be set")
	}
}

func TestRetriever_Options(t *testing.T) {
	t.Parallel()

	inner := &fakeChunkRetriever{results: sampleResults()}
	r, _ := NewRetriever(inner, RetrieverConfig{TenantID: 3})

	docs, err := r.Retrieve(context.Background(), "q",
		retriever.WithTopK(2),
		retriever.WithScoreThreshold(0.75),
		WithTenantID(9),
	)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if inner.k != 2 || inner.tenantID != 9 {
		t.Errorf("inner called with k=%d tenant=%d", inner.k, inner.tenantID)
	}
	if len(docs) != 1 || docs[0].ID != "c1" {
		t.Errorf("threshold should keep only c1, got %d docs", len(docs))
	}
}

func TestRetriever_TokenBudget(t *testing.T) {
	t.Parallel()

	// Each document is 40 chars (10 tokens) plus 4 tokens of overhead.
	r, _ := NewRetriever(&fakeChunkRetriever{results: sampleResults()}, RetrieverConfig{TenantID: 3, MaxTokens: 30})

	docs, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("len(docs) = %d, want 2", len(docs))
	}
}

func TestRetriever_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, RetrieverConfig{}); err == nil {
		t.Error("expected error for nil retriever")
	}

	r, _ := NewRetriever(&fakeChunkRetriever{}, RetrieverConfig{})
	if _, err := r.Retrieve(context.Background(), "q"); !errors.Is(err, rag.ErrInvalidTenant) {
		t.Errorf("missing tenant: error = %v", err)
	}

	r, _ = NewRetriever(&fakeChunkRetriever{err: rag.ErrEmptyQuery}, RetrieverConfig{TenantID: 1})
	if _, err := r.Retrieve(context.Background(), " "); !errors.Is(err, rag.ErrEmptyQuery) {
		t.Errorf("error = %v, want ErrEmptyQuery", err)
	}
}

// vecEmbedder returns [len(text), 0.5] and fails on "bad".
type vecEmbedder struct{}

func (vecEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "bad" {
		return nil, errors.New("provider down")
	}
	return []float32{float32(len(text)), 0.5}, nil
}

func TestEmbedder_EmbedStrings(t *testing.T) {
	t.Parallel()

	e, err := NewEmbedder(vecEmbedder{})
	if err != nil {
		t.Fatalf("NewEmbedder() error = %v", err)
	}

	got, err := e.EmbedStrings(context.Background(), []string{"ab", "abcd"})
	if err != nil {
		t.Fatalf("EmbedStrings() error = %v", err)
	}
	if len(got) != 2 || got[0][0] != 2 || got[1][0] != 4 || got[1][1] != 0.5 {
		t.Errorf("EmbedStrings() = %v", got)
	}

	if _, err := e.EmbedStrings(context.Background(), []string{"ok", "bad"}); err == nil || !strings.Contains(err.Error(), "text 1") {
		t.Errorf("error = %v, want failure on text 1", err)
	}
	if _, err := NewEmbedder(nil); err == nil {
		t.Error("expected error for nil embedder")
	}
}
