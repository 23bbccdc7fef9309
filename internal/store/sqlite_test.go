package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/54b3r/botrag-go/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", opts)
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_SQLite_SaveAndLoad(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	in := input(1, "doc-1", "hello", []float32{0.5, 0.25})
	in.Metadata = map[string]any{"source": "upload", "page": 2}
	saved, err := s.Save(ctx, in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" || !saved.CreatedAt.Equal(fixedNow) || !saved.UpdatedAt.Equal(fixedNow) {
		t.Errorf("saved chunk missing id or timestamps: %+v", saved)
	}

	chunks, err := s.LoadTenant(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	got := chunks[0]
	if got.ID != saved.ID || got.Text != "hello" || got.Filename != "doc-1.pdf" {
		t.Errorf("loaded chunk = %+v", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[1] != 0.25 {
		t.Errorf("embedding = %v", got.Embedding)
	}
	if got.Metadata["source"] != "upload" || got.Metadata["page"] != float64(2) {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("created_at = %v", got.CreatedAt)
	}
}

func Test_SQLite_EmptyEmbeddingRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	_, err := s.Save(ctx, input(1, "doc-1", "hello", nil))
	if !errors.Is(err, rag.ErrEmptyVector) {
		t.Fatalf("save err = %v", err)
	}
	if !strings.Contains(err.Error(), "vector must have at least 1 dimension") {
		t.Errorf("message = %q", err.Error())
	}

	_, err = s.Search(ctx, rag.SearchQuery{TenantID: 1, K: 5, Threshold: 0.7})
	if !errors.Is(err, rag.ErrEmptyVector) {
		t.Errorf("search err = %v", err)
	}
	_, err = s.SimilaritySearch(ctx, 1, []float32{}, 5)
	if !errors.Is(err, rag.ErrEmptyVector) {
		t.Errorf("similarity search err = %v", err)
	}
}

func Test_SQLite_InvalidElementPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vec := []float32{0.1, float32(math.NaN())}

	reject := openTestStore(t, testOptions())
	if _, err := reject.Save(ctx, input(1, "d", "x", vec)); !errors.Is(err, rag.ErrInvalidVectorElement) {
		t.Errorf("reject policy: err = %v", err)
	}

	opts := testOptions()
	opts.Coerce = rag.CoerceZero
	zero := openTestStore(t, opts)
	saved, err := zero.Save(ctx, input(1, "d", "x", vec))
	if err != nil {
		t.Fatalf("zero policy: %v", err)
	}
	if saved.Embedding[1] != 0 {
		t.Errorf("coerced embedding = %v", saved.Embedding)
	}
}

func Test_SQLite_SearchThreshold(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	if _, err := s.SaveBatch(ctx, []rag.ChunkInput{
		input(1, "doc-a", "A", unitAt(0.9)),
		input(1, "doc-b", "B", unitAt(0.5)),
	}); err != nil {
		t.Fatalf("save batch: %v", err)
	}

	res, err := s.Search(ctx, rag.SearchQuery{TenantID: 1, Embedding: []float32{1, 0}, K: 5, Threshold: 0.7})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Text != "A" {
		t.Fatalf("want only A, got %+v", res)
	}
	if math.Abs(res[0].Score-0.9) > 1e-6 {
		t.Errorf("score = %v", res[0].Score)
	}
	if s.SearchStrategy() != rag.StrategyScan {
		t.Errorf("strategy = %q, want scan without sqlite-vec", s.SearchStrategy())
	}

	all, err := s.SimilaritySearch(ctx, 1, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("similarity search: %v", err)
	}
	if len(all) != 2 || all[0].Text != "A" || all[1].Text != "B" {
		t.Errorf("similarity search = %+v", all)
	}
}

func Test_SQLite_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		if _, err := s.Save(ctx, input(1, "doc", text, []float32{1, 1})); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	res, err := s.SimilaritySearch(ctx, 1, []float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if res[i].Text != want {
			t.Errorf("res[%d] = %q, want %q", i, res[i].Text, want)
		}
	}
}

func Test_SQLite_TenantIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	if _, err := s.Save(ctx, input(1, "doc", "from bot 1", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, input(2, "doc", "from bot 2", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}

	res, err := s.Search(ctx, rag.SearchQuery{TenantID: 2, Embedding: []float32{1, 0}, K: 5, Threshold: 0.7})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Text != "from bot 2" || res[0].TenantID != 2 {
		t.Errorf("tenant 2 results = %+v", res)
	}
}

func Test_SQLite_DeleteAndCount(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	if _, err := s.SaveBatch(ctx, []rag.ChunkInput{
		input(1, "D1", "a", []float32{1}),
		input(1, "D1", "b", []float32{1}),
		input(2, "D1", "c", []float32{1}),
	}); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.CountByDocument(ctx, "D1", 1); n != 2 {
		t.Errorf("count tenant 1 = %d, want 2", n)
	}
	if n, _ := s.CountByDocument(ctx, "D1", 0); n != 3 {
		t.Errorf("count all tenants = %d, want 3", n)
	}

	deleted, err := s.DeleteByDocument(ctx, 1, "D1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if n, _ := s.CountByDocument(ctx, "D1", 1); n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
	if n, _ := s.CountByDocument(ctx, "D1", 2); n != 1 {
		t.Errorf("other tenant's chunks were deleted: count = %d", n)
	}
}

func Test_SQLite_DeleteValidation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())

	if _, err := s.DeleteByDocument(context.Background(), 0, "D1"); !errors.Is(err, rag.ErrInvalidTenant) {
		t.Errorf("tenant 0: err = %v", err)
	}
	if _, err := s.DeleteByDocument(context.Background(), 1, " "); !errors.Is(err, rag.ErrMissingDocumentID) {
		t.Errorf("blank document: err = %v", err)
	}
}

func Test_SQLite_SaveBatchIsAllOrNothing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	_, err := s.SaveBatch(ctx, []rag.ChunkInput{
		input(1, "D1", "good", []float32{1}),
		input(1, "D1", "   ", []float32{1}),
	})
	if !errors.Is(err, rag.ErrEmptyText) {
		t.Fatalf("err = %v", err)
	}
	if n, _ := s.CountByDocument(ctx, "D1", 1); n != 0 {
		t.Errorf("partial batch persisted: count = %d", n)
	}
}

func Test_SQLite_NativeSearchWithoutExtension(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())

	_, err := s.NativeSearch(context.Background(), rag.SearchQuery{TenantID: 1, Embedding: []float32{1}, K: 5})
	if !errors.Is(err, rag.ErrOperatorUnavailable) {
		t.Errorf("err = %v, want ErrOperatorUnavailable", err)
	}
}

func Test_SQLite_ReplaceDocument(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, testOptions())
	ctx := context.Background()

	if _, err := s.SaveBatch(ctx, []rag.ChunkInput{
		input(1, "D1", "old a", []float32{1}),
		input(1, "D1", "old b", []float32{1}),
		input(2, "D1", "other tenant", []float32{1}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, chunks, err := s.ReplaceDocument(ctx, 1, "D1", []rag.ChunkInput{input(1, "D1", "new", []float32{1})})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if deleted != 2 || len(chunks) != 1 {
		t.Errorf("replace = %d deleted, %d chunks", deleted, len(chunks))
	}
	loaded, err := s.LoadTenant(ctx, 1)
	if err != nil || len(loaded) != 1 || loaded[0].Text != "new" {
		t.Errorf("tenant 1 after replace = %+v, %v", loaded, err)
	}
	if n, _ := s.CountByDocument(ctx, "D1", 2); n != 1 {
		t.Errorf("other tenant count = %d, want 1", n)
	}

	// An invalid chunk leaves the document untouched.
	_, _, err = s.ReplaceDocument(ctx, 1, "D1", []rag.ChunkInput{
		input(1, "D1", "fine", []float32{1}),
		input(1, "D1", "   ", []float32{1}),
	})
	if !errors.Is(err, rag.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if n, _ := s.CountByDocument(ctx, "D1", 1); n != 1 {
		t.Errorf("count after failed replace = %d, want 1", n)
	}
}
