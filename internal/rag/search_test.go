package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// tenantFixture returns a store where tenant 1 has chunk A (similarity ~0.9
// to query) and chunk B (~0.5), and tenant 2 has an exact match.
func tenantFixture() (*memoryStore, []float32) {
	query := []float32{1, 0}
	return &memoryStore{chunks: []Chunk{
		{ID: "a", TenantID: 1, Text: "A", Embedding: []float32{0.9, 0.43589}},
		{ID: "b", TenantID: 1, Text: "B", Embedding: []float32{0.5, 0.86603}},
		{ID: "other", TenantID: 2, Text: "other tenant", Embedding: []float32{1, 0}},
	}}, query
}

func alwaysAvailable(context.Context) (bool, error) { return true, nil }
func neverAvailable(context.Context) (bool, error)  { return false, nil }

func TestHybridSearcher_ScanAppliesThresholdAndTenant(t *testing.T) {
	t.Parallel()

	store, query := tenantFixture()
	h := NewHybridSearcher(context.Background(), nil, store, nil, WithSearchLogger(discardLogger()))

	got, err := h.Search(context.Background(), SearchQuery{TenantID: 1, Embedding: query, K: 5, Threshold: 0.7})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Text != "A" {
		t.Fatalf("want exactly [A], got %+v", got)
	}
	if h.Selected() != StrategyScan {
		t.Errorf("Selected = %s, want scan", h.Selected())
	}
}

func TestHybridSearcher_ProbeDisablesNative(t *testing.T) {
	t.Parallel()

	store, query := tenantFixture()
	native := &fakeNative{}
	h := NewHybridSearcher(context.Background(), native, store, neverAvailable, WithSearchLogger(discardLogger()))

	if _, err := h.Search(context.Background(), SearchQuery{TenantID: 1, Embedding: query, K: 5, Threshold: 0.7}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if native.calls != 0 {
		t.Errorf("native called %d times after negative probe", native.calls)
	}
}

func TestHybridSearcher_NativeSuccess(t *testing.T) {
	t.Parallel()

	store, query := tenantFixture()
	src := &countingSource{memoryStore: store}
	native := &fakeNative{results: []SearchResult{{ID: "n", Score: 0.99}}}
	h := NewHybridSearcher(context.Background(), native, src, alwaysAvailable, WithSearchLogger(discardLogger()))

	got, err := h.Search(context.Background(), SearchQuery{TenantID: 1, Embedding: query, K: 5, Threshold: 0.7})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "n" {
		t.Errorf("expected native results, got %+v", got)
	}
	if src.loads != 0 {
		t.Errorf("scan ran %d times on native success", src.loads)
	}
}

func TestHybridSearcher_FallsBackOnOperatorError(t *testing.T) {
	t.Parallel()

	store, query := tenantFixture()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	native := &fakeNative{err: ClassifyOperatorError(errors.New("operator does not exist: real[] <=> vector"), "<=>")}
	h := NewHybridSearcher(context.Background(), native, store, alwaysAvailable,
		WithSearchLogger(discardLogger()), WithSearchMetrics(m))

	q := SearchQuery{TenantID: 1, Embedding: query, K: 5, Threshold: 0.7}
	got, err := h.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search should fall back, got %v", err)
	}
	if len(got) != 1 || got[0].Text != "A" {
		t.Fatalf("fallback results = %+v", got)
	}
	if h.Selected() != StrategyScan {
		t.Errorf("native strategy should be disabled after operator error")
	}

	if _, err := h.Search(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if native.calls != 1 {
		t.Errorf("native called %d times, want 1", native.calls)
	}
	if v := testutil.ToFloat64(m.fallbacks); v != 1 {
		t.Errorf("fallbacks = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.searches.WithLabelValues(StrategyScan)); v != 2 {
		t.Errorf("scan searches = %v, want 2", v)
	}
}

func TestHybridSearcher_OtherNativeErrorSurfaces(t *testing.T) {
	t.Parallel()

	store, query := tenantFixture()
	src := &countingSource{memoryStore: store}
	boom := errors.New("connection reset")
	native := &fakeNative{err: boom}
	h := NewHybridSearcher(context.Background(), native, src, alwaysAvailable, WithSearchLogger(discardLogger()))

	_, err := h.Search(context.Background(), SearchQuery{TenantID: 1, Embedding: query, K: 5, Threshold: 0.7})
	if !errors.Is(err, boom) {
		t.Fatalf("expected driver error, got %v", err)
	}
	if src.loads != 0 {
		t.Error("generic native errors must not trigger the scan")
	}
	if h.Selected() != StrategyNative {
		t.Error("native strategy should stay enabled after a generic error")
	}
}

func TestHybridSearcher_ProbeErrorKeepsNative(t *testing.T) {
	t.Parallel()

	store, _ := tenantFixture()
	probe := func(context.Context) (bool, error) { return false, errors.New("permission denied") }
	h := NewHybridSearcher(context.Background(), &fakeNative{}, store, probe, WithSearchLogger(discardLogger()))
	if h.Selected() != StrategyNative {
		t.Errorf("Selected = %s, want native", h.Selected())
	}
}

func TestHybridSearcher_EmptyEmbedding(t *testing.T) {
	t.Parallel()

	store, _ := tenantFixture()
	native := &fakeNative{}
	h := NewHybridSearcher(context.Background(), native, store, alwaysAvailable, WithSearchLogger(discardLogger()))

	_, err := h.Search(context.Background(), SearchQuery{TenantID: 1, K: 5})
	if err == nil || err.Error() != "vector must have at least 1 dimension" {
		t.Errorf("Search: unexpected error %v", err)
	}
	_, err = h.Scan(context.Background(), 1, []float32{}, 5)
	if !errors.Is(err, ErrEmptyVector) {
		t.Errorf("Scan: unexpected error %v", err)
	}
	if native.calls != 0 {
		t.Error("native must not be called with an empty embedding")
	}
}

func TestHybridSearcher_ScanIgnoresNativeAndThreshold(t *testing.T) {
	t.Parallel()

	store, query := tenantFixture()
	native := &fakeNative{}
	h := NewHybridSearcher(context.Background(), native, store, alwaysAvailable, WithSearchLogger(discardLogger()))

	got, err := h.Scan(context.Background(), 1, query, 5)
	if err != nil {
		t.Fatal(err)
	}
	if native.calls != 0 {
		t.Error("Scan must not try the native strategy")
	}
	if len(got) != 2 || got[0].Text != "A" || got[1].Text != "B" {
		t.Errorf("Scan results = %+v", got)
	}
}
