package store

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/54b3r/botrag-go/internal/rag"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testOptions() Options {
	return Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return fixedNow },
	}
}

// unitAt returns a 2-D unit vector whose cosine similarity with [1, 0] is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func input(tenant int64, doc, text string, vec []float32) rag.ChunkInput {
	return rag.ChunkInput{TenantID: tenant, DocumentID: doc, Filename: doc + ".pdf", Text: text, Embedding: vec}
}

func Test_FiniteScores(t *testing.T) {
	t.Parallel()

	in := []rag.SearchResult{
		{ID: "zero", Score: math.NaN()},
		{ID: "high", Score: 0.9},
		{ID: "neg", Score: -0.2},
	}
	got := finiteScores(append([]rag.SearchResult(nil), in...), rag.NoThreshold)
	if len(got) != 3 || got[0].ID != "high" || got[1].ID != "zero" || got[1].Score != 0 || got[2].ID != "neg" {
		t.Errorf("no threshold = %+v", got)
	}

	got = finiteScores(append([]rag.SearchResult(nil), in...), 0)
	if len(got) != 1 || got[0].ID != "high" {
		t.Errorf("threshold 0 = %+v, want only high", got)
	}
}
