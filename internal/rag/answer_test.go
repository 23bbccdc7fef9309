package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// stubRetriever returns scripted results.
type stubRetriever struct {
	results []SearchResult
	err     error
}

func (s stubRetriever) Retrieve(context.Context, int64, string, int) ([]SearchResult, error) {
	return s.results, s.err
}

func TestAssembler_NoInformation(t *testing.T) {
	t.Parallel()

	a := NewAssembler(stubRetriever{}, 0, discardLogger())
	got := a.Answer(context.Background(), 1, "what?", 5)

	if got.Found {
		t.Error("Found should be false")
	}
	if got.Message != NoInformationMessage {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Error != "" || got.Context != "" {
		t.Errorf("unexpected error/context: %+v", got)
	}
	if got.Sources == nil || len(got.Sources) != 0 {
		t.Errorf("Sources should be an empty list, got %#v", got.Sources)
	}
}

func TestAssembler_SourcesAndContext(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 200)
	a := NewAssembler(stubRetriever{results: []SearchResult{
		{DocumentID: "col-doc", Filename: "a.pdf", Text: "short", Score: 0.91,
			Metadata: map[string]any{"documentId": "meta-doc", "source": "upload"}},
		{DocumentID: "D2", Filename: "b.pdf", Text: long, Score: 0.8},
		{Text: "orphan", Score: 0.75},
	}}, 0, discardLogger())

	got := a.Answer(context.Background(), 1, "q", 5)
	if !got.Found || got.Message != ContextFoundMessage {
		t.Fatalf("unexpected answer: %+v", got)
	}
	if len(got.Sources) != 3 {
		t.Fatalf("want 3 sources, got %d", len(got.Sources))
	}

	s0 := got.Sources[0]
	if s0.DocumentID != "meta-doc" || s0.Source != "upload" || s0.Similarity != 0.91 || s0.TextPreview != "short" {
		t.Errorf("source 0 = %+v", s0)
	}
	s1 := got.Sources[1]
	if s1.DocumentID != "D2" || s1.Source != "b.pdf" {
		t.Errorf("source 1 = %+v", s1)
	}
	if s1.TextPreview != strings.Repeat("x", 150)+"..." {
		t.Errorf("preview not truncated: len=%d", len(s1.TextPreview))
	}
	s2 := got.Sources[2]
	if s2.DocumentID != "unknown" || s2.Source != "unknown" {
		t.Errorf("source 2 = %+v", s2)
	}
	if !strings.HasPrefix(got.Context, "[Document 1 from a.pdf]: short\n\n[Document 2 from b.pdf]: ") {
		t.Errorf("context = %q", got.Context)
	}
}

func TestAssembler_TokenBudgetTrimsLowestRanked(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("y", 400)
	a := NewAssembler(stubRetriever{results: []SearchResult{
		{Filename: "1", Text: text, Score: 0.9},
		{Filename: "2", Text: text, Score: 0.8},
		{Filename: "3", Text: text, Score: 0.7},
	}}, 250, discardLogger())

	got := a.Answer(context.Background(), 1, "q", 5)
	if len(got.Sources) != 2 {
		t.Fatalf("want 2 sources within budget, got %d", len(got.Sources))
	}
	if strings.Contains(got.Context, "[Document 3") {
		t.Error("lowest ranked block should be trimmed")
	}
}

func TestAssembler_FailuresAreFolded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"empty query", ErrEmptyQuery, false},
		{"empty vector", errors.Join(errors.New("rag: embedder returned empty vector"), ErrEmptyVector), true},
		{"provider failure", errors.New("embedding provider failure"), true},
	}
	for _, tt := range tests {
		a := NewAssembler(stubRetriever{err: tt.err}, 0, discardLogger())
		got := a.Answer(context.Background(), 1, "q", 5)
		if got.Found || got.Error == "" || got.Message != NoInformationMessage {
			t.Errorf("%s: unexpected answer %+v", tt.name, got)
		}
		if got.Retryable != tt.retryable {
			t.Errorf("%s: Retryable = %v, want %v", tt.name, got.Retryable, tt.retryable)
		}
	}
}

func TestPreview_CountsCharactersNotBytes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 151)
	got := Preview(text, 150)
	if got != strings.Repeat("é", 150)+"..." {
		t.Errorf("unexpected preview %q", got)
	}
	if Preview("ok", 150) != "ok" {
		t.Error("short text must be returned unchanged")
	}
}
