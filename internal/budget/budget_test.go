package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_FitBlocks(t *testing.T) {
	t.Parallel()

	// Each block: 4 overhead + 100 tokens = 104.
	block := strings.Repeat("x", 400)
	blocks := []string{block, block, block}

	cases := []struct {
		name      string
		maxTokens int
		want      int
	}{
		{"unlimited", 0, 3},
		{"all fit", 400, 3},
		{"two fit", 250, 2},
		{"first always kept", 10, 1},
	}
	for _, tc := range cases {
		if got := FitBlocks(blocks, tc.maxTokens); got != tc.want {
			t.Errorf("%s: FitBlocks = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func Test_FitBlocks_Empty(t *testing.T) {
	t.Parallel()
	if got := FitBlocks(nil, 100); got != 0 {
		t.Errorf("FitBlocks(nil) = %d, want 0", got)
	}
}

func Test_TrimDocuments_DropsLowestRanked(t *testing.T) {
	t.Parallel()
	docs := []*schema.Document{
		{ID: "best", Content: strings.Repeat("a", 400)},
		{ID: "mid", Content: strings.Repeat("b", 400)},
		{ID: "worst", Content: strings.Repeat("c", 400)},
	}
	got := TrimDocuments(docs, 250)
	if len(got) != 2 {
		t.Fatalf("want 2 docs, got %d", len(got))
	}
	if got[0].ID != "best" || got[1].ID != "mid" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}
