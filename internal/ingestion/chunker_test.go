package ingestion

import (
	"slices"
	"strings"
	"testing"
)

func TestChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{name: "empty", text: "   ", size: 10, want: nil},
		{name: "shorter than size", text: "hello", size: 10, overlap: 2, want: []string{"hello"}},
		{name: "cuts at whitespace", text: "aaaa bbbb cccc dddd", size: 10, want: []string{"aaaa bbbb", "cccc dddd"}},
		{
			name:    "overlap without whitespace",
			text:    strings.Repeat("abcdefghij", 3),
			size:    10,
			overlap: 2,
			want:    []string{"abcdefghij", "ijabcdefgh", "ghijabcdef", "efghij"},
		},
		{name: "multibyte runes", text: "ééééé", size: 2, want: []string{"éé", "éé", "é"}},
		{name: "invalid size", text: "hello", size: 0, want: nil},
		{name: "overlap not smaller than size", text: "abcdef", size: 3, overlap: 3, want: []string{"abc", "def"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Chunk(tc.text, tc.size, tc.overlap)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Chunk() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChunk_RespectsSize(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 50)
	chunks := Chunk(text, 120, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 120 {
			t.Errorf("chunk %d has %d runes, want <= 120", i, n)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk %d is not trimmed: %q", i, c)
		}
	}
}
