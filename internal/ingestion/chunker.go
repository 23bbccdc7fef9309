package ingestion

import (
	"strings"
	"unicode"
)

// Chunk splits text into pieces of at most size runes, each starting
// overlap runes before the end of the previous one. A cut is moved back to
// the last whitespace in the second half of the window so words stay
// whole. Chunks that are blank after trimming are dropped.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes[start+size/2 : end]); cut >= 0 {
			end = start + size/2 + cut + 1
		}

		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSpace returns the index of the last whitespace rune in r, or -1.
func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return -1
}
