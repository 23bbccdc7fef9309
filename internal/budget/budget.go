// Package budget provides token budget estimation for assembled retrieval
// context. The downstream consumer may use any model and tokenizer, so this
// package uses a conservative character-based heuristic: 1 token ≈ 4
// characters (English prose and code).
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// blockOverhead approximates the separator and provenance tag added
	// around every context block.
	blockOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// FitBlocks returns how many leading blocks fit within maxTokens. Blocks are
// in ranked order, so the lowest-ranked ones are dropped first. maxTokens <= 0
// disables the cap. The first block is always kept so a single oversized
// chunk still yields context.
func FitBlocks(blocks []string, maxTokens int) int {
	if maxTokens <= 0 || len(blocks) == 0 {
		return len(blocks)
	}

	total := 0
	for i, b := range blocks {
		total += blockOverhead + Estimate(b)
		if total > maxTokens {
			if i == 0 {
				return 1
			}
			return i
		}
	}
	return len(blocks)
}

// TrimDocuments drops the lowest-ranked documents until the estimated size
// of the remaining contents fits maxTokens. maxTokens <= 0 returns docs as is.
func TrimDocuments(docs []*schema.Document, maxTokens int) []*schema.Document {
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	return docs[:FitBlocks(contents, maxTokens)]
}
