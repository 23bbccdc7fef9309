package rag

import (
	"fmt"
	"math"
	"sort"
)

// DefaultTopK is the result count used when a caller passes k <= 0.
const DefaultTopK = 5

// DefaultThreshold is the minimum similarity of the two-tier search.
const DefaultThreshold = 0.7

// NoThreshold disables the similarity filter: every finite score passes.
var NoThreshold = math.Inf(-1)

// CosineSimilarity returns (Σ aᵢ·bᵢ) / (sqrt(Σ aᵢ²) · sqrt(Σ bᵢ²)).
// Sums are accumulated in float64 in index order so results are reproducible.
// A zero norm on either side yields 0. Vectors of different length return
// ErrDimensionMismatch; empty vectors return ErrEmptyVector.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Rank scores every chunk against query, keeps scores strictly greater than
// threshold, orders them by descending score and truncates to k. Chunks are
// expected in insertion order; equal scores keep that order.
//
// Rank is O(n·d) for n chunks of dimension d and holds every candidate in
// memory. It is the availability fallback for stores without a native
// operator, not a strategy for large tenants.
func Rank(chunks []Chunk, query []float32, k int, threshold float64) ([]SearchResult, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		k = DefaultTopK
	}

	results := make([]SearchResult, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		score, err := CosineSimilarity(c.Embedding, query)
		if err != nil {
			return nil, fmt.Errorf("rag: chunk %s: %w", c.ID, err)
		}
		if !(score > threshold) {
			continue
		}
		results = append(results, ResultFromChunk(c, score))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ResultFromChunk builds a SearchResult for c with the given score.
func ResultFromChunk(c *Chunk, score float64) SearchResult {
	return SearchResult{
		ID:         c.ID,
		TenantID:   c.TenantID,
		DocumentID: c.DocumentID,
		Filename:   c.Filename,
		Text:       c.Text,
		Metadata:   c.Metadata,
		Score:      score,
	}
}
