// Package rag defines the retrieval pipeline: chunk and query types, the
// vector store and embedder contracts, cosine ranking, the native/scan search
// strategy, the retrieval orchestrator and the answer assembler.
// Concrete backends (Postgres, SQLite, Qdrant, Supabase) live in package store
// and satisfy these interfaces so callers never depend on a specific backend.
package rag

import (
	"context"
	"time"
)

// Chunk is the unit of retrieval: a span of text with its embedding,
// scoped to a tenant (bot) and the document it was split from.
type Chunk struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// TenantID scopes every query. Chunks are never returned across tenants.
	TenantID int64 `json:"botId"`

	// DocumentID identifies the source document. Many chunks share one.
	DocumentID string `json:"documentId"`

	// Filename is the original file name, kept for provenance display.
	Filename string `json:"filename,omitempty"`

	// Text is the raw chunk content. Never empty.
	Text string `json:"text"`

	// Embedding has the dimension of the model used at write time.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata is an open JSON-like map carrying provenance.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChunkInput is the caller-supplied part of a Chunk.
type ChunkInput struct {
	TenantID   int64
	DocumentID string
	Filename   string
	Text       string
	Embedding  []float32
	Metadata   map[string]any
}

// SearchQuery is an ephemeral, tenant-scoped similarity query.
type SearchQuery struct {
	TenantID  int64
	Embedding []float32
	// K is the maximum number of results.
	K int
	// Threshold excludes results whose similarity is not strictly greater.
	Threshold float64
}

// SearchResult is one entry of a ranked result list.
type SearchResult struct {
	ID         string         `json:"id"`
	TenantID   int64          `json:"botId"`
	DocumentID string         `json:"documentId"`
	Filename   string         `json:"filename,omitempty"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// Score is the cosine similarity in [-1, 1].
	Score float64 `json:"score"`
}

// VectorStore persists chunks and answers tenant-scoped similarity queries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Save validates and persists one chunk, returning it with id and timestamps.
	Save(ctx context.Context, in ChunkInput) (*Chunk, error)

	// SaveBatch persists chunks as one logical batch. Each backend documents
	// whether the batch is all-or-nothing.
	SaveBatch(ctx context.Context, in []ChunkInput) ([]Chunk, error)

	// DeleteByDocument removes every chunk of documentID owned by tenantID
	// and returns the number removed.
	DeleteByDocument(ctx context.Context, tenantID int64, documentID string) (int64, error)

	// CountByDocument counts chunks of documentID. tenantID <= 0 counts across tenants.
	CountByDocument(ctx context.Context, documentID string, tenantID int64) (int64, error)

	// Search runs the two-tier search: native operator first, scan fallback
	// when the operator is unavailable.
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)

	// SimilaritySearch always uses the in-process scan and applies no threshold.
	SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int) ([]SearchResult, error)

	// Close releases any resources held by the store.
	Close() error
}

// DocumentReplacer is implemented by stores that can swap a document's
// chunks in one transaction. Either the old chunks are deleted and every
// new chunk is stored, or nothing changes.
type DocumentReplacer interface {
	ReplaceDocument(ctx context.Context, tenantID int64, documentID string, in []ChunkInput) (deleted int64, chunks []Chunk, err error)
}

// Embedder converts text into a dense vector.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
