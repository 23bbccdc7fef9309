// Package ingestion implements the document ingestion pipeline. It loads a
// document (text, markdown, HTML or PDF, uploaded or fetched by URL),
// chunks the content, embeds each chunk, and saves the results to the
// vector store. Re-ingesting a document replaces its chunks. The pipeline
// is invoked by the `botrag ingest` command and the POST /ingest endpoint.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/botrag-go/internal/embedder"
	"github.com/54b3r/botrag-go/internal/rag"
	"github.com/54b3r/botrag-go/internal/version"
)

// BatchEmbedder embeds many texts with per-item failure reporting.
// *embedder.Client satisfies it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) (*embedder.BatchResult, error)
}

// Document is one document to ingest.
type Document struct {
	// TenantID is the owning bot.
	TenantID int64

	// DocumentID identifies the document; existing chunks with this id are replaced.
	DocumentID string

	// Name is the file name or URL, used to infer the format and source label.
	Name string

	// ContentType is the optional media type of Content.
	ContentType string

	// Content is the raw document bytes.
	Content []byte

	// Metadata is merged into every chunk's metadata.
	Metadata map[string]any
}

// Chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// HTTPTimeout is the timeout for each URL fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// MaxBytes caps the size of a fetched document. Defaults to 20 MiB.
	MaxBytes int64

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Result summarises one ingested document.
type Result struct {
	DocumentID string `json:"documentId"`
	// Format is the detected document format.
	Format string `json:"format"`
	// Chunks is the number of chunks the text was split into.
	Chunks int `json:"chunks"`
	// Stored is the number of chunks embedded and saved.
	Stored int `json:"stored"`
	// Failed is the number of chunks whose embedding failed.
	Failed int `json:"failed"`
	// Replaced is the number of chunks removed from a previous ingestion.
	Replaced int64 `json:"replaced"`
}

// Pipeline orchestrates the load → chunk → embed → save flow.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder BatchEmbedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg Config

	// httpClient is the HTTP client used for fetching documents by URL.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(emb BatchEmbedder, store rag.VectorStore, cfg Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent() + " (document ingestion)"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pipeline{
		embedder: emb,
		store:    store,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest extracts, chunks, embeds and stores doc. Existing chunks of the
// document are deleted first. Chunks whose embedding fails are skipped and
// counted; the call fails only when no chunk could be embedded.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Result, error) {
	if doc.TenantID <= 0 {
		return nil, rag.ErrInvalidTenant
	}
	if strings.TrimSpace(doc.DocumentID) == "" {
		return nil, rag.ErrMissingDocumentID
	}
	log := p.cfg.Logger.With(
		slog.Int64("tenant_id", doc.TenantID),
		slog.String("document_id", doc.DocumentID),
	)

	meta := InferMetadata(doc.Name, doc.ContentType)
	text, err := ExtractText(doc.Content, meta.Format)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %s: %w", doc.Name, err)
	}

	chunks := Chunk(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingestion: %s: %w", doc.Name, ErrNoContent)
	}
	log.Info("ingestion: document chunked",
		slog.String("format", meta.Format),
		slog.Int("chunks", len(chunks)),
	)

	res := &Result{DocumentID: doc.DocumentID, Format: meta.Format, Chunks: len(chunks)}

	batch, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingestion: embedding failed for %s: %w", doc.Name, err)
	}
	res.Failed = len(batch.Failed)

	inputs := make([]rag.ChunkInput, 0, len(batch.Embedded))
	for _, e := range batch.Embedded {
		md := maps.Clone(doc.Metadata)
		if md == nil {
			md = map[string]any{}
		}
		setDefault(md, "source", meta.Source)
		setDefault(md, "title", meta.Title)
		md["format"] = meta.Format
		md["documentId"] = doc.DocumentID
		md["filename"] = filename(doc.Name, meta)
		md["chunkIndex"] = e.Index
		md["totalChunks"] = len(chunks)

		inputs = append(inputs, rag.ChunkInput{
			TenantID:   doc.TenantID,
			DocumentID: doc.DocumentID,
			Filename:   filename(doc.Name, meta),
			Text:       e.Text,
			Embedding:  e.Embedding,
			Metadata:   md,
		})
	}

	var saved []rag.Chunk
	res.Replaced, saved, err = p.replace(ctx, doc, inputs)
	if err != nil {
		return nil, fmt.Errorf("ingestion: save failed for %s: %w", doc.Name, err)
	}
	res.Stored = len(saved)

	log.Info("ingestion: document stored",
		slog.Int("stored", res.Stored),
		slog.Int("failed", res.Failed),
		slog.Int64("replaced", res.Replaced),
	)
	return res, nil
}

// replace swaps the document's chunks for inputs. Stores implementing
// rag.DocumentReplacer do it atomically; elsewhere the old chunks are
// deleted first, so a failed save leaves the document empty.
func (p *Pipeline) replace(ctx context.Context, doc Document, inputs []rag.ChunkInput) (int64, []rag.Chunk, error) {
	if r, ok := p.store.(rag.DocumentReplacer); ok {
		return r.ReplaceDocument(ctx, doc.TenantID, doc.DocumentID, inputs)
	}
	deleted, err := p.store.DeleteByDocument(ctx, doc.TenantID, doc.DocumentID)
	if err != nil {
		return 0, nil, fmt.Errorf("removing previous chunks: %w", err)
	}
	saved, err := p.store.SaveBatch(ctx, inputs)
	if err != nil {
		return deleted, nil, err
	}
	return deleted, saved, nil
}

// IngestURL fetches rawURL and ingests it as documentID.
func (p *Pipeline) IngestURL(ctx context.Context, tenantID int64, documentID, rawURL string, metadata map[string]any) (*Result, error) {
	content, contentType, err := p.fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("ingestion: fetch failed for %s: %w", rawURL, err)
	}
	return p.Ingest(ctx, Document{
		TenantID:    tenantID,
		DocumentID:  documentID,
		Name:        rawURL,
		ContentType: contentType,
		Content:     content,
		Metadata:    metadata,
	})
}

// fetch retrieves the raw bytes and content type of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html, application/pdf")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > p.cfg.MaxBytes {
		return nil, "", fmt.Errorf("document exceeds %d bytes", p.cfg.MaxBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// filename is the provenance name stored with each chunk.
func filename(name string, meta InferredMetadata) string {
	if meta.Source != "" {
		return meta.Source
	}
	return name
}

func setDefault(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
