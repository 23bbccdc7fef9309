package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/54b3r/botrag-go/internal/budget"
)

// PreviewLength is the maximum number of characters in a source preview.
const PreviewLength = 150

// NoInformationMessage is returned when retrieval finds nothing relevant.
const NoInformationMessage = "No relevant information was found in the documents for this question."

// ContextFoundMessage accompanies a successful retrieval.
const ContextFoundMessage = "Relevant context was found in the documents."

// ChunkRetriever is the part of Retriever the Assembler depends on.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, tenantID int64, query string, k int) ([]SearchResult, error)
}

// Source describes one chunk that contributed to the context.
type Source struct {
	DocumentID  string  `json:"documentId"`
	Source      string  `json:"source"`
	Similarity  float64 `json:"similarity"`
	TextPreview string  `json:"textPreview"`
}

// Answer is the structured result handed to a downstream consumer that
// turns context into a final reply.
type Answer struct {
	Query   string   `json:"query"`
	Message string   `json:"message"`
	Context string   `json:"context"`
	Sources []Source `json:"sources"`
	// Found is false when no relevant chunk was retrieved or retrieval failed.
	Found bool `json:"found"`
	// Error describes a failed retrieval. Empty on success.
	Error string `json:"error,omitempty"`
	// Retryable is set when the failure may succeed on a later attempt.
	Retryable bool `json:"retryable,omitempty"`
}

// Assembler wraps retrieval output into an Answer. It never calls a
// language model.
type Assembler struct {
	retriever ChunkRetriever
	// maxTokens caps the rendered context; 0 disables the cap.
	maxTokens int
	log       *slog.Logger
}

// NewAssembler constructs an Assembler. log may be nil.
func NewAssembler(r ChunkRetriever, maxContextTokens int, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{retriever: r, maxTokens: maxContextTokens, log: log}
}

// Answer retrieves context for query and returns it with its sources.
// Failures are folded into the returned Answer rather than returned as
// errors: this is the user-facing end of the pipeline.
func (a *Assembler) Answer(ctx context.Context, tenantID int64, query string, k int) Answer {
	ans := Answer{Query: query, Sources: []Source{}}

	results, err := a.retriever.Retrieve(ctx, tenantID, query, k)
	if err != nil {
		a.log.Warn("rag: answer retrieval failed",
			slog.Int64("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		ans.Message = NoInformationMessage
		ans.Error = err.Error()
		ans.Retryable = errors.Is(err, ErrEmptyVector) || !IsValidation(err)
		return ans
	}
	if len(results) == 0 {
		ans.Message = NoInformationMessage
		return ans
	}

	blocks := make([]string, len(results))
	for i := range results {
		blocks[i] = renderBlock(i+1, &results[i])
	}
	kept := budget.FitBlocks(blocks, a.maxTokens)
	if kept < len(results) {
		a.log.Debug("rag: context trimmed to token budget",
			slog.Int("kept", kept),
			slog.Int("retrieved", len(results)),
		)
	}

	ans.Found = true
	ans.Message = ContextFoundMessage
	ans.Context = strings.Join(blocks[:kept], "\n\n")
	ans.Sources = make([]Source, kept)
	for i := range kept {
		ans.Sources[i] = sourceOf(&results[i])
	}
	return ans
}

// sourceOf derives provenance for a result: metadata first, then columns.
func sourceOf(res *SearchResult) Source {
	docID := metadataString(res.Metadata, "documentId")
	if docID == "" {
		docID = res.DocumentID
	}
	if docID == "" {
		docID = "unknown"
	}

	label := metadataString(res.Metadata, "source")
	if label == "" {
		label = res.Filename
	}
	if label == "" {
		label = "unknown"
	}

	return Source{
		DocumentID:  docID,
		Source:      label,
		Similarity:  res.Score,
		TextPreview: Preview(res.Text, PreviewLength),
	}
}

// Preview returns the first n characters of text, followed by "..." when
// text was longer.
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
