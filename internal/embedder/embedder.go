// Package embedder implements the embedding provider: it turns text into a
// dense vector through a remote inference API, validating input and output
// and retrying failed calls with exponential backoff.
//
// Backends (HuggingFace, Google, OpenAI/Azure, Ollama) only know how to make
// one call. [Client] adds validation, retry, batching and metrics on top and
// satisfies rag.Embedder.
package embedder

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Backend performs a single embedding call for one text. Implementations
// return a non-empty vector or an error; they do not retry.
type Backend interface {
	// Name identifies the backend in logs, metrics and cache keys.
	Name() string
	// Model is the embedding model in use.
	Model() string
	// EmbedText calls the provider once.
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// DefaultTimeout bounds one HTTP call to a provider.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// readErrorBody returns a trimmed prefix of the response body for error messages.
func readErrorBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(b))
}
