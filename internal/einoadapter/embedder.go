package einoadapter

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/54b3r/botrag-go/internal/rag"
)

// Embedder implements embedding.Embedder over a rag.Embedder.
type Embedder struct {
	inner rag.Embedder
}

var _ embedding.Embedder = (*Embedder)(nil)

// NewEmbedder wraps e.
func NewEmbedder(e rag.Embedder) (*Embedder, error) {
	if e == nil {
		return nil, fmt.Errorf("einoadapter: embedder must not be nil")
	}
	return &Embedder{inner: e}, nil
}

// EmbedStrings embeds every text in order. Unlike a batch ingest, one
// failed text fails the whole call, since eino callers expect one vector
// per input.
func (e *Embedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.inner.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("einoadapter: text %d: %w", i, err)
		}
		out[i] = make([]float64, len(vec))
		for j, v := range vec {
			out[i][j] = float64(v)
		}
	}
	return out, nil
}
