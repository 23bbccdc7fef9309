package commands

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/spf13/cobra"

	"github.com/54b3r/botrag-go/internal/einoadapter"
	"github.com/54b3r/botrag-go/internal/logging"
)

// embeddedText is one element of `botrag embed` output.
type embeddedText struct {
	Text       string    `json:"text"`
	Dimensions int       `json:"dimensions"`
	Embedding  []float64 `json:"embedding"`
}

// NewEmbedCmd constructs the `botrag embed` command, which prints the
// embedding of each argument. The output can be pasted into the
// queryEmbedding or embedding fields of the HTTP API.
func NewEmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed [text...]",
		Short: "Print the embedding of one or more texts",
		Long: `Embed every argument with the configured provider and print the vectors
as JSON. The Redis cache is used when REDIS_URL is set; the vector store is
not opened.

Examples:
  botrag embed "how do I reset my password?"
  botrag embed "first passage" "second passage"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			rt := &runtime{}
			defer rt.Close()
			if err := rt.openEmbedder(ctx, settings, log, nil); err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			e, err := einoadapter.NewEmbedder(rt.embedder)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}

			out, err := embedTexts(ctx, e, args)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// embedTexts embeds texts in one call and pairs each vector with its input.
func embedTexts(ctx context.Context, e embedding.Embedder, texts []string) ([]embeddedText, error) {
	vecs, err := e.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	out := make([]embeddedText, len(texts))
	for i := range texts {
		out[i] = embeddedText{Text: texts[i], Dimensions: len(vecs[i]), Embedding: vecs[i]}
	}
	return out, nil
}
