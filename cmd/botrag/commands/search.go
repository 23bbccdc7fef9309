package commands

import (
	"fmt"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/spf13/cobra"

	"github.com/54b3r/botrag-go/internal/einoadapter"
	"github.com/54b3r/botrag-go/internal/logging"
	"github.com/54b3r/botrag-go/internal/rag"
)

// searchHit is one line of `botrag search` output.
type searchHit struct {
	ID         string  `json:"id"`
	DocumentID any     `json:"documentId"`
	Filename   any     `json:"filename,omitempty"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

// NewSearchCmd constructs the `botrag search` command, which embeds a query
// and prints the ranked chunks of one bot.
func NewSearchCmd() *cobra.Command {
	var (
		botID      int64
		k          int
		minScore   float64
		threshold  float64
		exhaustive bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Print the chunks of a bot most similar to a query",
		Long: `Embed the query text and print the top-k chunks of the bot ranked by
cosine similarity.

By default the two-tier search is used with RETRIEVAL_THRESHOLD; --exhaustive
scans every chunk of the bot with no threshold.

Examples:
  botrag search --bot 7 "how do I reset my password?"
  botrag search --bot 7 -k 10 --exhaustive "refund policy"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if err := requireBot(botID); err != nil {
				return fmt.Errorf("search: %w", err)
			}

			rs := settings.Retrieval
			if cmd.Flags().Changed("exhaustive") {
				rs.Exhaustive = exhaustive
			}
			if cmd.Flags().Changed("threshold") {
				rs.Threshold = threshold
			}

			rt, err := buildRuntime(ctx, settings, log, nil)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer rt.Close()

			inner, err := rt.retriever(rs, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			r, err := einoadapter.NewRetriever(inner, einoadapter.RetrieverConfig{TopK: k})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			opts := []retriever.Option{einoadapter.WithTenantID(botID)}
			if cmd.Flags().Changed("min-score") {
				opts = append(opts, retriever.WithScoreThreshold(minScore))
			}
			docs, err := r.Retrieve(ctx, args[0], opts...)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			hits := make([]searchHit, len(docs))
			for i, doc := range docs {
				hits[i] = searchHit{
					ID:         doc.ID,
					DocumentID: doc.MetaData[einoadapter.MetaDocumentID],
					Filename:   doc.MetaData[einoadapter.MetaFilename],
					Score:      doc.Score(),
					Preview:    rag.Preview(doc.Content, rag.PreviewLength),
				}
			}
			return printJSON(cmd.OutOrStdout(), hits)
		},
	}

	cmd.Flags().Int64VarP(&botID, "bot", "b", 0, "Bot (tenant) id to search")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of chunks to return (default RETRIEVAL_TOP_K)")
	cmd.Flags().Float64Var(&threshold, "threshold", rag.DefaultThreshold, "Minimum similarity of the two-tier search")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results whose score is not above this value")
	cmd.Flags().BoolVar(&exhaustive, "exhaustive", false, "Scan every chunk of the bot with no threshold")

	return cmd
}
