package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/botrag-go/internal/logging"
	"github.com/54b3r/botrag-go/internal/rag"
)

// NewContextCmd constructs the `botrag context` command, which prints the
// context block and sources a downstream answer generator would receive.
func NewContextCmd() *cobra.Command {
	var (
		botID    int64
		k        int
		asJSON   bool
		maxToken int
	)

	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Print the retrieved context for a query",
		Long: `Retrieve the chunks of a bot relevant to the query and print them as
the rendered context block, or as the full structured answer with --json.

Examples:
  botrag context --bot 7 "what are the opening hours?"
  botrag context --bot 7 --json --max-tokens 1500 "shipping to Canada"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if err := requireBot(botID); err != nil {
				return fmt.Errorf("context: %w", err)
			}
			if !cmd.Flags().Changed("max-tokens") {
				maxToken = settings.Retrieval.ContextMaxTokens
			}

			rt, err := buildRuntime(ctx, settings, log, nil)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			defer rt.Close()

			retriever, err := rt.retriever(settings.Retrieval, log)
			if err != nil {
				return fmt.Errorf("context: %w", err)
			}
			ans := rag.NewAssembler(retriever, maxToken, log).Answer(ctx, botID, args[0], k)

			if asJSON {
				return printJSON(cmd.OutOrStdout(), ans)
			}
			if ans.Error != "" {
				return fmt.Errorf("context: %s", ans.Error)
			}
			if !ans.Found {
				fmt.Fprintln(cmd.OutOrStdout(), ans.Message)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Context)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&botID, "bot", "b", 0, "Bot (tenant) id to query")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Maximum chunks in the context (default RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured answer with sources")
	cmd.Flags().IntVar(&maxToken, "max-tokens", 0, "Cap the context size in estimated tokens (default CONTEXT_MAX_TOKENS)")

	return cmd
}
