package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/botrag-go/internal/logging"
)

// NewCountCmd constructs the `botrag count` command.
func NewCountCmd() *cobra.Command {
	var botID int64

	cmd := &cobra.Command{
		Use:   "count [documentId]",
		Short: "Print the number of stored chunks of a document",
		Long: `Print the number of stored chunks of a document. Without --bot the count
spans every bot.

Examples:
  botrag count handbook
  botrag count --bot 7 handbook`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			rt, err := buildRuntime(ctx, settings, log, nil)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			defer rt.Close()

			n, err := rt.store.CountByDocument(ctx, args[0], botID)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&botID, "bot", "b", 0, "Restrict the count to one bot")
	return cmd
}

// NewDeleteCmd constructs the `botrag delete` command.
func NewDeleteCmd() *cobra.Command {
	var botID int64

	cmd := &cobra.Command{
		Use:   "delete [documentId]",
		Short: "Delete every chunk of a document for one bot",
		Long: `Delete every stored chunk of a document owned by the given bot. Other
bots' chunks with the same document id are left untouched.

Example:
  botrag delete --bot 7 handbook`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if err := requireBot(botID); err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			rt, err := buildRuntime(ctx, settings, log, nil)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			defer rt.Close()

			n, err := rt.store.DeleteByDocument(ctx, botID, args[0])
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			log.Info("document chunks deleted",
				slog.Int64("tenant_id", botID),
				slog.String("document_id", args[0]),
				slog.Int64("deleted", n),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d chunks\n", n)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&botID, "bot", "b", 0, "Bot (tenant) id that owns the document")
	return cmd
}
