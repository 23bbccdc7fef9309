// Package commands defines all Cobra CLI commands for the botrag binary.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/botrag-go/internal/audit"
	"github.com/54b3r/botrag-go/internal/config"
	"github.com/54b3r/botrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// settings is resolved once in PersistentPreRunE and read by every command.
var settings config.Settings

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "botrag",
		Short: "botrag: tenant-scoped document retrieval for chat bots",
		Long: `botrag stores document chunks with their embeddings per bot (tenant) and
answers similarity queries with ranked chunks and a rendered context block
for a downstream answer generator.

The embedding provider is selected via EMBEDDING_PROVIDER and the vector
store via VECTOR_STORE, from the environment, a .env file or a YAML config
file (~/.botrag/config.yaml).
See 'botrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}

			// Bootstrap logger for config loading; replaced once settings resolve.
			boot := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
			path, err := config.Load(configPath, boot)
			if err != nil {
				return err
			}

			settings, err = config.FromEnv()
			if err != nil {
				return err
			}

			log := logging.New(logging.Options{Level: settings.Logging.Level, Format: settings.Logging.Format})
			slog.SetDefault(log)
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(ctx, log, cmd.Name(), path, settings)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.botrag/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; missing files are ignored")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewEmbedCmd(),
		NewContextCmd(),
		NewCountCmd(),
		NewDeleteCmd(),
		NewVersionCmd(),
	)

	return root
}

// requireBot validates a --bot flag value.
func requireBot(botID int64) error {
	if botID <= 0 {
		return fmt.Errorf("--bot must be a positive integer")
	}
	return nil
}
