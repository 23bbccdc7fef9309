package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/botrag-go/internal/ingestion"
	"github.com/54b3r/botrag-go/internal/logging"
	"github.com/54b3r/botrag-go/internal/rag"
	"github.com/54b3r/botrag-go/internal/server"
)

// startupProbeTimeout bounds the dependency check run before listening.
const startupProbeTimeout = 10 * time.Second

// NewServeCmd constructs the `botrag serve` command, which starts the HTTP
// server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var strict bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the botrag HTTP server",
		Long: `Start the botrag HTTP server.

The server exposes the vector store, retrieval, RAG query and ingestion
endpoints, plus /api/health, /api/ready and /metrics.

Examples:
  botrag serve
  botrag serve --port 9090
  VECTOR_STORE=postgres DATABASE_URL=postgres://... botrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			reg := prometheus.DefaultRegisterer

			rt, err := buildRuntime(ctx, settings, log, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.Close()

			retriever, err := rt.retriever(settings.Retrieval, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			assembler := rag.NewAssembler(retriever, settings.Retrieval.ContextMaxTokens, log)

			pipeline, err := ingestion.NewPipeline(rt.client, rt.store, ingestion.Config{Logger: log})
			if err != nil {
				return fmt.Errorf("serve: failed to create ingestion pipeline: %w", err)
			}

			coerce, err := rag.ParseCoercionPolicy(settings.Store.CoerceInvalid)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := buildPingers(rt)
			if err := checkDependencies(ctx, pingers, log); err != nil && strict {
				return fmt.Errorf("serve: %w", err)
			}

			if cmd.Flags().Changed("host") || settings.Server.Host == "" {
				settings.Server.Host = host
			}
			if cmd.Flags().Changed("port") || settings.Server.Port == 0 {
				settings.Server.Port = port
			}

			srv, err := server.New(server.Deps{
				Store:     rt.store,
				Embedder:  rt.embedder,
				Retriever: retriever,
				Assembler: assembler,
				Ingester:  pipeline,
			}, &server.Config{
				Host:        settings.Server.Host,
				Port:        settings.Server.Port,
				Logger:      log,
				Pingers:     pingers,
				RateLimit:   settings.Server.RateLimitRPS,
				RateBurst:   settings.Server.RateLimitBurst,
				APIKey:      settings.Server.APIKey,
				CORSOrigins: settings.Server.CORSOrigins,
				Coerce:      coerce,

				TrustedProxies: settings.Server.TrustedProxies,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides BOTRAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides BOTRAG_PORT)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Refuse to start when a dependency is unreachable")

	return cmd
}

// buildPingers returns the readiness probes for the store, the embedding
// cache and a self-hosted embedding endpoint, in that order.
func buildPingers(rt *runtime) []server.Pinger {
	pingers := []server.Pinger{rt.store}
	if rt.cache != nil {
		pingers = append(pingers, rt.cache)
	}
	if settings.Embedding.Endpoint != "" {
		pingers = append(pingers, server.NewHTTPPinger(rt.client.Name(), settings.Embedding.Endpoint))
	}
	return pingers
}

// checkDependencies probes every dependency once at startup. A failure is
// logged; the caller decides whether it is fatal.
func checkDependencies(ctx context.Context, pingers []server.Pinger, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	if err := server.NewMultiPinger(pingers...).Ping(ctx); err != nil {
		log.Warn("startup dependency check failed", slog.String("error", err.Error()))
		return err
	}
	log.Info("startup dependency check passed", slog.Int("dependencies", len(pingers)))
	return nil
}
