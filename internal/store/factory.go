package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/botrag-go/internal/config"
	"github.com/54b3r/botrag-go/internal/rag"
)

// Open constructs the backend selected by cfg.Driver. vectorSize is only
// used when a Qdrant collection has to be created.
func Open(ctx context.Context, cfg config.StoreSettings, vectorSize int, log *slog.Logger, metrics *rag.Metrics) (Store, error) {
	policy, err := rag.ParseCoercionPolicy(cfg.CoerceInvalid)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	opts := Options{Coerce: policy, Logger: log, Metrics: metrics}

	switch cfg.Driver {
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = config.DefaultSQLitePath
		}
		return OpenSQLite(ctx, path, opts)

	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("store: DATABASE_URL is required for the postgres store")
		}
		return OpenPostgres(ctx, cfg.DatabaseURL, opts)

	case "qdrant":
		if vectorSize < 0 {
			vectorSize = 0
		}
		return OpenQdrant(ctx, QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			VectorSize: uint64(vectorSize),
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
		}, opts)

	case "supabase":
		return OpenSupabase(ctx, cfg.Supabase.URL, cfg.Supabase.Key, opts)

	default:
		return nil, fmt.Errorf("store: unknown driver %q (valid: postgres, sqlite, qdrant, supabase)", cfg.Driver)
	}
}
