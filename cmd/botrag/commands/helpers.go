package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/botrag-go/internal/config"
	"github.com/54b3r/botrag-go/internal/embedder"
	"github.com/54b3r/botrag-go/internal/rag"
	"github.com/54b3r/botrag-go/internal/store"
)

// runtime bundles the components shared by every command that touches the
// store or the embedding provider.
type runtime struct {
	store    store.Store
	client   *embedder.Client
	embedder rag.Embedder
	// cache is nil when REDIS_URL is unset.
	cache *embedder.RedisCache

	ragMetrics *rag.Metrics
}

// buildRuntime opens the configured store and embedding provider. reg may be
// nil, in which case no metrics are recorded.
func buildRuntime(ctx context.Context, s config.Settings, log *slog.Logger, reg prometheus.Registerer) (*runtime, error) {
	rt := &runtime{}

	var embMetrics *embedder.Metrics
	if reg != nil {
		rt.ragMetrics = rag.NewMetrics(reg)
		embMetrics = embedder.NewMetrics(reg)
	}
	if err := rt.openEmbedder(ctx, s, log, embMetrics); err != nil {
		rt.Close()
		return nil, err
	}

	vectorSize := embedder.DefaultDimensions(s.Embedding.Provider, s.Embedding.Dimensions)
	st, err := store.Open(ctx, s.Store, vectorSize, log, rt.ragMetrics)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	rt.store = st
	log.Info("vector store ready", slog.String("store", st.Name()))

	return rt, nil
}

// openEmbedder sets up the embedding client and, when REDIS_URL is set,
// the cache in front of it.
func (rt *runtime) openEmbedder(ctx context.Context, s config.Settings, log *slog.Logger, embMetrics *embedder.Metrics) error {
	embedder.WarnIfChatModel(s.Embedding, log)
	client, err := embedder.NewFromSettings(ctx, s.Embedding, log, embMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialise embedder: %w", err)
	}
	rt.client = client
	rt.embedder = client
	log.Info("embedder initialised",
		slog.String("provider", client.Name()),
		slog.String("model", client.Model()),
	)

	if s.Cache.RedisURL != "" {
		cache, err := embedder.NewRedisCache(s.Cache.RedisURL)
		if err != nil {
			return err
		}
		rt.cache = cache
		rt.embedder = embedder.NewCachedEmbedder(client, cache, client.Name()+":"+client.Model(), s.Cache.TTL, log, embMetrics)
		log.Info("embedding cache enabled", slog.Duration("ttl", s.Cache.TTL))
	}
	return nil
}

// retriever builds the retrieval orchestrator from the retrieval settings.
func (rt *runtime) retriever(s config.RetrievalSettings, log *slog.Logger) (*rag.Retriever, error) {
	return rag.NewRetriever(rt.embedder, rt.store, rag.RetrieverConfig{
		TopK:       s.TopK,
		Threshold:  s.Threshold,
		Exhaustive: s.Exhaustive,
		Logger:     log,
		Metrics:    rt.ragMetrics,
	})
}

// Close releases the store and cache connections.
func (rt *runtime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
