package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/54b3r/botrag-go/internal/rag"
)

// Cache stores embeddings by key. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns the vector for key and whether it was present.
	Get(ctx context.Context, key string) ([]float32, bool, error)
	// Set stores vec under key for ttl.
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// RedisCache is a Cache backed by redis. Vectors are stored as JSON arrays.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the redis server described by url
// (redis://[user:password@]host:port/db).
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("embedder: parse redis url: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embedder: redis get: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(b, &vec); err != nil {
		return nil, false, fmt.Errorf("embedder: decode cached vector: %w", err)
	}
	return vec, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	b, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("embedder: encode vector: %w", err)
	}
	if err := c.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("embedder: redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity; it satisfies the server's Pinger interface.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Name returns the dependency name used in readiness reports.
func (c *RedisCache) Name() string { return "redis" }

// Close closes the underlying client.
func (c *RedisCache) Close() error { return c.client.Close() }

// CachedEmbedder serves repeated texts from a Cache before calling the
// wrapped embedder. Cache failures are logged and treated as misses.
type CachedEmbedder struct {
	next      rag.Embedder
	cache     Cache
	ttl       time.Duration
	namespace string
	log       *slog.Logger
	metrics   *Metrics
}

// NewCachedEmbedder wraps next. namespace should identify the provider and
// model so vectors from different models never mix.
func NewCachedEmbedder(next rag.Embedder, cache Cache, namespace string, ttl time.Duration, log *slog.Logger, metrics *Metrics) *CachedEmbedder {
	if log == nil {
		log = slog.Default()
	}
	return &CachedEmbedder{next: next, cache: cache, ttl: ttl, namespace: namespace, log: log, metrics: metrics}
}

// Embed implements rag.Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, rag.ErrEmptyText
	}

	key := c.Key(text)
	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.observeCache("error")
		c.log.Warn("embedder: cache lookup failed", slog.String("error", err.Error()))
	case ok && len(vec) > 0:
		c.metrics.observeCache("hit")
		return vec, nil
	default:
		c.metrics.observeCache("miss")
	}

	vec, err = c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec, c.ttl); err != nil {
		c.log.Warn("embedder: cache store failed", slog.String("error", err.Error()))
	}
	return vec, nil
}

// Key returns the cache key for text.
func (c *CachedEmbedder) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "botrag:emb:" + c.namespace + ":" + hex.EncodeToString(sum[:])
}
