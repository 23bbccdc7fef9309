package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the process-wide configuration, built once at startup by
// [FromEnv] and handed to constructors by value.
type Settings struct {
	Embedding EmbeddingSettings
	Store     StoreSettings
	Retrieval RetrievalSettings
	Cache     CacheSettings
	Server    ServerSettings
	Logging   LoggingSettings
}

// EmbeddingSettings configures the embedding provider.
type EmbeddingSettings struct {
	// Provider is one of huggingface, google, openai, azure, ollama.
	Provider string
	// Model is the embedding model name. Empty selects the provider default.
	Model string
	// APIKey authenticates against the provider. Empty means not configured
	// for providers that require a key.
	APIKey string
	// Endpoint overrides the provider base URL.
	Endpoint string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions requests a specific vector size where the provider supports it.
	Dimensions int
	// MaxAttempts is the total number of calls made per text, including the first.
	MaxAttempts int
	// RetryBase is the first backoff delay; attempt n waits RetryBase*2^(n-1).
	RetryBase time.Duration
	// Timeout bounds one HTTP call.
	Timeout time.Duration
	// Concurrency is the batch worker count. 1 processes batches sequentially.
	Concurrency int
}

// StoreSettings configures the vector store backend.
type StoreSettings struct {
	// Driver is one of postgres, sqlite, qdrant, supabase.
	Driver string
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string
	// SQLitePath is the SQLite file path (":memory:" allowed).
	SQLitePath string
	// CoerceInvalid is "reject" or "zero" and controls how non-numeric
	// vector elements are handled on save.
	CoerceInvalid string
	Qdrant        QdrantSettings
	Supabase      SupabaseSettings
}

// QdrantSettings holds Qdrant connection parameters.
type QdrantSettings struct {
	Host       string
	Port       int
	Collection string
	APIKey     string
	UseTLS     bool
}

// SupabaseSettings holds Supabase project parameters.
type SupabaseSettings struct {
	URL string
	Key string
}

// RetrievalSettings holds query-time defaults.
type RetrievalSettings struct {
	// TopK is the default result count.
	TopK int
	// Threshold is the minimum similarity for the two-tier search.
	Threshold float64
	// Exhaustive routes retrieval through the brute-force scan only.
	Exhaustive bool
	// ContextMaxTokens caps the assembled context. 0 disables the cap.
	ContextMaxTokens int
}

// CacheSettings configures the redis embedding cache.
type CacheSettings struct {
	// RedisURL enables the cache when non-empty.
	RedisURL string
	TTL      time.Duration
}

// ServerSettings configures the HTTP server.
type ServerSettings struct {
	Host           string
	Port           int
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	// TrustedProxies lists proxy addresses or CIDRs whose forwarded
	// headers identify the client for rate limiting.
	TrustedProxies []string
}

// LoggingSettings configures the slog handler.
type LoggingSettings struct {
	Level  string
	Format string
}

// Defaults applied by FromEnv when a key is unset.
const (
	DefaultEmbeddingProvider = "huggingface"
	DefaultMaxAttempts       = 3
	DefaultRetryBase         = time.Second
	DefaultTimeout           = 30 * time.Second
	DefaultStoreDriver       = "sqlite"
	DefaultSQLitePath        = "botrag.db"
	DefaultQdrantPort        = 6334
	DefaultQdrantCollection  = "botrag"
	DefaultTopK              = 5
	DefaultThreshold         = 0.7
	DefaultCacheTTL          = 24 * time.Hour
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8080
)

// FromEnv builds Settings from environment variables. Malformed numeric or
// duration values are reported together in a single error.
func FromEnv() (Settings, error) {
	r := &envReader{}

	s := Settings{
		Embedding: EmbeddingSettings{
			Provider:    strings.ToLower(r.str("EMBEDDING_PROVIDER", DefaultEmbeddingProvider)),
			Model:       r.str("EMBEDDING_MODEL", ""),
			APIKey:      r.str("EMBEDDING_API_KEY", ""),
			Endpoint:    r.str("EMBEDDING_ENDPOINT", ""),
			APIVersion:  r.str("AZURE_OPENAI_API_VERSION", ""),
			Dimensions:  r.integer("EMBEDDING_DIMENSIONS", 0),
			MaxAttempts: r.integer("EMBEDDING_MAX_ATTEMPTS", DefaultMaxAttempts),
			RetryBase:   time.Duration(r.integer("EMBEDDING_RETRY_BASE_MS", int(DefaultRetryBase/time.Millisecond))) * time.Millisecond,
			Timeout:     time.Duration(r.integer("EMBEDDING_TIMEOUT_SECONDS", int(DefaultTimeout/time.Second))) * time.Second,
			Concurrency: r.integer("EMBEDDING_CONCURRENCY", 1),
		},
		Store: StoreSettings{
			Driver:        strings.ToLower(r.str("VECTOR_STORE", DefaultStoreDriver)),
			DatabaseURL:   r.str("DATABASE_URL", ""),
			SQLitePath:    r.str("SQLITE_PATH", DefaultSQLitePath),
			CoerceInvalid: strings.ToLower(r.str("VECTOR_COERCE_INVALID", "reject")),
			Qdrant: QdrantSettings{
				Host:       r.str("QDRANT_HOST", "localhost"),
				Port:       r.integer("QDRANT_PORT", DefaultQdrantPort),
				Collection: r.str("QDRANT_COLLECTION", DefaultQdrantCollection),
				APIKey:     r.str("QDRANT_API_KEY", ""),
				UseTLS:     r.boolean("QDRANT_TLS", false),
			},
			Supabase: SupabaseSettings{
				URL: r.str("SUPABASE_URL", ""),
				Key: r.str("SUPABASE_KEY", ""),
			},
		},
		Retrieval: RetrievalSettings{
			TopK:             r.integer("RETRIEVAL_TOP_K", DefaultTopK),
			Threshold:        r.float("RETRIEVAL_THRESHOLD", DefaultThreshold),
			Exhaustive:       r.boolean("RETRIEVAL_EXHAUSTIVE", false),
			ContextMaxTokens: r.integer("CONTEXT_MAX_TOKENS", 0),
		},
		Cache: CacheSettings{
			RedisURL: r.str("REDIS_URL", ""),
			TTL:      r.duration("EMBEDDING_CACHE_TTL", DefaultCacheTTL),
		},
		Server: ServerSettings{
			Host:           r.str("BOTRAG_HOST", DefaultHost),
			Port:           r.integer("BOTRAG_PORT", DefaultPort),
			APIKey:         r.str("BOTRAG_API_KEY", ""),
			RateLimitRPS:   r.float("BOTRAG_RATE_LIMIT_RPS", 0),
			RateLimitBurst: r.integer("BOTRAG_RATE_LIMIT_BURST", 0),
			CORSOrigins:    splitList(r.str("BOTRAG_CORS_ORIGINS", "")),
			TrustedProxies: splitList(r.str("BOTRAG_TRUSTED_PROXIES", "")),
		},
		Logging: LoggingSettings{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
	}

	if s.Embedding.MaxAttempts < 1 {
		r.errs = append(r.errs, fmt.Errorf("EMBEDDING_MAX_ATTEMPTS must be >= 1, got %d", s.Embedding.MaxAttempts))
	}
	if s.Embedding.Concurrency < 1 {
		r.errs = append(r.errs, fmt.Errorf("EMBEDDING_CONCURRENCY must be >= 1, got %d", s.Embedding.Concurrency))
	}
	switch s.Store.CoerceInvalid {
	case "reject", "zero":
	default:
		r.errs = append(r.errs, fmt.Errorf("VECTOR_COERCE_INVALID must be reject or zero, got %q", s.Store.CoerceInvalid))
	}

	if len(r.errs) > 0 {
		return Settings{}, fmt.Errorf("config: invalid environment: %w", errors.Join(r.errs...))
	}
	return s, nil
}

// envReader reads typed values and accumulates parse errors.
type envReader struct {
	errs []error
}

func (r *envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (r *envReader) integer(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func (r *envReader) float(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return fallback
	}
	return f
}

func (r *envReader) boolean(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return fallback
	}
	return d
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
