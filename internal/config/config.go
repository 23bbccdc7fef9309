// Package config provides configuration for botrag.
// Configuration is loaded with a layered precedence: defaults → .env / YAML file → env vars.
// Environment variables always win, so existing deployments are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. BOTRAG_CONFIG environment variable
//  3. ~/.botrag/config.yaml
//  4. ./botrag.yaml
//
// After the file layers are applied, [FromEnv] builds the [Settings] struct
// that is passed into every component constructor.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type File struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingFile `yaml:"embedding"`

	// Store configures the vector store backend.
	Store StoreFile `yaml:"store"`

	// Retrieval configures search defaults.
	Retrieval RetrievalFile `yaml:"retrieval"`

	// Cache configures the redis embedding cache.
	Cache CacheFile `yaml:"cache"`

	// Server configures the HTTP server.
	Server ServerFile `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingFile `yaml:"logging"`
}

// EmbeddingFile holds embedding provider settings.
type EmbeddingFile struct {
	// Provider selects the backend: huggingface, google, openai, azure, ollama.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
	// MaxAttempts bounds the retry loop.
	MaxAttempts int `yaml:"max_attempts"`
	// RetryBaseMS is the first backoff delay in milliseconds.
	RetryBaseMS int `yaml:"retry_base_ms"`
	// TimeoutSeconds bounds a single HTTP call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Concurrency is the batch worker count.
	Concurrency int `yaml:"concurrency"`
}

// StoreFile holds vector store settings.
type StoreFile struct {
	// Driver selects the backend: postgres, sqlite, qdrant, supabase.
	Driver string `yaml:"driver"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `yaml:"database_url"`
	// SQLitePath is the SQLite database file.
	SQLitePath string `yaml:"sqlite_path"`
	// CoerceInvalid is reject or zero.
	CoerceInvalid string `yaml:"coerce_invalid"`
	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantFile `yaml:"qdrant"`
	// Supabase holds Supabase project settings.
	Supabase SupabaseFile `yaml:"supabase"`
}

// QdrantFile holds Qdrant vector store settings.
type QdrantFile struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// SupabaseFile holds Supabase settings.
type SupabaseFile struct {
	URL string `yaml:"url"`
	// Key is the service key. Prefer env var SUPABASE_KEY.
	Key string `yaml:"key"`
}

// RetrievalFile holds search defaults.
type RetrievalFile struct {
	TopK             int     `yaml:"top_k"`
	Threshold        float64 `yaml:"threshold"`
	Exhaustive       bool    `yaml:"exhaustive"`
	ContextMaxTokens int     `yaml:"context_max_tokens"`
}

// CacheFile holds embedding cache settings.
type CacheFile struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

// ServerFile holds HTTP server settings.
type ServerFile struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var BOTRAG_API_KEY.
	APIKey         string  `yaml:"api_key"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	CORSOrigins    string  `yaml:"cors_origins"`
	TrustedProxies string  `yaml:"trusted_proxies"`
}

// LoggingFile holds structured logging settings.
type LoggingFile struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*File) string
}{
	{"EMBEDDING_PROVIDER", func(c *File) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *File) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *File) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *File) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *File) string { return c.Embedding.Endpoint }},
	{"AZURE_OPENAI_API_VERSION", func(c *File) string { return c.Embedding.APIVersion }},
	{"EMBEDDING_MAX_ATTEMPTS", func(c *File) string { return intStr(c.Embedding.MaxAttempts) }},
	{"EMBEDDING_RETRY_BASE_MS", func(c *File) string { return intStr(c.Embedding.RetryBaseMS) }},
	{"EMBEDDING_TIMEOUT_SECONDS", func(c *File) string { return intStr(c.Embedding.TimeoutSeconds) }},
	{"EMBEDDING_CONCURRENCY", func(c *File) string { return intStr(c.Embedding.Concurrency) }},
	{"VECTOR_STORE", func(c *File) string { return c.Store.Driver }},
	{"DATABASE_URL", func(c *File) string { return c.Store.DatabaseURL }},
	{"SQLITE_PATH", func(c *File) string { return c.Store.SQLitePath }},
	{"VECTOR_COERCE_INVALID", func(c *File) string { return c.Store.CoerceInvalid }},
	{"QDRANT_HOST", func(c *File) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *File) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *File) string { return c.Store.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *File) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *File) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"SUPABASE_URL", func(c *File) string { return c.Store.Supabase.URL }},
	{"SUPABASE_KEY", func(c *File) string { return c.Store.Supabase.Key }},
	{"RETRIEVAL_TOP_K", func(c *File) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_THRESHOLD", func(c *File) string { return float64Str(c.Retrieval.Threshold) }},
	{"RETRIEVAL_EXHAUSTIVE", func(c *File) string { return boolStr(c.Retrieval.Exhaustive) }},
	{"CONTEXT_MAX_TOKENS", func(c *File) string { return intStr(c.Retrieval.ContextMaxTokens) }},
	{"REDIS_URL", func(c *File) string { return c.Cache.RedisURL }},
	{"EMBEDDING_CACHE_TTL", func(c *File) string { return c.Cache.TTL }},
	{"BOTRAG_HOST", func(c *File) string { return c.Server.Host }},
	{"BOTRAG_PORT", func(c *File) string { return intStr(c.Server.Port) }},
	{"BOTRAG_API_KEY", func(c *File) string { return c.Server.APIKey }},
	{"BOTRAG_RATE_LIMIT_RPS", func(c *File) string { return float64Str(c.Server.RateLimitRPS) }},
	{"BOTRAG_RATE_LIMIT_BURST", func(c *File) string { return intStr(c.Server.RateLimitBurst) }},
	{"BOTRAG_CORS_ORIGINS", func(c *File) string { return c.Server.CORSOrigins }},
	{"BOTRAG_TRUSTED_PROXIES", func(c *File) string { return c.Server.TrustedProxies }},
	{"LOG_LEVEL", func(c *File) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *File) string { return c.Logging.Format }},
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("BOTRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".botrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("botrag.yaml"); err == nil {
		return "botrag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 4, 64), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
