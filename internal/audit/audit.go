// Package audit provides a structured audit logger for CLI command invocations.
// It logs the command name, the config file source and the resolved settings
// so operators can trace what happened without exposing secret values.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/botrag-go/internal/config"
)

// LogCommandStart emits a structured audit log entry when a CLI command begins.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string, s config.Settings) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
		slog.Group("embedding",
			slog.String("provider", s.Embedding.Provider),
			slog.String("model", valOrUnset(s.Embedding.Model)),
			slog.String("endpoint", valOrUnset(s.Embedding.Endpoint)),
			slog.String("api_key", presence(s.Embedding.APIKey)),
			slog.Int("max_attempts", s.Embedding.MaxAttempts),
			slog.Int("concurrency", s.Embedding.Concurrency),
		),
		slog.Group("store",
			slog.String("driver", s.Store.Driver),
			slog.String("database_url", presence(s.Store.DatabaseURL)),
			slog.String("sqlite_path", valOrUnset(s.Store.SQLitePath)),
			slog.String("qdrant", s.Store.Qdrant.Host+":"+strconv.Itoa(s.Store.Qdrant.Port)),
			slog.String("qdrant_api_key", presence(s.Store.Qdrant.APIKey)),
			slog.String("supabase_url", valOrUnset(s.Store.Supabase.URL)),
			slog.String("supabase_key", presence(s.Store.Supabase.Key)),
			slog.String("coerce_invalid", s.Store.CoerceInvalid),
		),
		slog.Group("retrieval",
			slog.Int("top_k", s.Retrieval.TopK),
			slog.Float64("threshold", s.Retrieval.Threshold),
			slog.Bool("exhaustive", s.Retrieval.Exhaustive),
		),
		slog.String("redis_url", presence(s.Cache.RedisURL)),
		slog.String("server_api_key", presence(s.Server.APIKey)),
		slog.String("log_level", s.Logging.Level),
	}

	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
