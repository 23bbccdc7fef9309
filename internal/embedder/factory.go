package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/botrag-go/internal/config"
)

// Default vector sizes of the default models.
const (
	defaultHuggingFaceDimensions = 384
	defaultOllamaDimensions      = 768
)

// DefaultDimensions returns the vector size of the given provider's default
// model. A positive override always wins. Callers that pre-create storage
// (e.g. a Qdrant collection) use this instead of hardcoding a value.
func DefaultDimensions(provider string, override int) int {
	if override > 0 {
		return override
	}
	switch provider {
	case "huggingface":
		return defaultHuggingFaceDimensions
	case "google":
		return defaultGoogleDimensions
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewBackend constructs the Backend selected by cfg.Provider. A provider
// that needs an API key and has none yields a backend whose every call
// fails with ErrNotConfigured, so the process can start and report the
// problem per request. Unknown providers are a configuration error.
func NewBackend(ctx context.Context, cfg config.EmbeddingSettings, log *slog.Logger) (Backend, error) {
	switch cfg.Provider {
	case "huggingface":
		if cfg.APIKey == "" {
			return notConfigured(log, cfg, "EMBEDDING_API_KEY (HuggingFace token) is not set"), nil
		}
		return NewHuggingFace(HuggingFaceConfig{
			Endpoint: cfg.Endpoint,
			Token:    cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
		}), nil

	case "google":
		b, err := NewGoogle(ctx, GoogleConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Endpoint:   cfg.Endpoint,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if errors.Is(err, ErrNotConfigured) {
			return notConfigured(log, cfg, "EMBEDDING_API_KEY (Gemini API key) is not set"), nil
		}
		if err != nil {
			return nil, err
		}
		return b, nil

	case "openai":
		if cfg.APIKey == "" {
			return notConfigured(log, cfg, "EMBEDDING_API_KEY (OpenAI key) is not set"), nil
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil

	case "azure":
		if cfg.APIKey == "" || cfg.Endpoint == "" {
			return notConfigured(log, cfg, "azure requires EMBEDDING_API_KEY and EMBEDDING_ENDPOINT"), nil
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		}), nil

	case "ollama":
		return NewOllama(OllamaConfig{
			Host:    cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown provider %q (valid: huggingface, google, openai, azure, ollama)", cfg.Provider)
	}
}

// NewFromSettings builds the backend for cfg and wraps it in a Client using
// cfg's retry and concurrency settings.
func NewFromSettings(ctx context.Context, cfg config.EmbeddingSettings, log *slog.Logger, metrics *Metrics) (*Client, error) {
	backend, err := NewBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return New(backend, Options{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBase,
		Concurrency: cfg.Concurrency,
		Logger:      log,
		Metrics:     metrics,
	}), nil
}

// unconfigured is a Backend that reports ErrNotConfigured on every call.
type unconfigured struct {
	provider string
	model    string
	reason   string
}

func notConfigured(log *slog.Logger, cfg config.EmbeddingSettings, reason string) *unconfigured {
	if log != nil {
		log.Warn("embedder: provider not configured, embedding calls will fail",
			slog.String("provider", cfg.Provider),
			slog.String("reason", reason),
		)
	}
	return &unconfigured{provider: cfg.Provider, model: cfg.Model, reason: reason}
}

func (u *unconfigured) Name() string  { return u.provider }
func (u *unconfigured) Model() string { return u.model }

func (u *unconfigured) EmbedText(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotConfigured, u.reason)
}
