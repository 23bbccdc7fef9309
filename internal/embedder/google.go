package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// Google defaults.
const (
	defaultGoogleModel      = "text-embedding-004"
	defaultGoogleDimensions = 768
)

// GoogleConfig holds the settings for constructing a Google backend.
type GoogleConfig struct {
	// APIKey is the Gemini API key.
	APIKey string
	// Model is the embedding model (e.g. "text-embedding-004").
	Model string
	// Endpoint overrides the API base URL.
	Endpoint string
	// Dimensions requests a reduced output dimensionality (0 = model default).
	Dimensions int
	// Timeout bounds a single call. Defaults to 30s.
	Timeout time.Duration
}

// Google calls the Gemini API embedContent method through the genai SDK.
type Google struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGoogle constructs a Google backend. cfg.APIKey must be set.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = defaultGoogleModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("google embedder: create client: %w", err)
	}
	return &Google{client: client, model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

// Name implements Backend.
func (e *Google) Name() string { return "google" }

// Model implements Backend.
func (e *Google) Model() string { return e.model }

// EmbedText implements Backend.
func (e *Google) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("google embedder: request failed: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, fmt.Errorf("google embedder: %w: no embeddings", ErrMalformedResponse)
	}
	return res.Embeddings[0].Values, nil
}
