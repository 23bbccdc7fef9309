package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/botrag-go/internal/rag"
	"github.com/54b3r/botrag-go/internal/version"
)

// Ollama defaults.
const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig holds the settings for constructing an Ollama backend.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
	// Timeout bounds a single call. Defaults to 30s.
	Timeout time.Duration
}

// Ollama calls the local /api/embed endpoint. No API key is required.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

// NewOllama constructs an Ollama backend.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.Host == "" {
		cfg.Host = defaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Ollama{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Backend.
func (e *Ollama) Name() string { return "ollama" }

// Model implements Backend.
func (e *Ollama) Model() string { return e.model }

// ollamaEmbedRequest is the JSON body sent to the Ollama /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the JSON body returned from the Ollama /api/embed endpoint.
type ollamaEmbedResponse struct {
	Embeddings [][]any `json:"embeddings"`
	Error      string  `json:"error,omitempty"`
}

// EmbedText implements Backend.
func (e *Ollama) EmbedText(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var result ollamaEmbedResponse
	decodeErr := dec.Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Provider: e.Name(), StatusCode: resp.StatusCode, Message: result.Error}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w: %w", ErrMalformedResponse, decodeErr)
	}
	if len(result.Embeddings) != 1 {
		return nil, fmt.Errorf("ollama embedder: %w: expected 1 embedding, got %d", ErrMalformedResponse, len(result.Embeddings))
	}

	vec, err := rag.CoerceValues(result.Embeddings[0], rag.CoerceReject, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w: %w", ErrMalformedResponse, err)
	}
	return vec, nil
}
