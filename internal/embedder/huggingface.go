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

// HuggingFace defaults.
const (
	defaultHuggingFaceEndpoint = "https://api-inference.huggingface.co/pipeline/feature-extraction"
	defaultHuggingFaceModel    = "sentence-transformers/all-MiniLM-L6-v2"
)

// HuggingFaceConfig holds the settings for constructing a HuggingFace backend.
type HuggingFaceConfig struct {
	// Endpoint is the feature-extraction pipeline base URL; the model name is appended.
	Endpoint string
	// Token is the Bearer token.
	Token string
	// Model is the sentence-transformers model id.
	Model string
	// Timeout bounds a single call. Defaults to 30s.
	Timeout time.Duration
}

// HuggingFace calls the Inference API feature-extraction pipeline. It is
// safe for concurrent use.
type HuggingFace struct {
	url    string
	token  string
	model  string
	client *http.Client
}

// NewHuggingFace constructs a HuggingFace backend.
func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFace {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultHuggingFaceEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultHuggingFaceModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HuggingFace{
		url:    strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Model,
		token:  cfg.Token,
		model:  cfg.Model,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Backend.
func (e *HuggingFace) Name() string { return "huggingface" }

// Model implements Backend.
func (e *HuggingFace) Model() string { return e.model }

// hfRequest is the JSON body sent to the feature-extraction pipeline.
type hfRequest struct {
	Inputs string `json:"inputs"`
}

// EmbedText implements Backend. The pipeline answers with either a flat
// vector or a one-row matrix; both are accepted.
func (e *HuggingFace) EmbedText(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(hfRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Provider: e.Name(), StatusCode: resp.StatusCode, Message: hfErrorMessage(readErrorBody(resp))}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("huggingface embedder: decode response: %w: %w", ErrMalformedResponse, err)
	}
	return parseFeatureVector(raw)
}

// parseFeatureVector accepts [n, n, ...] or [[n, n, ...]] and coerces the
// elements to float32, rejecting anything non-numeric.
func parseFeatureVector(raw any) ([]float32, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("huggingface embedder: %w: expected a non-empty array", ErrMalformedResponse)
	}
	if row, ok := arr[0].([]any); ok {
		arr = row
	}
	vec, err := rag.CoerceValues(arr, rag.CoerceReject, nil)
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: %w: %w", ErrMalformedResponse, err)
	}
	return vec, nil
}

// hfErrorMessage extracts {"error": "..."} from an error body when present.
func hfErrorMessage(body string) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(body), &e) == nil && e.Error != "" {
		return e.Error
	}
	return body
}
