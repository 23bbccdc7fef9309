package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/54b3r/botrag-go/internal/version"
)

// OpenAI defaults.
const (
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultAzureAPIVersion  = "2024-10-21"
	defaultOpenAIDimensions = 1536
)

// OpenAIConfig holds the settings for constructing an OpenAI or Azure
// OpenAI backend.
type OpenAIConfig struct {
	// BaseURL overrides the API base. For Azure it is the resource endpoint
	// (e.g. "https://<resource>.openai.azure.com").
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model, or the deployment name on Azure.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// Timeout bounds a single call. Defaults to 30s.
	Timeout time.Duration
}

// OpenAI calls the embeddings API through the official SDK. SDK-level
// retries are disabled; Client owns the retry policy.
type OpenAI struct {
	client     openai.Client
	model      string
	dimensions int
	azure      bool
}

// NewOpenAI constructs an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if cfg.Azure {
		if cfg.APIVersion == "" {
			cfg.APIVersion = defaultAzureAPIVersion
		}
		opts = append(opts,
			azure.WithEndpoint(cfg.BaseURL, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
	}
}

// Name implements Backend.
func (e *OpenAI) Name() string {
	if e.azure {
		return "azure"
	}
	return "openai"
}

// Model implements Backend.
func (e *OpenAI) Model() string { return e.model }

// EmbedText implements Backend.
func (e *OpenAI) EmbedText(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: e.Name(), StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("%s embedder: request failed: %w", e.Name(), err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%s embedder: %w: no data", e.Name(), ErrMalformedResponse)
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return vec, nil
}
