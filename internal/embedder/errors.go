package embedder

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderFailure wraps the last upstream error once every retry
	// attempt has failed.
	ErrProviderFailure = errors.New("embedding provider failure")

	// ErrNotConfigured is returned by every call when the provider is missing
	// required settings such as an API key.
	ErrNotConfigured = errors.New("embedding provider is not configured")

	// ErrNoSuccessfulEmbeddings is returned by EmbedBatch when every item failed.
	ErrNoSuccessfulEmbeddings = errors.New("no successful embeddings")

	// ErrMalformedResponse marks a 2xx response without a usable vector.
	ErrMalformedResponse = errors.New("malformed embedding response")
)

// StatusError is a non-2xx response from an embedding endpoint.
type StatusError struct {
	// Provider is the backend name.
	Provider string
	// StatusCode is the HTTP status.
	StatusCode int
	// Message is the provider's error message or a truncated body.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s embedder: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}
