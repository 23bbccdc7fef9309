package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/54b3r/botrag-go/internal/version"
)

// HTTPPinger probes an HTTP dependency, such as a self-hosted embedding
// endpoint, with a GET request. Any response below 500 counts as reachable:
// most inference servers answer 401 or 404 on their root path, which still
// proves the process is up. It never sends an embedding request, so no
// provider quota is consumed.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses (e.g. "ollama").
	name string
	// url is the address probed.
	url string
	// client performs the probe; the probe context bounds its duration.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for url.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{name: name, url: url, client: &http.Client{}}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues a GET against the configured URL.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc struct {
	// Label is returned by Name.
	Label string
	// Fn is called by Ping.
	Fn func(ctx context.Context) error
}

// Name returns the dependency label.
func (p PingerFunc) Name() string { return p.Label }

// Ping calls Fn.
func (p PingerFunc) Ping(ctx context.Context) error { return p.Fn(ctx) }
