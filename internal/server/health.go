package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/botrag-go/internal/logging"
)

// probeTimeout bounds each dependency probe in /api/ready.
const probeTimeout = 5 * time.Second

// Pinger reports the reachability of one dependency. Implementations must
// be safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness output, e.g. "postgres".
	Name() string
}

// MultiPinger checks several dependencies in order and stops at the first
// failure. serve uses it for the startup check.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping returns the first failure prefixed with the dependency name.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name implements Pinger.
func (m *MultiPinger) Name() string { return "multi" }

// strategyReporter is implemented by stores that pick between native and
// scan search.
type strategyReporter interface {
	SearchStrategy() string
}

type readyCheck struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type readyResponse struct {
	Ready bool `json:"ready"`
	// SearchStrategy is the strategy the store will try first.
	SearchStrategy string       `json:"searchStrategy,omitempty"`
	Checks         []readyCheck `json:"checks"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /api/ready. Every pinger is probed concurrently
// with its own timeout; the response is 503 when any of them fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(ctx)
			checks[i] = readyCheck{Name: p.Name(), OK: err == nil, Duration: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				checks[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}
	if sr, ok := s.deps.Store.(strategyReporter); ok {
		resp.SearchStrategy = sr.SearchStrategy()
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
