package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/botrag-go/internal/rag"
	"github.com/54b3r/botrag-go/internal/retry"
)

// Default retry settings.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Options configures a Client.
type Options struct {
	// MaxAttempts is the total number of calls per text. Defaults to 3.
	MaxAttempts int
	// BaseDelay is the first backoff delay. Defaults to 1s.
	BaseDelay time.Duration
	// Sleep overrides the backoff wait, for tests.
	Sleep retry.SleepFunc
	// Concurrency is the number of batch workers. Values below 2 process
	// batches sequentially.
	Concurrency int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// Client is the embedding provider used by the rest of the system. It is
// stateless across calls and safe for concurrent use.
type Client struct {
	backend     Backend
	policy      retry.Policy
	concurrency int
	log         *slog.Logger
	metrics     *Metrics
}

// New wraps backend with validation, retry and batching.
func New(backend Backend, opts Options) *Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		backend:     backend,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}
	c.policy = retry.Policy{
		MaxAttempts: opts.MaxAttempts,
		BaseDelay:   opts.BaseDelay,
		Sleep:       opts.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.incRetry(backend.Name())
			c.log.Warn("embedder: call failed, retrying",
				slog.String("backend", backend.Name()),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()),
			)
		},
	}
	return c
}

// Name returns the backend name.
func (c *Client) Name() string { return c.backend.Name() }

// Model returns the backend model.
func (c *Client) Model() string { return c.backend.Model() }

// Embed returns the embedding of text. Text that is empty after trimming
// fails with rag.ErrEmptyText without any network call. Upstream failures
// are retried per the client's policy; after exhaustion the last error is
// returned wrapped in ErrProviderFailure.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, rag.ErrEmptyText
	}

	var vec []float32
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		v, err := c.backend.EmbedText(ctx, text)
		if err == nil {
			v, err = validateVector(v)
		}
		c.metrics.observeCall(c.backend.Name(), err)
		if err != nil {
			if errors.Is(err, ErrNotConfigured) {
				return retry.Permanent(err)
			}
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return nil, err
		}
		return nil, fmt.Errorf("embedder: %s: %w: %w", c.backend.Name(), ErrProviderFailure, err)
	}
	return vec, nil
}

// validateVector rejects empty vectors and non-finite elements in a
// provider response.
func validateVector(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrMalformedResponse)
	}
	out, err := rag.PrepareEmbedding(v, rag.CoerceReject, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return out, nil
}

// Embedded is one successful batch item.
type Embedded struct {
	// Index is the item's position in the input slice.
	Index     int
	Text      string
	Embedding []float32
}

// Failure is one failed batch item.
type Failure struct {
	Index int
	Text  string
	Err   error
}

// BatchResult holds per-item outcomes in input order.
type BatchResult struct {
	Embedded []Embedded
	Failed   []Failure
}

// EmbedBatch embeds every text independently. A failed item is recorded in
// Failed and does not abort the batch; the call fails with
// ErrNoSuccessfulEmbeddings only when no item succeeded. With Concurrency
// above 1 items are dispatched to a bounded worker pool; results keep input
// order either way. An empty input returns an empty result.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	res := &BatchResult{}
	if len(texts) == 0 {
		return res, nil
	}

	type slot struct {
		vec []float32
		err error
	}
	slots := make([]slot, len(texts))

	if c.concurrency < 2 {
		for i, text := range texts {
			slots[i].vec, slots[i].err = c.Embed(ctx, text)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(c.concurrency)
		for i := range texts {
			g.Go(func() error {
				slots[i].vec, slots[i].err = c.Embed(ctx, texts[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, s := range slots {
		if s.err != nil {
			res.Failed = append(res.Failed, Failure{Index: i, Text: texts[i], Err: s.err})
			c.log.Warn("embedder: batch item failed",
				slog.Int("index", i),
				slog.String("error", s.err.Error()),
			)
			continue
		}
		res.Embedded = append(res.Embedded, Embedded{Index: i, Text: texts[i], Embedding: s.vec})
	}

	if len(res.Embedded) == 0 {
		return res, fmt.Errorf("embedder: %w: all %d items failed: %w",
			ErrNoSuccessfulEmbeddings, len(texts), res.Failed[len(res.Failed)-1].Err)
	}
	c.log.Debug("embedder: batch complete",
		slog.Int("embedded", len(res.Embedded)),
		slog.Int("failed", len(res.Failed)),
	)
	return res, nil
}
