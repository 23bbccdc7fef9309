// Package server implements the HTTP service that exposes the retrieval
// pipeline: chunk writes, tenant-scoped search, context preparation, the
// RAG query endpoint and document ingestion, plus health, readiness and
// Prometheus metrics. The server is started by the `botrag serve` command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New constructs a Server from the pipeline components and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("server: embedder must not be nil")
	}
	if deps.Retriever == nil || deps.Assembler == nil {
		return nil, fmt.Errorf("server: retriever and assembler must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	clients, err := newClientResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		clients:  clients,
		deps:     deps,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
		validate: newValidator(),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not set, authentication is disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.clients, s.metrics.incRateLimited)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the chi router. Health, readiness and metrics are public;
// every data route sits behind auth and the per-client rate limiter.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return requestLogger(s.log, next) })
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return authMiddleware(s.cfg.APIKey, next) })
		r.Use(rl.middleware)

		r.Route("/vector-store", func(r chi.Router) {
			r.Post("/chunk", s.handleSaveChunk)
			r.Post("/chunk/generate", s.handleGenerateChunk)
			r.Post("/chunks", s.handleSaveChunks)
			r.Delete("/document/{documentId}", s.handleDeleteDocument)
			r.Get("/document/{documentId}/chunks-count", s.handleCountChunks)
			r.Post("/search", s.handleSearch)
			r.Post("/similarity-search", s.handleSimilaritySearch)
		})
		r.Route("/retrieval", func(r chi.Router) {
			r.Post("/documents", s.handleRetrieveDocuments)
			r.Post("/prepare-context", s.handlePrepareContext)
		})
		r.Post("/rag/query", s.handleRAGQuery)
		r.Post("/ingest", s.handleIngest)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "not_found", Message: "endpoint not found"})
	})
	return r
}

// Handler returns the router, for tests and embedding in another server.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// newValidator reports DTO field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
