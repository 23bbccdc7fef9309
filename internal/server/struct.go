package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/botrag-go/internal/ingestion"
	"github.com/54b3r/botrag-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover embedding retries and ingestion of large documents.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per client on data
	// routes (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per client. Defaults to 20 if zero.
	RateBurst int
	// TrustedProxies lists proxy IPs or CIDRs. X-Forwarded-For and
	// X-Real-IP are read only when the TCP peer is one of them; otherwise
	// the peer address identifies the client.
	TrustedProxies []string
	// APIKey is the Bearer token required on all data routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string
	// Coerce decides how non-numeric elements of a caller-supplied vector
	// are handled.
	Coerce rag.CoercionPolicy
	// MaxUploadBytes caps multipart uploads on POST /ingest. Defaults to 20 MiB.
	MaxUploadBytes int64
	// MetricsRegistry receives the server collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// contextRetriever is the part of *rag.Retriever used by the handlers.
type contextRetriever interface {
	Retrieve(ctx context.Context, tenantID int64, query string, k int) ([]rag.SearchResult, error)
	PrepareContext(ctx context.Context, tenantID int64, query string, k int) (string, error)
}

// answerer is the part of *rag.Assembler used by POST /rag/query.
type answerer interface {
	Answer(ctx context.Context, tenantID int64, query string, k int) rag.Answer
}

// ingester is the part of *ingestion.Pipeline used by POST /ingest.
type ingester interface {
	Ingest(ctx context.Context, doc ingestion.Document) (*ingestion.Result, error)
	IngestURL(ctx context.Context, tenantID int64, documentID, rawURL string, metadata map[string]any) (*ingestion.Result, error)
}

// Deps are the pipeline components the handlers delegate to.
type Deps struct {
	// Store persists chunks and answers searches. Required.
	Store rag.VectorStore
	// Embedder embeds chunk text and query text. Required.
	Embedder rag.Embedder
	// Retriever backs /retrieval/*. Required.
	Retriever contextRetriever
	// Assembler backs /rag/query. Required.
	Assembler answerer
	// Ingester backs /ingest. Optional; the route returns 503 without it.
	Ingester ingester
}

// Server is the HTTP server that exposes the retrieval pipeline.
type Server struct {
	// deps are the pipeline components behind the handlers.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the HTTP and handler collectors.
	metrics *serverMetrics
	// validate checks request DTOs.
	validate *validator.Validate
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// clients resolves the address a request is attributed to.
	clients *clientResolver
}

// saveChunkRequest is the JSON body for POST /vector-store/chunk and one
// element of POST /vector-store/chunks.
type saveChunkRequest struct {
	DocumentID string `json:"documentId" validate:"required"`
	BotID      int64  `json:"botId" validate:"gt=0"`
	Filename   string `json:"filename"`
	// ChunkIndex and TotalChunks are copied into metadata on batch saves.
	ChunkIndex  *int   `json:"chunkIndex,omitempty" validate:"omitempty,gte=0"`
	TotalChunks *int   `json:"totalChunks,omitempty" validate:"omitempty,gt=0"`
	Text        string `json:"text" validate:"required"`
	// Embedding is decoded loosely so numeric strings can be coerced.
	Embedding []any          `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// generateChunkRequest is the JSON body for POST /vector-store/chunk/generate.
type generateChunkRequest struct {
	DocumentID string         `json:"documentId" validate:"required"`
	BotID      int64          `json:"botId" validate:"gt=0"`
	Filename   string         `json:"filename"`
	Text       string         `json:"text" validate:"required"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// searchRequest is the JSON body for POST /vector-store/search and
// POST /vector-store/similarity-search. QueryEmbedding wins over Query.
type searchRequest struct {
	BotID          int64  `json:"botId" validate:"gt=0"`
	Query          string `json:"query"`
	QueryEmbedding []any  `json:"queryEmbedding"`
	K              int    `json:"k" validate:"gte=0,lte=100"`
	// Threshold overrides the default similarity threshold for /search.
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gte=-1,lte=1"`
}

// retrieveRequest is the JSON body for POST /retrieval/documents and
// POST /retrieval/prepare-context.
type retrieveRequest struct {
	BotID int64  `json:"botId" validate:"gt=0"`
	Query string `json:"query"`
	K     int    `json:"k" validate:"gte=0,lte=100"`
}

// ragQueryRequest is the JSON body for POST /rag/query.
type ragQueryRequest struct {
	BotID      int64  `json:"botId" validate:"gt=0"`
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults" validate:"gte=0,lte=100"`
}

// ingestURLRequest is the JSON body for POST /ingest.
type ingestURLRequest struct {
	BotID      int64          `json:"botId" validate:"gt=0"`
	DocumentID string         `json:"documentId" validate:"required"`
	URL        string         `json:"url" validate:"required,url"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// deleteResponse is the JSON response for DELETE /vector-store/document/{documentId}.
type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Deleted is the number of chunks removed.
	Deleted int64 `json:"deleted"`
}

// countResponse is the JSON response for GET .../chunks-count.
type countResponse struct {
	Count      int64  `json:"count"`
	DocumentID string `json:"documentId"`
	// BotID is omitted when the count spans every tenant.
	BotID int64 `json:"botId,omitempty"`
}

// contextResponse is the JSON response for POST /retrieval/prepare-context.
type contextResponse struct {
	Context string `json:"context"`
}
