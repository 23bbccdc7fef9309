package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // register "postgres" driver
	"github.com/pgvector/pgvector-go"

	"github.com/54b3r/botrag-go/internal/rag"
)

// pgvector operator and error fragments that identify a missing extension.
const (
	pgDistanceOperator = "<=>"
	pgMissingType      = `type "vector" does not exist`
)

// PostgresSchema creates the chunk table. Embeddings are kept in a REAL[]
// column and cast to vector at query time, so the table works with or
// without the pgvector extension.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS vector_chunks (
    seq          BIGSERIAL   PRIMARY KEY,
    id           UUID        NOT NULL UNIQUE,
    bot_id       BIGINT      NOT NULL,
    document_id  TEXT        NOT NULL,
    filename     TEXT        NOT NULL DEFAULT '',
    text         TEXT        NOT NULL,
    embedding    REAL[]      NOT NULL,
    metadata     JSONB,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vector_chunks_bot ON vector_chunks (bot_id);
CREATE INDEX IF NOT EXISTS idx_vector_chunks_document ON vector_chunks (document_id, bot_id);
`

// PostgresStore is a Store backed by PostgreSQL. Search uses the pgvector
// cosine distance operator when the extension is installed and the scan
// otherwise.
type PostgresStore struct {
	db       *sql.DB
	opts     Options
	searcher *rag.HybridSearcher
}

// OpenPostgres connects to dsn, runs the schema migration and returns a
// ready store.
func OpenPostgres(ctx context.Context, dsn string, opts Options) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, PostgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return NewPostgres(ctx, db, opts), nil
}

// NewPostgres wraps an open connection pool whose schema already exists.
// It probes for the pgvector extension to pick the search strategy.
func NewPostgres(ctx context.Context, db *sql.DB, opts Options) *PostgresStore {
	s := &PostgresStore{db: db, opts: opts.withDefaults()}
	s.searcher = rag.NewHybridSearcher(ctx, s, s, s.probe, s.opts.searchOptions()...)
	return s
}

func (s *PostgresStore) probe(ctx context.Context) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("store: pgvector probe: %w", err)
	}
	return ok, nil
}

// Name implements Store.
func (s *PostgresStore) Name() string { return "postgres" }

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SearchStrategy returns the strategy the next Search will try first.
func (s *PostgresStore) SearchStrategy() string { return s.searcher.Selected() }

// Save implements rag.VectorStore.
func (s *PostgresStore) Save(ctx context.Context, in rag.ChunkInput) (*rag.Chunk, error) {
	chunks, err := s.SaveBatch(ctx, []rag.ChunkInput{in})
	if err != nil {
		return nil, err
	}
	return &chunks[0], nil
}

// SaveBatch implements rag.VectorStore. The batch is written in one
// transaction: either every chunk is stored or none is.
func (s *PostgresStore) SaveBatch(ctx context.Context, in []rag.ChunkInput) ([]rag.Chunk, error) {
	if len(in) == 0 {
		return []rag.Chunk{}, nil
	}
	chunks, err := s.opts.newChunks(in)
	if err != nil {
		return nil, fmt.Errorf("store: save: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: save: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := pgInsert(ctx, tx, chunks); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: save: commit: %w", err)
	}
	return chunks, nil
}

// DeleteByDocument implements rag.VectorStore.
func (s *PostgresStore) DeleteByDocument(ctx context.Context, tenantID int64, documentID string) (int64, error) {
	if err := validateDelete(tenantID, documentID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_chunks WHERE document_id = $1 AND bot_id = $2`, documentID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete: rows affected: %w", err)
	}
	return n, nil
}

// ReplaceDocument implements rag.DocumentReplacer: the delete and the
// inserts share one transaction.
func (s *PostgresStore) ReplaceDocument(ctx context.Context, tenantID int64, documentID string, in []rag.ChunkInput) (int64, []rag.Chunk, error) {
	if err := validateDelete(tenantID, documentID); err != nil {
		return 0, nil, err
	}
	chunks, err := s.opts.newChunks(in)
	if err != nil {
		return 0, nil, fmt.Errorf("store: replace: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("store: replace: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM vector_chunks WHERE document_id = $1 AND bot_id = $2`, documentID, tenantID)
	if err != nil {
		return 0, nil, fmt.Errorf("store: replace: delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("store: replace: rows affected: %w", err)
	}
	if err := pgInsert(ctx, tx, chunks); err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("store: replace: commit: %w", err)
	}
	return deleted, chunks, nil
}

// pgInsert writes chunks inside tx.
func pgInsert(ctx context.Context, tx *sql.Tx, chunks []rag.Chunk) error {
	const q = `INSERT INTO vector_chunks
    (id, bot_id, document_id, filename, text, embedding, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for i := range chunks {
		c := &chunks[i]
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("store: save: %w", err)
		}
		var metaArg any
		if meta != nil {
			metaArg = string(meta)
		}
		if _, err := tx.ExecContext(ctx, q, c.ID, c.TenantID, c.DocumentID, c.Filename, c.Text,
			pq.Array(toFloat64s(c.Embedding)), metaArg, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("store: save: insert: %w", err)
		}
	}
	return nil
}

// CountByDocument implements rag.VectorStore.
func (s *PostgresStore) CountByDocument(ctx context.Context, documentID string, tenantID int64) (int64, error) {
	q := `SELECT COUNT(*) FROM vector_chunks WHERE document_id = $1`
	args := []any{documentID}
	if tenantID > 0 {
		q += ` AND bot_id = $2`
		args = append(args, tenantID)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Search implements rag.VectorStore.
func (s *PostgresStore) Search(ctx context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	res, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return res, nil
}

// SimilaritySearch implements rag.VectorStore.
func (s *PostgresStore) SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int) ([]rag.SearchResult, error) {
	res, err := s.searcher.Scan(ctx, tenantID, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("store: similarity search: %w", err)
	}
	return res, nil
}

// pgSimilarity is the cosine similarity of the stored embedding and $2.
// pgvector yields NaN when either vector has zero norm; that scores 0.
const pgSimilarity = `COALESCE(NULLIF(1 - (embedding::vector <=> $2::vector), 'NaN'::float8), 0)`

// pgNativeQuery ranks a tenant's chunks inside Postgres with pgvector.
const pgNativeQuery = `
SELECT id, bot_id, document_id, filename, text, metadata,
       ` + pgSimilarity + ` AS similarity
FROM   vector_chunks
WHERE  bot_id = $1 AND ` + pgSimilarity + ` > $3
ORDER  BY similarity DESC, seq ASC
LIMIT  $4`

// NativeSearch implements rag.NativeSearcher with the pgvector operator.
func (s *PostgresStore) NativeSearch(ctx context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, pgNativeQuery,
		q.TenantID, pgvector.NewVector(q.Embedding), sqlThreshold(q.Threshold), q.K)
	if err != nil {
		return nil, classifyOperator(fmt.Errorf("store: native search: %w", err), pgDistanceOperator, pgMissingType)
	}
	defer rows.Close()

	var out []rag.SearchResult
	for rows.Next() {
		var (
			r    rag.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.DocumentID, &r.Filename, &r.Text, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("store: native search scan: %w", err)
		}
		if r.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("store: native search: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyOperator(fmt.Errorf("store: native search rows: %w", err), pgDistanceOperator, pgMissingType)
	}
	return finiteScores(out, q.Threshold), nil
}

// LoadTenant implements rag.ScanSource. Rows come back in insertion order.
func (s *PostgresStore) LoadTenant(ctx context.Context, tenantID int64) ([]rag.Chunk, error) {
	const q = `
SELECT id, bot_id, document_id, filename, text, embedding, metadata, created_at, updated_at
FROM   vector_chunks
WHERE  bot_id = $1
ORDER  BY seq ASC`
	rows, err := s.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: load tenant: %w", err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		var (
			c    rag.Chunk
			vec  pq.Float64Array
			meta []byte
		)
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.Filename, &c.Text, &vec, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: load tenant scan: %w", err)
		}
		c.Embedding = toFloat32s(vec)
		if c.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("store: load tenant: chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load tenant rows: %w", err)
	}
	return chunks, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func toFloat32s(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
