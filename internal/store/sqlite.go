package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/botrag-go/internal/rag"
)

// sqliteDistanceFunc is the sqlite-vec cosine distance function. Its name
// appears in the error SQLite raises when the extension is not loaded.
const sqliteDistanceFunc = "vec_distance_cosine"

// SQLiteStore is a Store backed by a local SQLite database. Embeddings are
// stored as JSON arrays, the text format sqlite-vec accepts. Without the
// extension every search runs the in-process scan.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db       *sql.DB
	opts     Options
	searcher *rag.HybridSearcher
}

// OpenSQLite opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("store: could not create %s: %w", dir, err)
			}
		}
		// WAL mode improves concurrent read performance and is safe for single-host use.
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, opts: opts.withDefaults()}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.searcher = rag.NewHybridSearcher(ctx, s, s, s.probe, s.opts.searchOptions()...)
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS vector_chunks (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT    NOT NULL UNIQUE,
    bot_id       INTEGER NOT NULL,
    document_id  TEXT    NOT NULL,
    filename     TEXT    NOT NULL DEFAULT '',
    text         TEXT    NOT NULL,
    embedding    TEXT    NOT NULL,  -- JSON array of floats
    metadata     TEXT,
    created_at   INTEGER NOT NULL,  -- Unix milliseconds
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vector_chunks_bot ON vector_chunks (bot_id);
CREATE INDEX IF NOT EXISTS idx_vector_chunks_document ON vector_chunks (document_id, bot_id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// probe reports whether sqlite-vec is loaded.
func (s *SQLiteStore) probe(ctx context.Context) (bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT vec_version()`).Scan(&v)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), "no such function") {
		return false, nil
	}
	return false, fmt.Errorf("store: sqlite probe: %w", err)
}

// Name implements Store.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SearchStrategy returns the strategy the next Search will try first.
func (s *SQLiteStore) SearchStrategy() string { return s.searcher.Selected() }

// Save implements rag.VectorStore.
func (s *SQLiteStore) Save(ctx context.Context, in rag.ChunkInput) (*rag.Chunk, error) {
	chunks, err := s.SaveBatch(ctx, []rag.ChunkInput{in})
	if err != nil {
		return nil, err
	}
	return &chunks[0], nil
}

// SaveBatch implements rag.VectorStore. The batch is written in one
// transaction: either every chunk is stored or none is.
func (s *SQLiteStore) SaveBatch(ctx context.Context, in []rag.ChunkInput) ([]rag.Chunk, error) {
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

	if err := sqliteInsert(ctx, tx, chunks); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: save: commit: %w", err)
	}
	return chunks, nil
}

// DeleteByDocument implements rag.VectorStore.
func (s *SQLiteStore) DeleteByDocument(ctx context.Context, tenantID int64, documentID string) (int64, error) {
	if err := validateDelete(tenantID, documentID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_chunks WHERE document_id = ? AND bot_id = ?`, documentID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete: rows affected: %w", err)
	}
	return n, nil
}

// ReplaceDocument implements rag.DocumentReplacer.
func (s *SQLiteStore) ReplaceDocument(ctx context.Context, tenantID int64, documentID string, in []rag.ChunkInput) (int64, []rag.Chunk, error) {
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
		`DELETE FROM vector_chunks WHERE document_id = ? AND bot_id = ?`, documentID, tenantID)
	if err != nil {
		return 0, nil, fmt.Errorf("store: replace: delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, nil, fmt.Errorf("store: replace: rows affected: %w", err)
	}
	if err := sqliteInsert(ctx, tx, chunks); err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("store: replace: commit: %w", err)
	}
	return deleted, chunks, nil
}

// sqliteInsert writes chunks inside tx.
func sqliteInsert(ctx context.Context, tx *sql.Tx, chunks []rag.Chunk) error {
	const q = `INSERT INTO vector_chunks
    (id, bot_id, document_id, filename, text, embedding, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: save: prepare: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("store: save: encode embedding: %w", err)
		}
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return fmt.Errorf("store: save: %w", err)
		}
		var metaArg any
		if meta != nil {
			metaArg = string(meta)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.TenantID, c.DocumentID, c.Filename, c.Text,
			string(vec), metaArg, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("store: save: insert: %w", err)
		}
	}
	return nil
}

// CountByDocument implements rag.VectorStore.
func (s *SQLiteStore) CountByDocument(ctx context.Context, documentID string, tenantID int64) (int64, error) {
	q := `SELECT COUNT(*) FROM vector_chunks WHERE document_id = ?`
	args := []any{documentID}
	if tenantID > 0 {
		q += ` AND bot_id = ?`
		args = append(args, tenantID)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Search implements rag.VectorStore.
func (s *SQLiteStore) Search(ctx context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	res, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return res, nil
}

// SimilaritySearch implements rag.VectorStore.
func (s *SQLiteStore) SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int) ([]rag.SearchResult, error) {
	res, err := s.searcher.Scan(ctx, tenantID, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("store: similarity search: %w", err)
	}
	return res, nil
}

// NativeSearch implements rag.NativeSearcher with sqlite-vec.
func (s *SQLiteStore) NativeSearch(ctx context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	vec, err := json.Marshal(q.Embedding)
	if err != nil {
		return nil, fmt.Errorf("store: native search: encode query: %w", err)
	}
	const query = `
SELECT id, bot_id, document_id, filename, text, metadata,
       1 - vec_distance_cosine(embedding, ?1) AS similarity
FROM   vector_chunks
WHERE  bot_id = ?2 AND 1 - vec_distance_cosine(embedding, ?1) > ?3
ORDER  BY similarity DESC, seq ASC
LIMIT  ?4`
	rows, err := s.db.QueryContext(ctx, query, string(vec), q.TenantID, sqlThreshold(q.Threshold), q.K)
	if err != nil {
		return nil, classifyOperator(fmt.Errorf("store: native search: %w", err), sqliteDistanceFunc)
	}
	defer rows.Close()

	var out []rag.SearchResult
	for rows.Next() {
		var (
			r    rag.SearchResult
			meta sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.DocumentID, &r.Filename, &r.Text, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("store: native search scan: %w", err)
		}
		if r.Metadata, err = decodeMetadata([]byte(meta.String)); err != nil {
			return nil, fmt.Errorf("store: native search: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyOperator(fmt.Errorf("store: native search rows: %w", err), sqliteDistanceFunc)
	}
	return finiteScores(out, q.Threshold), nil
}

// LoadTenant implements rag.ScanSource. Rows come back in insertion order.
func (s *SQLiteStore) LoadTenant(ctx context.Context, tenantID int64) ([]rag.Chunk, error) {
	const q = `
SELECT id, bot_id, document_id, filename, text, embedding, metadata, created_at, updated_at
FROM   vector_chunks
WHERE  bot_id = ?
ORDER  BY seq ASC`
	rows, err := s.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: load tenant: %w", err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		var (
			c                  rag.Chunk
			vec                string
			meta               sql.NullString
			created, updatedAt int64
		)
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.Filename, &c.Text, &vec, &meta, &created, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: load tenant scan: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &c.Embedding); err != nil {
			return nil, fmt.Errorf("store: load tenant: chunk %s: decode embedding: %w", c.ID, err)
		}
		if c.Metadata, err = decodeMetadata([]byte(meta.String)); err != nil {
			return nil, fmt.Errorf("store: load tenant: chunk %s: %w", c.ID, err)
		}
		c.CreatedAt = time.UnixMilli(created).UTC()
		c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load tenant rows: %w", err)
	}
	return chunks, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
