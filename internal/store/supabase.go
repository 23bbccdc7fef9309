package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/54b3r/botrag-go/internal/rag"
)

// Supabase objects. The table has the same layout as PostgresSchema.
const (
	supabaseTable    = "vector_chunks"
	supabaseMatchRPC = "match_vector_chunks"
)

// supabasePageSize is the number of rows requested per LoadTenant page.
// PostgREST caps a response at the project's max_rows (1000 by default).
const supabasePageSize = 1000

// SupabaseSchema is the SQL to run once in the Supabase SQL editor. The
// match function is the native search path; without it (or without
// pgvector) searches fall back to the scan.
const SupabaseSchema = PostgresSchema + `
CREATE OR REPLACE FUNCTION match_vector_chunks(
    query_embedding vector, match_bot_id bigint, match_threshold float, match_count int)
RETURNS TABLE (id uuid, bot_id bigint, document_id text, filename text, text text,
               metadata jsonb, similarity float)
LANGUAGE sql STABLE AS $$
    SELECT c.id, c.bot_id, c.document_id, c.filename, c.text, c.metadata,
           COALESCE(NULLIF(1 - (c.embedding::vector <=> query_embedding), 'NaN'::float8), 0) AS similarity
    FROM   vector_chunks c
    WHERE  c.bot_id = match_bot_id
      AND  COALESCE(NULLIF(1 - (c.embedding::vector <=> query_embedding), 'NaN'::float8), 0) > match_threshold
    ORDER  BY similarity DESC, c.seq ASC
    LIMIT  match_count;
$$;
`

// supabaseREST is the subset of PostgREST operations the store uses.
type supabaseREST interface {
	Insert(table string, rows any) error
	Delete(table string, eq map[string]string) (int64, error)
	Count(table string, eq map[string]string) (int64, error)
	// SelectPage returns rows from..to (inclusive) in orderBy order.
	SelectPage(table string, eq map[string]string, orderBy string, from, to int, dest any) error
	RPC(name string, body any) string
}

// supabaseRow is the JSON form of a vector_chunks row.
type supabaseRow struct {
	ID         string         `json:"id"`
	BotID      int64          `json:"bot_id"`
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename"`
	Text       string         `json:"text"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Similarity float64        `json:"similarity,omitempty"`
}

// supabaseError is the PostgREST error body.
type supabaseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

// SupabaseStore is a Store backed by a Supabase project through PostgREST.
// The native path calls the match_vector_chunks RPC.
type SupabaseStore struct {
	rest     supabaseREST
	opts     Options
	searcher *rag.HybridSearcher
	pageSize int
}

// OpenSupabase connects to the project at url with key.
func OpenSupabase(ctx context.Context, url, key string, opts Options) (*SupabaseStore, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("store: supabase url and key are required")
	}
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create supabase client: %w", err)
	}
	return newSupabaseStore(ctx, &supabaseClient{client: client}, opts), nil
}

func newSupabaseStore(ctx context.Context, rest supabaseREST, opts Options) *SupabaseStore {
	s := &SupabaseStore{rest: rest, opts: opts.withDefaults(), pageSize: supabasePageSize}
	s.searcher = rag.NewHybridSearcher(ctx, s, s, nil, s.opts.searchOptions()...)
	return s
}

// Name implements Store.
func (s *SupabaseStore) Name() string { return "supabase" }

// Ping implements Store.
func (s *SupabaseStore) Ping(_ context.Context) error {
	if _, err := s.rest.Count(supabaseTable, map[string]string{"bot_id": "0"}); err != nil {
		return fmt.Errorf("store: supabase ping: %w", err)
	}
	return nil
}

// SearchStrategy returns the strategy the next Search will try first.
func (s *SupabaseStore) SearchStrategy() string { return s.searcher.Selected() }

// Save implements rag.VectorStore.
func (s *SupabaseStore) Save(ctx context.Context, in rag.ChunkInput) (*rag.Chunk, error) {
	chunks, err := s.SaveBatch(ctx, []rag.ChunkInput{in})
	if err != nil {
		return nil, err
	}
	return &chunks[0], nil
}

// SaveBatch implements rag.VectorStore. All rows go in one insert request,
// which PostgREST runs as a single statement: all or nothing.
func (s *SupabaseStore) SaveBatch(_ context.Context, in []rag.ChunkInput) ([]rag.Chunk, error) {
	if len(in) == 0 {
		return []rag.Chunk{}, nil
	}
	chunks, err := s.opts.newChunks(in)
	if err != nil {
		return nil, fmt.Errorf("store: save: %w", err)
	}
	rows := make([]supabaseRow, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		rows[i] = supabaseRow{
			ID:         c.ID,
			BotID:      c.TenantID,
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Text:       c.Text,
			Embedding:  c.Embedding,
			Metadata:   c.Metadata,
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
		}
	}
	if err := s.rest.Insert(supabaseTable, rows); err != nil {
		return nil, fmt.Errorf("store: supabase insert: %w", err)
	}
	return chunks, nil
}

// DeleteByDocument implements rag.VectorStore.
func (s *SupabaseStore) DeleteByDocument(_ context.Context, tenantID int64, documentID string) (int64, error) {
	if err := validateDelete(tenantID, documentID); err != nil {
		return 0, err
	}
	n, err := s.rest.Delete(supabaseTable, documentEq(documentID, tenantID))
	if err != nil {
		return 0, fmt.Errorf("store: supabase delete: %w", err)
	}
	return n, nil
}

// CountByDocument implements rag.VectorStore.
func (s *SupabaseStore) CountByDocument(_ context.Context, documentID string, tenantID int64) (int64, error) {
	n, err := s.rest.Count(supabaseTable, documentEq(documentID, tenantID))
	if err != nil {
		return 0, fmt.Errorf("store: supabase count: %w", err)
	}
	return n, nil
}

// Search implements rag.VectorStore.
func (s *SupabaseStore) Search(ctx context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	res, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return res, nil
}

// SimilaritySearch implements rag.VectorStore.
func (s *SupabaseStore) SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int) ([]rag.SearchResult, error) {
	res, err := s.searcher.Scan(ctx, tenantID, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("store: similarity search: %w", err)
	}
	return res, nil
}

// NativeSearch implements rag.NativeSearcher through the match RPC.
func (s *SupabaseStore) NativeSearch(_ context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	body := map[string]any{
		"query_embedding": q.Embedding,
		"match_bot_id":    q.TenantID,
		"match_threshold": sqlThreshold(q.Threshold),
		"match_count":     q.K,
	}
	raw := strings.TrimSpace(s.rest.RPC(supabaseMatchRPC, body))
	if raw == "" {
		return nil, fmt.Errorf("store: supabase rpc %s: empty response", supabaseMatchRPC)
	}

	var rows []supabaseRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		var apiErr supabaseError
		if json.Unmarshal([]byte(raw), &apiErr) == nil && apiErr.Message != "" {
			err = fmt.Errorf("store: supabase rpc %s: %s (%s)", supabaseMatchRPC, apiErr.Message, apiErr.Code)
			return nil, classifyOperator(err, "function public."+supabaseMatchRPC, pgDistanceOperator, pgMissingType)
		}
		return nil, fmt.Errorf("store: supabase rpc %s: decode response: %w", supabaseMatchRPC, err)
	}

	out := make([]rag.SearchResult, len(rows))
	for i, r := range rows {
		out[i] = rag.SearchResult{
			ID:         r.ID,
			TenantID:   r.BotID,
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Text:       r.Text,
			Metadata:   r.Metadata,
			Score:      r.Similarity,
		}
	}
	return finiteScores(out, q.Threshold), nil
}

// LoadTenant implements rag.ScanSource. Rows are ordered by seq, the
// insertion order, and read page by page until an empty page comes back,
// so a server-side row cap smaller than the page size cannot truncate the
// tenant.
func (s *SupabaseStore) LoadTenant(ctx context.Context, tenantID int64) ([]rag.Chunk, error) {
	eq := map[string]string{"bot_id": strconv.FormatInt(tenantID, 10)}
	var rows []supabaseRow
	for from := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("store: supabase load tenant: %w", err)
		}
		var page []supabaseRow
		if err := s.rest.SelectPage(supabaseTable, eq, "seq", from, from+s.pageSize-1, &page); err != nil {
			return nil, fmt.Errorf("store: supabase load tenant: rows %d+: %w", from, err)
		}
		if len(page) == 0 {
			break
		}
		rows = append(rows, page...)
		from += len(page)
	}

	chunks := make([]rag.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = rag.Chunk{
			ID:         r.ID,
			TenantID:   r.BotID,
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Text:       r.Text,
			Embedding:  r.Embedding,
			Metadata:   r.Metadata,
			CreatedAt:  r.CreatedAt,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return chunks, nil
}

// Close implements rag.VectorStore. The Supabase client holds no
// connection that needs closing.
func (s *SupabaseStore) Close() error { return nil }

func documentEq(documentID string, tenantID int64) map[string]string {
	eq := map[string]string{"document_id": documentID}
	if tenantID > 0 {
		eq["bot_id"] = strconv.FormatInt(tenantID, 10)
	}
	return eq
}

// supabaseClient implements supabaseREST with supabase-go.
type supabaseClient struct {
	client *supabase.Client
}

func (c *supabaseClient) Insert(table string, rows any) error {
	_, _, err := c.client.From(table).Insert(rows, false, "", "minimal", "").Execute()
	return err
}

func (c *supabaseClient) Delete(table string, eq map[string]string) (int64, error) {
	f := c.client.From(table).Delete("minimal", "exact")
	for k, v := range eq {
		f = f.Eq(k, v)
	}
	_, n, err := f.Execute()
	return n, err
}

func (c *supabaseClient) Count(table string, eq map[string]string) (int64, error) {
	f := c.client.From(table).Select("id", "exact", true)
	for k, v := range eq {
		f = f.Eq(k, v)
	}
	_, n, err := f.Execute()
	return n, err
}

func (c *supabaseClient) SelectPage(table string, eq map[string]string, orderBy string, from, to int, dest any) error {
	f := c.client.From(table).Select("*", "", false)
	for k, v := range eq {
		f = f.Eq(k, v)
	}
	_, err := f.Order(orderBy, &postgrest.OrderOpts{Ascending: true}).Range(from, to, "").ExecuteTo(dest)
	return err
}

func (c *supabaseClient) RPC(name string, body any) string {
	return c.client.Rpc(name, "", body)
}

