package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/botrag-go/internal/rag"
)

// Payload keys written with every point.
const (
	payloadBotID      = "bot_id"
	payloadDocumentID = "document_id"
	payloadFilename   = "filename"
	payloadText       = "text"
	payloadMetadata   = "metadata"
	payloadCreatedAt  = "created_at"
	payloadUpdatedAt  = "updated_at"
	// payloadSeq is the point's position within its SaveBatch call. Chunks
	// of one batch share created_at, so seq breaks the tie.
	payloadSeq = "seq"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore is a Store backed by a Qdrant collection. Points carry the
// chunk fields in their payload; bot_id and document_id are indexed.
// Qdrant always has a native cosine search, so no probe is needed; the scan
// path serves SimilaritySearch.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg      QdrantConfig
	opts     Options
	searcher *rag.HybridSearcher
}

// OpenQdrant creates a QdrantStore, ensuring the target collection and its
// payload indexes exist.
func OpenQdrant(ctx context.Context, cfg QdrantConfig, opts Options) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("store: qdrant collection name is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: failed to create client: %w", err)
	}

	s := &QdrantStore{client: client, cfg: cfg, opts: opts.withDefaults()}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	s.searcher = rag.NewHybridSearcher(ctx, s, s, nil, s.opts.searchOptions()...)
	return s, nil
}

// ensureCollection creates the collection and payload indexes if the
// collection does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("store: qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	if s.cfg.VectorSize == 0 {
		return fmt.Errorf("store: qdrant: vector size is required to create collection %q", s.cfg.Collection)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("store: qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{payloadBotID, qdrant.FieldType_FieldTypeInteger},
		{payloadDocumentID, qdrant.FieldType_FieldTypeKeyword},
	}
	for _, idx := range indexes {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			FieldName:      idx.field,
			FieldType:      idx.typ.Enum(),
		})
		if err != nil {
			return fmt.Errorf("store: qdrant: failed to index %q: %w", idx.field, err)
		}
	}
	return nil
}

// Name implements Store.
func (s *QdrantStore) Name() string { return "qdrant" }

// Ping implements Store.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store: qdrant health check: %w", err)
	}
	return nil
}

// Save implements rag.VectorStore.
func (s *QdrantStore) Save(ctx context.Context, in rag.ChunkInput) (*rag.Chunk, error) {
	chunks, err := s.SaveBatch(ctx, []rag.ChunkInput{in})
	if err != nil {
		return nil, err
	}
	return &chunks[0], nil
}

// SaveBatch implements rag.VectorStore. Every input is validated before
// anything is written and the points are sent in a single upsert, which
// Qdrant applies as one operation.
func (s *QdrantStore) SaveBatch(ctx context.Context, in []rag.ChunkInput) ([]rag.Chunk, error) {
	if len(in) == 0 {
		return []rag.Chunk{}, nil
	}
	chunks, err := s.opts.newChunks(in)
	if err != nil {
		return nil, fmt.Errorf("store: save: %w", err)
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i := range chunks {
		p, err := pointFromChunk(&chunks[i], i)
		if err != nil {
			return nil, fmt.Errorf("store: save: %w", err)
		}
		points = append(points, p)
	}

	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: upsert failed: %w", err)
	}
	return chunks, nil
}

// DeleteByDocument implements rag.VectorStore. The count is taken before
// the delete; Qdrant does not report how many points a filter removed.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, tenantID int64, documentID string) (int64, error) {
	if err := validateDelete(tenantID, documentID); err != nil {
		return 0, err
	}
	n, err := s.CountByDocument(ctx, documentID, tenantID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID, tenantID)),
	})
	if err != nil {
		return 0, fmt.Errorf("store: qdrant: delete failed: %w", err)
	}
	return n, nil
}

// CountByDocument implements rag.VectorStore.
func (s *QdrantStore) CountByDocument(ctx context.Context, documentID string, tenantID int64) (int64, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         documentFilter(documentID, tenantID),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("store: qdrant: count failed: %w", err)
	}
	return int64(n), nil
}

// Search implements rag.VectorStore.
func (s *QdrantStore) Search(ctx context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	res, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return res, nil
}

// SimilaritySearch implements rag.VectorStore.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int) ([]rag.SearchResult, error) {
	res, err := s.searcher.Scan(ctx, tenantID, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("store: similarity search: %w", err)
	}
	return res, nil
}

// NativeSearch implements rag.NativeSearcher with a filtered Qdrant query.
// Qdrant's score threshold is inclusive, so results equal to the threshold
// are dropped here.
func (s *QdrantStore) NativeSearch(ctx context.Context, q rag.SearchQuery) ([]rag.SearchResult, error) {
	limit := uint64(q.K)
	req := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(q.Embedding...),
		Filter:         tenantFilter(q.TenantID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.Threshold > -1 {
		th := float32(q.Threshold)
		req.ScoreThreshold = &th
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: search failed: %w", err)
	}

	out := make([]rag.SearchResult, 0, len(points))
	for _, p := range points {
		score := float64(p.GetScore())
		if !(score > q.Threshold) {
			continue
		}
		c, err := chunkFromPayload(p.GetId().GetUuid(), p.GetPayload(), nil)
		if err != nil {
			return nil, fmt.Errorf("store: qdrant: %w", err)
		}
		out = append(out, rag.ResultFromChunk(&c, score))
	}
	return out, nil
}

// LoadTenant implements rag.ScanSource. Qdrant scrolls in point-id order,
// so chunks are re-sorted by creation time and batch position to restore
// insertion order.
func (s *QdrantStore) LoadTenant(ctx context.Context, tenantID int64) ([]rag.Chunk, error) {
	filter := tenantFilter(tenantID)
	exact := true
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: count tenant: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	limit := uint32(total)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: scroll tenant: %w", err)
	}

	stored := make([]storedChunk, 0, len(points))
	for _, p := range points {
		c, err := chunkFromPayload(p.GetId().GetUuid(), p.GetPayload(), denseVector(p))
		if err != nil {
			return nil, fmt.Errorf("store: qdrant: %w", err)
		}
		stored = append(stored, storedChunk{chunk: c, seq: p.GetPayload()[payloadSeq].GetIntegerValue()})
	}
	sortByInsertion(stored)

	chunks := make([]rag.Chunk, len(stored))
	for i := range stored {
		chunks[i] = stored[i].chunk
	}
	return chunks, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointFromChunk builds the point for c, the seq-th chunk of its batch.
func pointFromChunk(c *rag.Chunk, seq int) (*qdrant.PointStruct, error) {
	payload := map[string]*qdrant.Value{
		payloadBotID:      qdrant.NewValueInt(c.TenantID),
		payloadDocumentID: qdrant.NewValueString(c.DocumentID),
		payloadFilename:   qdrant.NewValueString(c.Filename),
		payloadText:       qdrant.NewValueString(c.Text),
		payloadCreatedAt:  qdrant.NewValueInt(c.CreatedAt.UnixMilli()),
		payloadUpdatedAt:  qdrant.NewValueInt(c.UpdatedAt.UnixMilli()),
		payloadSeq:        qdrant.NewValueInt(int64(seq)),
	}
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		payload[payloadMetadata] = qdrant.NewValueString(string(meta))
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(c.ID),
		Vectors: qdrant.NewVectors(c.Embedding...),
		Payload: payload,
	}, nil
}

// chunkFromPayload rebuilds a chunk from a point's id, payload and vector.
func chunkFromPayload(id string, payload map[string]*qdrant.Value, vec []float32) (rag.Chunk, error) {
	c := rag.Chunk{
		ID:         id,
		TenantID:   payload[payloadBotID].GetIntegerValue(),
		DocumentID: payload[payloadDocumentID].GetStringValue(),
		Filename:   payload[payloadFilename].GetStringValue(),
		Text:       payload[payloadText].GetStringValue(),
		Embedding:  vec,
		CreatedAt:  time.UnixMilli(payload[payloadCreatedAt].GetIntegerValue()).UTC(),
		UpdatedAt:  time.UnixMilli(payload[payloadUpdatedAt].GetIntegerValue()).UTC(),
	}
	meta, err := decodeMetadata([]byte(payload[payloadMetadata].GetStringValue()))
	if err != nil {
		return rag.Chunk{}, fmt.Errorf("point %s: %w", id, err)
	}
	c.Metadata = meta
	return c, nil
}

// denseVector extracts the dense vector from a retrieved point.
func denseVector(p *qdrant.RetrievedPoint) []float32 {
	out := p.GetVectors().GetVector()
	if d := out.GetDense(); d != nil {
		return d.GetData()
	}
	return out.GetData()
}

// storedChunk is a chunk with its batch position.
type storedChunk struct {
	chunk rag.Chunk
	seq   int64
}

// sortByInsertion orders chunks by creation time, then batch position,
// then id. Points written without a seq read as 0.
func sortByInsertion(s []storedChunk) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := &s[i], &s[j]
		if !a.chunk.CreatedAt.Equal(b.chunk.CreatedAt) {
			return a.chunk.CreatedAt.Before(b.chunk.CreatedAt)
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.chunk.ID < b.chunk.ID
	})
}

func matchInt(key string, v int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}},
			},
		},
	}
}

func matchKeyword(key, v string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}},
			},
		},
	}
}

// tenantFilter matches every point of tenantID.
func tenantFilter(tenantID int64) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{matchInt(payloadBotID, tenantID)}}
}

// documentFilter matches the points of documentID, restricted to tenantID
// when it is positive.
func documentFilter(documentID string, tenantID int64) *qdrant.Filter {
	must := []*qdrant.Condition{matchKeyword(payloadDocumentID, documentID)}
	if tenantID > 0 {
		must = append(must, matchInt(payloadBotID, tenantID))
	}
	return &qdrant.Filter{Must: must}
}
