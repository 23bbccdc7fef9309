package server

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/54b3r/botrag-go/internal/logging"
	"github.com/54b3r/botrag-go/internal/rag"
)

// handleSaveChunk handles POST /vector-store/chunk: it stores one chunk
// with a caller-supplied embedding.
func (s *Server) handleSaveChunk(w http.ResponseWriter, r *http.Request) {
	var req saveChunkRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := s.chunkInput(r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	chunk, err := s.deps.Store.Save(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.chunksSaved.Add(1)
	writeJSON(w, r, http.StatusCreated, chunk)
}

// handleGenerateChunk handles POST /vector-store/chunk/generate: it embeds
// the text, then stores it.
func (s *Server) handleGenerateChunk(w http.ResponseWriter, r *http.Request) {
	var req generateChunkRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	vec, err := s.deps.Embedder.Embed(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	chunk, err := s.deps.Store.Save(r.Context(), rag.ChunkInput{
		TenantID:   req.BotID,
		DocumentID: req.DocumentID,
		Filename:   req.Filename,
		Text:       req.Text,
		Embedding:  vec,
		Metadata:   withFilename(req.Metadata, req.Filename),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.chunksSaved.Add(1)
	writeJSON(w, r, http.StatusCreated, chunk)
}

// handleSaveChunks handles POST /vector-store/chunks: a JSON array of
// chunks with embeddings, saved as one batch.
func (s *Server) handleSaveChunks(w http.ResponseWriter, r *http.Request) {
	var reqs []saveChunkRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		writeError(w, r, err)
		return
	}

	inputs := make([]rag.ChunkInput, len(reqs))
	for i := range reqs {
		if err := s.check(&reqs[i]); err != nil {
			writeError(w, r, fmt.Errorf("chunk %d: %w", i, err))
			return
		}
		in, err := s.chunkInput(r, &reqs[i])
		if err != nil {
			writeError(w, r, fmt.Errorf("chunk %d: %w", i, err))
			return
		}
		inputs[i] = in
	}

	chunks, err := s.deps.Store.SaveBatch(r.Context(), inputs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.chunksSaved.Add(float64(len(chunks)))
	writeJSON(w, r, http.StatusCreated, chunks)
}

// handleDeleteDocument handles DELETE /vector-store/document/{documentId}?botId=.
// The delete is always scoped to one tenant.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	botID, err := queryBotID(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := s.deps.Store.DeleteByDocument(r.Context(), botID, documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("document chunks deleted",
		slog.Int64("tenant_id", botID),
		slog.String("document_id", documentID),
		slog.Int64("deleted", n),
	)
	writeJSON(w, r, http.StatusOK, deleteResponse{
		Success: true,
		Message: fmt.Sprintf("deleted %d chunks of document %s", n, documentID),
		Deleted: n,
	})
}

// handleCountChunks handles GET /vector-store/document/{documentId}/chunks-count.
// botId is optional; without it the count spans every tenant.
func (s *Server) handleCountChunks(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	botID, err := queryBotID(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := s.deps.Store.CountByDocument(r.Context(), documentID, botID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, countResponse{Count: n, DocumentID: documentID, BotID: botID})
}

// handleSearch handles POST /vector-store/search: the two-tier search. A
// query text is embedded when no queryEmbedding is supplied.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	vec, err := s.queryVector(r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := rag.SearchQuery{TenantID: req.BotID, Embedding: vec, K: topK(req.K), Threshold: rag.DefaultThreshold}
	if req.Threshold != nil {
		q.Threshold = *req.Threshold
	}
	results, err := s.deps.Store.Search(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(results))
}

// handleSimilaritySearch handles POST /vector-store/similarity-search: the
// brute-force scan with no threshold.
func (s *Server) handleSimilaritySearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	vec, err := s.queryVector(r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := s.deps.Store.SimilaritySearch(r.Context(), req.BotID, vec, topK(req.K))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(results))
}

// chunkInput converts a save request, coercing the loosely typed embedding.
func (s *Server) chunkInput(r *http.Request, req *saveChunkRequest) (rag.ChunkInput, error) {
	vec, err := rag.CoerceValues(req.Embedding, s.cfg.Coerce, logging.FromContext(r.Context()))
	if err != nil {
		return rag.ChunkInput{}, err
	}

	md := withFilename(req.Metadata, req.Filename)
	if req.ChunkIndex != nil {
		md = setMeta(md, "chunkIndex", *req.ChunkIndex)
	}
	if req.TotalChunks != nil {
		md = setMeta(md, "totalChunks", *req.TotalChunks)
	}

	return rag.ChunkInput{
		TenantID:   req.BotID,
		DocumentID: req.DocumentID,
		Filename:   req.Filename,
		Text:       req.Text,
		Embedding:  vec,
		Metadata:   md,
	}, nil
}

// queryVector returns the supplied query embedding, or embeds the query
// text. Neither yields rag.ErrEmptyVector.
func (s *Server) queryVector(r *http.Request, req *searchRequest) ([]float32, error) {
	if len(req.QueryEmbedding) > 0 {
		return rag.CoerceValues(req.QueryEmbedding, s.cfg.Coerce, logging.FromContext(r.Context()))
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, rag.ErrEmptyVector
	}
	return s.deps.Embedder.Embed(r.Context(), req.Query)
}

// withFilename returns a copy of md with "filename" set, unless the caller
// already provided one.
func withFilename(md map[string]any, filename string) map[string]any {
	out := maps.Clone(md)
	if filename == "" {
		return out
	}
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out["filename"]; !ok {
		out["filename"] = filename
	}
	return out
}

func setMeta(md map[string]any, key string, v any) map[string]any {
	if md == nil {
		md = map[string]any{}
	}
	md[key] = v
	return md
}

// queryBotID parses the botId query parameter.
func queryBotID(r *http.Request, required bool) (int64, error) {
	raw := r.URL.Query().Get("botId")
	if raw == "" {
		if required {
			return 0, rag.ErrInvalidTenant
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, rag.ErrInvalidTenant
	}
	return id, nil
}

func topK(k int) int {
	if k <= 0 {
		return rag.DefaultTopK
	}
	return k
}

// nonNil renders an empty result list as [] rather than null.
func nonNil(results []rag.SearchResult) []rag.SearchResult {
	if results == nil {
		return []rag.SearchResult{}
	}
	return results
}
