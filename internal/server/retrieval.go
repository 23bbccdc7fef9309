package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/botrag-go/internal/ingestion"
	"github.com/54b3r/botrag-go/internal/logging"
)

// errIngestDisabled is returned by POST /ingest when no pipeline is wired.
var errIngestDisabled = errors.New("ingestion is not enabled on this server")

// handleRetrieveDocuments handles POST /retrieval/documents.
func (s *Server) handleRetrieveDocuments(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	results, err := s.deps.Retriever.Retrieve(r.Context(), req.BotID, req.Query, req.K)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(results))
}

// handlePrepareContext handles POST /retrieval/prepare-context. No relevant
// chunk yields {"context": ""} with 200.
func (s *Server) handlePrepareContext(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	text, err := s.deps.Retriever.PrepareContext(r.Context(), req.BotID, req.Query, req.K)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, contextResponse{Context: text})
}

// handleRAGQuery handles POST /rag/query. Retrieval failures are reported
// inside the 200 response body; only a malformed request is rejected.
func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	var req ragQueryRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	ans := s.deps.Assembler.Answer(r.Context(), req.BotID, req.Query, req.MaxResults)

	outcome := "found"
	switch {
	case ans.Error != "":
		outcome = "error"
	case !ans.Found:
		outcome = "empty"
	}
	s.metrics.ragQueries.WithLabelValues(outcome).Inc()
	s.metrics.ragDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	writeJSON(w, r, http.StatusOK, ans)
}

// handleIngest handles POST /ingest. A multipart/form-data body carries the
// document in the "file" part with botId, documentId and an optional JSON
// metadata field; a JSON body names a URL to fetch.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "not_configured", Message: errIngestDisabled.Error()})
		return
	}

	var (
		res *ingestion.Result
		err error
	)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		res, err = s.ingestUpload(w, r)
	} else {
		res, err = s.ingestURL(w, r)
	}
	if err != nil {
		s.metrics.ingestions.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}

	s.metrics.ingestions.WithLabelValues("ok").Inc()
	s.metrics.chunksSaved.Add(float64(res.Stored))
	logging.FromContext(r.Context()).Info("document ingested",
		slog.String("document_id", res.DocumentID),
		slog.Int("stored", res.Stored),
		slog.Int("failed", res.Failed),
	)
	writeJSON(w, r, http.StatusCreated, res)
}

func (s *Server) ingestURL(w http.ResponseWriter, r *http.Request) (*ingestion.Result, error) {
	var req ingestURLRequest
	if err := s.decode(w, r, &req); err != nil {
		return nil, err
	}
	return s.deps.Ingester.IngestURL(r.Context(), req.BotID, req.DocumentID, req.URL, req.Metadata)
}

func (s *Server) ingestUpload(w http.ResponseWriter, r *http.Request) (*ingestion.Result, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return nil, badRequest("invalid multipart body: %v", err)
	}

	botID, err := strconv.ParseInt(r.FormValue("botId"), 10, 64)
	if err != nil || botID <= 0 {
		return nil, badRequest("botId must be a positive integer")
	}
	documentID := r.FormValue("documentId")
	if documentID == "" {
		return nil, badRequest("documentId is required")
	}
	var metadata map[string]any
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return nil, badRequest("metadata must be a JSON object: %v", err)
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest("file is required: %v", err)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, badRequest("reading upload: %v", err)
	}

	return s.deps.Ingester.Ingest(r.Context(), ingestion.Document{
		TenantID:    botID,
		DocumentID:  documentID,
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		Metadata:    metadata,
	})
}
