package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/54b3r/botrag-go/internal/embedder"
	"github.com/54b3r/botrag-go/internal/ingestion"
	"github.com/54b3r/botrag-go/internal/logging"
	"github.com/54b3r/botrag-go/internal/rag"
)

// maxJSONBody caps JSON request bodies. Batch saves carry full vectors.
const maxJSONBody = 32 << 20

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	// Error is a stable machine-readable code (bad_request, not_configured, ...).
	Error string `json:"error"`
	// Message is the human-readable cause.
	Message string `json:"message,omitempty"`
	// Details carries per-field validation messages.
	Details map[string]string `json:"details,omitempty"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError maps err onto a status code and writes an errorResponse.
//
//	validation (rag.IsValidation, bad DTO)  400
//	embedder.ErrNotConfigured                503
//	embedder.ErrProviderFailure              502
//	anything else                            500
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: code, Message: err.Error()}

	var verr *validationError
	if errors.As(err, &verr) {
		resp.Message = verr.Message
		resp.Details = verr.Fields
	}

	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Info("request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, r, status, resp)
}

func classify(err error) (int, string) {
	var verr *validationError
	switch {
	case errors.As(err, &verr), rag.IsValidation(err), errors.Is(err, ingestion.ErrNoContent):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, embedder.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	case errors.Is(err, embedder.ErrProviderFailure), errors.Is(err, embedder.ErrNoSuccessfulEmbeddings):
		return http.StatusBadGateway, "embedding_provider_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// validationError is a malformed or invalid request body.
type validationError struct {
	Message string
	Fields  map[string]string
}

func (e *validationError) Error() string { return e.Message }

func badRequest(format string, args ...any) error {
	return &validationError{Message: fmt.Sprintf(format, args...)}
}

// decode reads a JSON body into the struct pointed to by dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	return s.check(dst)
}

// decodeJSON reads a JSON body into dst without validation.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// check runs the struct validator over v, a pointer to a request struct.
func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			fields[name] = name + " is required"
		case "gt":
			fields[name] = fmt.Sprintf("%s must be greater than %s", name, fe.Param())
		case "gte":
			fields[name] = fmt.Sprintf("%s must be at least %s", name, fe.Param())
		case "lte":
			fields[name] = fmt.Sprintf("%s must be at most %s", name, fe.Param())
		case "url":
			fields[name] = name + " must be a valid URL"
		default:
			fields[name] = fmt.Sprintf("%s failed the %q check", name, fe.Tag())
		}
	}
	return &validationError{Message: "validation failed", Fields: fields}
}
