package rag

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CoercionPolicy decides what happens to a vector element that is not a
// finite number.
type CoercionPolicy int

const (
	// CoerceReject fails the whole vector with ErrInvalidVectorElement.
	CoerceReject CoercionPolicy = iota
	// CoerceZero replaces the element with 0 and logs a warning.
	CoerceZero
)

// ParseCoercionPolicy maps "reject" and "zero" to a policy.
func ParseCoercionPolicy(s string) (CoercionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return CoerceReject, nil
	case "zero":
		return CoerceZero, nil
	default:
		return CoerceReject, fmt.Errorf("rag: unknown coercion policy %q", s)
	}
}

func (p CoercionPolicy) String() string {
	if p == CoerceZero {
		return "zero"
	}
	return "reject"
}

// CoerceValues converts decoded JSON values into a float32 vector. Numbers
// and numeric strings are accepted; anything else, and any value that is not
// finite as a float32, is handled per policy. A nil or empty input returns
// ErrEmptyVector.
func CoerceValues(raw []any, policy CoercionPolicy, log *slog.Logger) ([]float32, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyVector
	}

	out := make([]float32, len(raw))
	for i, v := range raw {
		f, ok := toFloat(v)
		if ok {
			f32 := float32(f)
			if !math.IsInf(float64(f32), 0) {
				out[i] = f32
				continue
			}
		}
		if policy == CoerceReject {
			return nil, fmt.Errorf("%w: index %d (%v)", ErrInvalidVectorElement, i, v)
		}
		if log != nil {
			log.Warn("rag: coerced invalid vector element to 0",
				slog.Int("index", i),
				slog.Any("value", v),
			)
		}
		out[i] = 0
	}
	return out, nil
}

// PrepareEmbedding validates an already-typed vector: it must be non-empty
// and every element finite. Non-finite elements are handled per policy.
// The input slice is never modified.
func PrepareEmbedding(vec []float32, policy CoercionPolicy, log *slog.Logger) ([]float32, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}

	out := make([]float32, len(vec))
	for i, f := range vec {
		if !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0) {
			out[i] = f
			continue
		}
		if policy == CoerceReject {
			return nil, fmt.Errorf("%w: index %d (%v)", ErrInvalidVectorElement, i, f)
		}
		if log != nil {
			log.Warn("rag: coerced non-finite vector element to 0", slog.Int("index", i))
		}
	}
	return out, nil
}

// NewChunk validates in and returns a Chunk with a fresh id and timestamps
// set to now. Text is stored as given; only emptiness is checked on the
// trimmed form.
func NewChunk(in ChunkInput, policy CoercionPolicy, now time.Time, log *slog.Logger) (Chunk, error) {
	if in.TenantID <= 0 {
		return Chunk{}, ErrInvalidTenant
	}
	if strings.TrimSpace(in.DocumentID) == "" {
		return Chunk{}, ErrMissingDocumentID
	}
	if strings.TrimSpace(in.Text) == "" {
		return Chunk{}, ErrEmptyText
	}
	vec, err := PrepareEmbedding(in.Embedding, policy, log)
	if err != nil {
		return Chunk{}, err
	}

	return Chunk{
		ID:         uuid.NewString(),
		TenantID:   in.TenantID,
		DocumentID: in.DocumentID,
		Filename:   in.Filename,
		Text:       in.Text,
		Embedding:  vec,
		Metadata:   maps.Clone(in.Metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// toFloat converts a decoded JSON value to float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
