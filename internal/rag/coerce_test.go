package rag

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestCoerceValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     []any
		policy  CoercionPolicy
		want    []float32
		wantErr error
	}{
		{"numbers", []any{0.5, float64(-1), 2}, CoerceReject, []float32{0.5, -1, 2}, nil},
		{"numeric strings", []any{"0.25", " 3 "}, CoerceReject, []float32{0.25, 3}, nil},
		{"json numbers", []any{json.Number("1.5")}, CoerceReject, []float32{1.5}, nil},
		{"reject non-numeric", []any{0.1, "abc"}, CoerceReject, nil, ErrInvalidVectorElement},
		{"reject null", []any{nil}, CoerceReject, nil, ErrInvalidVectorElement},
		{"reject overflow", []any{1e300}, CoerceReject, nil, ErrInvalidVectorElement},
		{"zero non-numeric", []any{0.1, "abc", true}, CoerceZero, []float32{0.1, 0, 0}, nil},
		{"empty", []any{}, CoerceReject, nil, ErrEmptyVector},
		{"nil", nil, CoerceZero, nil, ErrEmptyVector},
	}
	for _, tt := range tests {
		got, err := CoerceValues(tt.raw, tt.policy, nil)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s[%d]: got %v, want %v", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestPrepareEmbedding(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())

	if _, err := PrepareEmbedding(nil, CoerceZero, nil); err == nil ||
		!strings.Contains(err.Error(), "vector must have at least 1 dimension") {
		t.Errorf("empty: unexpected error %v", err)
	}
	if _, err := PrepareEmbedding([]float32{1, nan}, CoerceReject, nil); !errors.Is(err, ErrInvalidVectorElement) {
		t.Errorf("NaN with reject: got %v", err)
	}

	in := []float32{1, nan, 2}
	got, err := PrepareEmbedding(in, CoerceZero, discardLogger())
	if err != nil {
		t.Fatalf("NaN with zero: %v", err)
	}
	if got[1] != 0 || got[0] != 1 || got[2] != 2 {
		t.Errorf("got %v", got)
	}
	if !math.IsNaN(float64(in[1])) {
		t.Error("input slice must not be modified")
	}
}

func TestParseCoercionPolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]CoercionPolicy{"": CoerceReject, "reject": CoerceReject, "ZERO": CoerceZero} {
		got, err := ParseCoercionPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseCoercionPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCoercionPolicy("drop"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestNewChunk_Validation(t *testing.T) {
	t.Parallel()

	valid := ChunkInput{TenantID: 7, DocumentID: "D1", Text: "hello", Embedding: []float32{0.1, 0.2}}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	c, err := NewChunk(valid, CoerceReject, now, nil)
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	if c.ID == "" || !c.CreatedAt.Equal(now) || !c.UpdatedAt.Equal(now) {
		t.Errorf("id/timestamps not assigned: %+v", c)
	}

	tests := []struct {
		name   string
		mutate func(*ChunkInput)
		want   error
	}{
		{"tenant", func(in *ChunkInput) { in.TenantID = 0 }, ErrInvalidTenant},
		{"document", func(in *ChunkInput) { in.DocumentID = " " }, ErrMissingDocumentID},
		{"text", func(in *ChunkInput) { in.Text = "\n\t" }, ErrEmptyText},
		{"embedding", func(in *ChunkInput) { in.Embedding = nil }, ErrEmptyVector},
	}
	for _, tt := range tests {
		in := valid
		tt.mutate(&in)
		if _, err := NewChunk(in, CoerceReject, now, nil); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestNewChunk_CopiesMetadata(t *testing.T) {
	t.Parallel()

	meta := map[string]any{"source": "a.pdf"}
	c, err := NewChunk(ChunkInput{TenantID: 1, DocumentID: "D", Text: "t", Embedding: []float32{1}, Metadata: meta},
		CoerceReject, time.Now(), nil)
	if err != nil {
		t.Fatal(err)
	}
	meta["source"] = "changed"
	if c.Metadata["source"] != "a.pdf" {
		t.Error("chunk metadata must not alias the input map")
	}
}
