package rag

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyOperatorError(t *testing.T) {
	t.Parallel()

	opErr := errors.New(`pq: operator does not exist: real[] <=> vector`)
	got := ClassifyOperatorError(opErr, "<=>")
	if !errors.Is(got, ErrOperatorUnavailable) {
		t.Fatalf("expected ErrOperatorUnavailable, got %v", got)
	}
	if !errors.Is(got, opErr) {
		t.Error("classified error must keep the driver error in its chain")
	}

	other := errors.New("pq: connection refused")
	if got := ClassifyOperatorError(other, "<=>"); got != other {
		t.Errorf("unrelated error was rewrapped: %v", got)
	}
	if ClassifyOperatorError(nil, "<=>") != nil {
		t.Error("nil in should be nil out")
	}
}

func TestIsValidation(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrEmptyVector, ErrEmptyQuery, ErrEmptyText, fmt.Errorf("store: save: %w", ErrInvalidVectorElement)} {
		if !IsValidation(err) {
			t.Errorf("IsValidation(%v) = false", err)
		}
	}
	for _, err := range []error{ErrDimensionMismatch, ErrOperatorUnavailable, errors.New("boom")} {
		if IsValidation(err) {
			t.Errorf("IsValidation(%v) = true", err)
		}
	}
}

func TestErrEmptyVector_MessageSurvivesWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("store: save: %w", ErrEmptyVector)
	want := "store: save: vector must have at least 1 dimension"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
