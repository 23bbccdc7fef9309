package rag

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyVector is returned for a missing or zero-length embedding.
	// Callers match on it to choose between retrying and giving up.
	ErrEmptyVector = errors.New("vector must have at least 1 dimension")

	// ErrEmptyText is returned when chunk text is empty after trimming.
	ErrEmptyText = errors.New("text must not be empty")

	// ErrEmptyQuery is returned when query text is empty after trimming.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidVectorElement is returned when a vector element is not a
	// finite number and cannot be coerced into one.
	ErrInvalidVectorElement = errors.New("vector contains a non-numeric element")

	// ErrInvalidTenant is returned for a non-positive tenant id on writes.
	ErrInvalidTenant = errors.New("botId must be a positive integer")

	// ErrMissingDocumentID is returned when a chunk has no document id.
	ErrMissingDocumentID = errors.New("documentId must not be empty")

	// ErrDimensionMismatch is a data-integrity error: two vectors compared
	// in one query have different lengths.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrOperatorUnavailable marks a native search failure caused by the
	// storage engine lacking the vector distance operator.
	ErrOperatorUnavailable = errors.New("native vector operator unavailable")
)

// IsValidation reports whether err is a caller input error that no retry
// can fix.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyVector) ||
		errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrInvalidVectorElement) ||
		errors.Is(err, ErrInvalidTenant) ||
		errors.Is(err, ErrMissingDocumentID)
}

// operatorError wraps a native-path failure so it matches
// ErrOperatorUnavailable while keeping the driver message.
type operatorError struct {
	cause error
}

func (e *operatorError) Error() string {
	return ErrOperatorUnavailable.Error() + ": " + e.cause.Error()
}

func (e *operatorError) Unwrap() []error {
	return []error{ErrOperatorUnavailable, e.cause}
}

// ClassifyOperatorError returns err wrapped as ErrOperatorUnavailable when
// its message carries token, the distance operator or function name the
// backend uses. Any other error is returned unchanged.
func ClassifyOperatorError(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	if errors.Is(err, ErrOperatorUnavailable) {
		return err
	}
	if strings.Contains(err.Error(), token) {
		return &operatorError{cause: err}
	}
	return err
}
