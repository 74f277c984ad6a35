package types

import (
	"errors"
	"fmt"
)

// Domain errors for type validation
var (
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingRecord         = errors.New("record is required")
	ErrEmptyContent          = errors.New("content cannot be empty")

	// ErrNotFound is returned by stores for missing records
	ErrNotFound = errors.New("not found")
)

// ModelIntegrityError reports an element whose declared parent was not found
// in the same file. It points at a parser adapter defect and aborts the run.
type ModelIntegrityError struct {
	File      string
	Element   string
	ParentKey int
	Reason    string
}

func (e *ModelIntegrityError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("model integrity: %s: element %q: %s", e.File, e.Element, e.Reason)
	}
	return fmt.Sprintf("model integrity: %s: element %q references missing parent %d", e.File, e.Element, e.ParentKey)
}

// GenerationError is returned by documentation generators. Retryable failures
// (rate limits, timeouts, transient provider errors) are picked up again by the
// next run.
type GenerationError struct {
	ElementID string
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	if e.ElementID != "" {
		return fmt.Sprintf("generation failed for %s (%s): %v", e.ElementID, kind, e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StoreError wraps a vector store failure for one record or filter
type StoreError struct {
	Op        string
	Key       string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a retryable generation or store failure
func IsRetryable(err error) bool {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Retryable
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	return false
}
