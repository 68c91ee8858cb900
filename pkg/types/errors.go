package types

import (
	"errors"
	"fmt"
)

var (
	// ErrRetrievalFailed is returned when every retrieval strategy failed for
	// a query. A single failing strategy is tolerated and excluded from fusion.
	ErrRetrievalFailed = errors.New("all retrieval strategies failed")

	// ErrRerankerUnavailable signals that the cross-encoder stage could not be
	// reached. Callers fall back to the heuristic reranker.
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrNotFound is returned by stores for unknown unit or entity identifiers.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// dimensionality fixed at store creation.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ValidationError rejects malformed input before any retrieval or storage
// work is done.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CollaboratorError wraps a failure of an external collaborator (store,
// embedder, cross-encoder, LLM) with the collaborator's name.
type CollaboratorError struct {
	Name string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Name, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// NewCollaboratorError wraps err, or returns nil if err is nil.
func NewCollaboratorError(name string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Name: name, Err: err}
}
