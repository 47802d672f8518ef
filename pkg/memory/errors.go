package memory

import (
	"errors"
	"fmt"
)

// Sentinel errors for the memory subsystem.
var (
	ErrInvalidUserID     = errors.New("memory: invalid user ID")
	ErrInvalidQuery      = errors.New("memory: invalid query")
	ErrInvalidRecord     = errors.New("memory: invalid record")
	ErrDimensionMismatch = errors.New("memory: vector dimension mismatch")
	ErrNotFound          = errors.New("memory: record not found")

	// ErrBudgetExceeded signals that no prompt candidate fits the token
	// budget. It never leaves the orchestrator; the turn degrades instead.
	ErrBudgetExceeded = errors.New("memory: context budget exceeded")

	// ErrMalformedSummary signals that the model produced unusable
	// summary JSON twice. It never leaves the summarizer; the extractive
	// fallback is used instead.
	ErrMalformedSummary = errors.New("memory: malformed summary")
)

// PersistenceError wraps a failed durable write or read. The vector
// index has already been rolled back when one is returned from Save.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("memory: persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err wraps a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
