package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Typed errors below unwrap to them.
var (
	ErrNotFound            = errors.New("not found")
	ErrTransactionFailure  = errors.New("transaction failed")
	ErrAllocationExhausted = errors.New("sequence allocation exhausted")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrDuplicateID         = errors.New("duplicate sequence id")
	ErrUnknownCollection   = errors.New("unknown collection")
	ErrInvalidInput        = errors.New("invalid input")
)

// NotFoundError indicates a sequence identifier is absent from a collection.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateIDError indicates a write would make two entities share a sequence id.
type DuplicateIDError struct {
	Collection string
	ID         string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Collection, e.ID)
}

func (e *DuplicateIDError) Unwrap() error {
	return ErrDuplicateID
}

// TransactionError reports a failure inside an atomic scope. The transaction
// was aborted and the collection is unchanged. It matches both
// ErrTransactionFailure and the underlying cause.
type TransactionError struct {
	Op         string
	Collection string
	// Step names the failing phase, e.g. "delete", "renumber", "commit".
	Step string
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Collection, e.Step, e.Err)
}

func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransactionFailure, e.Err}
}

// ConflictError reports that a concurrent writer changed the collection
// between read and commit.
type ConflictError struct {
	Collection string
	Expected   int64
	Actual     int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("collection %s changed concurrently (expected version %d, found %d)", e.Collection, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
