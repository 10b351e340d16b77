package domain

import "context"

// TransactionView provides read-only access to one collection. Reads observe
// every write made earlier in the same transaction.
type TransactionView interface {
	Collection() string
	Exists(id string) bool
	FindByID(id string) (Entity, error)
	// FindAllOrderedByCreation returns entities by ascending CreatedAt. Ties
	// keep insertion order, so the result is stable across calls without
	// intervening writes.
	FindAllOrderedByCreation() []Entity
	Count() int
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic, single-collection scope.
type Transaction interface {
	TransactionView
	InsertWithID(id string, payload Payload, provenance Provenance) (Entity, error)
	// UpdateID rewrites only the sequence identifier of an entity.
	UpdateID(oldID, newID string) error
	DeleteByID(id string) error
}

// PersistentStore is the entity-store boundary consumed by the sequence core.
// RunInTransaction commits when fn returns nil and aborts otherwise; an
// aborted transaction has no observable effect.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, collection string, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, collection string, fn func(TransactionView) error) error
}
