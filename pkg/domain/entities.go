// Package domain defines the persistent entities, value types, error taxonomy
// and rule evaluation primitives shared by the questionbank sequence core.
package domain

import (
	"fmt"
	"time"
)

// Provenance records how an entity came into existence.
type Provenance string

// Supported provenance values. Provenance is set at creation or clone time and
// never mutated afterwards.
const (
	// ProvenanceManual marks an entity created one at a time by an editor.
	ProvenanceManual Provenance = "manual"
	// ProvenanceBulk marks an entity created as part of a batch import.
	ProvenanceBulk Provenance = "bulk"
	// ProvenanceRegenerated marks a clone produced by Regenerate.
	ProvenanceRegenerated Provenance = "regenerated"
)

// Valid reports whether p is one of the known provenance values.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceManual, ProvenanceBulk, ProvenanceRegenerated:
		return true
	default:
		return false
	}
}

// ParseProvenance converts user input into a Provenance.
func ParseProvenance(raw string) (Provenance, error) {
	p := Provenance(raw)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown provenance %q", ErrInvalidInput, raw)
	}
	return p, nil
}

// Entity is one stored record of a collection: an opaque payload plus the
// identifier bookkeeping the sequence core is responsible for.
type Entity struct {
	// InternalID is the store-internal identity. It is stable across
	// renumbering and never copied by Regenerate.
	InternalID string `json:"internal_id"`
	// SequenceID is the human-readable display identifier, e.g. "V-001".
	SequenceID string     `json:"sequence_id"`
	CreatedAt  time.Time  `json:"created_at"`
	Provenance Provenance `json:"provenance"`
	Payload    Payload    `json:"payload"`
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	cp := e
	cp.Payload = e.Payload.Clone()
	return cp
}

// Equal reports whether two entities hold the same identity, metadata and payload.
func (e Entity) Equal(other Entity) bool {
	return e.InternalID == other.InternalID &&
		e.SequenceID == other.SequenceID &&
		e.CreatedAt.Equal(other.CreatedAt) &&
		e.Provenance == other.Provenance &&
		e.Payload.Equal(other.Payload)
}

// CloneEntities deep-copies a slice of entities preserving order.
func CloneEntities(in []Entity) []Entity {
	if in == nil {
		return nil
	}
	out := make([]Entity, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Collection string
	Action     Action
	Before     *Entity
	After      *Entity
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured in the transaction trail.
const (
	ActionCreate Action = "create"
	// ActionRenumber indicates only the sequence identifier was rewritten.
	ActionRenumber Action = "renumber"
	ActionDelete   Action = "delete"
)
