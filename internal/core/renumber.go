package core

import (
	"fmt"

	"questionbank/internal/sequence"
	"questionbank/pkg/domain"
)

// Move records one identifier rewrite performed by a renumber pass.
type Move struct {
	InternalID string `json:"internal_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// planRenumber maps entities, in creation order, onto 1..N and returns only
// the entities whose identifier has to change.
func planRenumber(format sequence.Format, ordered []domain.Entity) ([]Move, error) {
	var moves []Move
	for i, e := range ordered {
		wanted, err := format.Render(i + 1)
		if err != nil {
			return nil, err
		}
		if e.SequenceID != wanted {
			moves = append(moves, Move{InternalID: e.InternalID, From: e.SequenceID, To: wanted})
		}
	}
	return moves, nil
}

// needsParking reports whether applying moves in order would hit a target
// still held by an entity that has not moved yet.
func needsParking(ordered []domain.Entity, moves []Move) bool {
	held := make(map[string]struct{}, len(ordered))
	for _, e := range ordered {
		held[e.SequenceID] = struct{}{}
	}
	for _, m := range moves {
		if _, busy := held[m.To]; busy {
			return true
		}
		delete(held, m.From)
		held[m.To] = struct{}{}
	}
	return false
}

// applyRenumber rewrites identifiers inside tx. When direct application
// would collide, every mover is first parked on a temporary identifier.
func applyRenumber(tx domain.Transaction, ordered []domain.Entity, moves []Move) error {
	if len(moves) == 0 {
		return nil
	}
	if !needsParking(ordered, moves) {
		for _, m := range moves {
			if err := tx.UpdateID(m.From, m.To); err != nil {
				return fmt.Errorf("move %s to %s: %w", m.From, m.To, err)
			}
		}
		return nil
	}
	parked := make([]string, len(moves))
	for i, m := range moves {
		tmp := "~" + m.InternalID + "~" + m.From
		if tx.Exists(tmp) {
			return &domain.DuplicateIDError{Collection: tx.Collection(), ID: tmp}
		}
		if err := tx.UpdateID(m.From, tmp); err != nil {
			return fmt.Errorf("park %s: %w", m.From, err)
		}
		parked[i] = tmp
	}
	for i, m := range moves {
		if err := tx.UpdateID(parked[i], m.To); err != nil {
			return fmt.Errorf("move %s to %s: %w", m.From, m.To, err)
		}
	}
	return nil
}
