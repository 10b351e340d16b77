package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionbank/internal/sequence"
	"questionbank/pkg/domain"
)

var verbalFormat = sequence.Format{Prefix: "V", Separator: "-", Width: 3}

func entitiesWithIDs(ids ...string) []domain.Entity {
	out := make([]domain.Entity, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.Entity{InternalID: string(rune('a' + i)), SequenceID: id})
	}
	return out
}

func TestPlanRenumberClosesGap(t *testing.T) {
	moves, err := planRenumber(verbalFormat, entitiesWithIDs("V-001", "V-003", "V-004"))
	require.NoError(t, err)
	want := []Move{
		{InternalID: "b", From: "V-003", To: "V-002"},
		{InternalID: "c", From: "V-004", To: "V-003"},
	}
	if diff := cmp.Diff(want, moves); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, needsParking(entitiesWithIDs("V-001", "V-003", "V-004"), moves))
}

func TestPlanRenumberCompactCollectionHasNoMoves(t *testing.T) {
	moves, err := planRenumber(verbalFormat, entitiesWithIDs("V-001", "V-002"))
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestNeedsParkingWhenCreationOrderDisagreesWithSuffixes(t *testing.T) {
	ordered := entitiesWithIDs("V-002", "V-001")
	moves, err := planRenumber(verbalFormat, ordered)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.True(t, needsParking(ordered, moves))
}

func TestApplyRenumberParksSwappedIdentifiers(t *testing.T) {
	registry := MustDefaultRegistry()
	store := newMemoryStore(registry)
	svc := NewService(store, registry)
	seeded := seedCollection(t, svc, verbal, "first", "second")

	// Swap the labels directly so creation order and suffix order disagree.
	_, err := store.RunInTransaction(ctxBackground(), verbal, func(tx domain.Transaction) error {
		require.NoError(t, tx.UpdateID("V-001", "V-tmp"))
		require.NoError(t, tx.UpdateID("V-002", "V-001"))
		return tx.UpdateID("V-tmp", "V-002")
	})
	require.NoError(t, err)

	report, err := svc.Renumber(ctxBackground(), verbal)
	require.NoError(t, err)
	assert.Len(t, report.Moves, 2)

	entities, err := svc.List(ctxBackground(), verbal)
	require.NoError(t, err)
	assert.Equal(t, []string{"V-001", "V-002"}, sequenceIDs(entities))
	assert.Equal(t, internalIDs(seeded), internalIDs(entities))
}

func TestApplyRenumberRejectsOccupiedParkingSlot(t *testing.T) {
	registry := MustDefaultRegistry()
	store := newMemoryStore(registry)
	_, err := store.RunInTransaction(ctxBackground(), "scratch", func(tx domain.Transaction) error {
		a, err := tx.InsertWithID("V-002", domain.Payload{}, domain.ProvenanceManual)
		require.NoError(t, err)
		_, err = tx.InsertWithID("V-001", domain.Payload{}, domain.ProvenanceManual)
		require.NoError(t, err)
		_, err = tx.InsertWithID("~"+a.InternalID+"~V-002", domain.Payload{}, domain.ProvenanceManual)
		require.NoError(t, err)

		ordered := tx.FindAllOrderedByCreation()[:2]
		moves, err := planRenumber(verbalFormat, ordered)
		require.NoError(t, err)
		err = applyRenumber(tx, ordered, moves)
		assert.ErrorIs(t, err, domain.ErrDuplicateID)
		return err
	})
	assert.Error(t, err)
}
