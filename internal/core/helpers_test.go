package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"questionbank/internal/infra/persistence/memory"
	"questionbank/pkg/domain"
)

const verbal = "verbal"

var errInjected = errors.New("injected failure")

// tickingClock advances one second per reading so every transaction gets a
// distinct CreatedAt.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ent-%04d", g.n)
}

func newMemoryStore(registry *Registry, opts ...memory.Option) *memory.Store {
	clock := newTickingClock()
	ids := &sequentialIDs{}
	base := []memory.Option{memory.WithClock(clock.Now), memory.WithIDGenerator(ids.next)}
	return memory.NewStore(NewDefaultRulesEngine(registry), append(base, opts...)...)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	registry := MustDefaultRegistry()
	return NewService(newMemoryStore(registry), registry, opts...)
}

func stem(t *testing.T, text string) domain.Payload {
	t.Helper()
	p, err := domain.NewPayloadFromValue(map[string]string{"stem": text})
	require.NoError(t, err)
	return p
}

// seedCollection creates one entity per stem, each in its own transaction.
func seedCollection(t *testing.T, svc *Service, collection string, stems ...string) []domain.Entity {
	t.Helper()
	out := make([]domain.Entity, 0, len(stems))
	for _, s := range stems {
		created, err := svc.Create(context.Background(), collection, []domain.Payload{stem(t, s)}, "")
		require.NoError(t, err)
		out = append(out, created...)
	}
	return out
}

func listIDs(t *testing.T, svc *Service, collection string) []string {
	t.Helper()
	entities, err := svc.List(context.Background(), collection)
	require.NoError(t, err)
	return sequenceIDs(entities)
}

func sequenceIDs(entities []domain.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.SequenceID)
	}
	return out
}

func internalIDs(entities []domain.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.InternalID)
	}
	return out
}

// faultyStore wraps a store and fails the n-th UpdateID of a transaction.
type faultyStore struct {
	domain.PersistentStore
	mu           sync.Mutex
	failUpdateAt int
	failDelete   bool
	updates      int
}

func (s *faultyStore) RunInTransaction(ctx context.Context, collection string, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.PersistentStore.RunInTransaction(ctx, collection, func(tx domain.Transaction) error {
		return fn(&faultyTx{Transaction: tx, store: s})
	})
}

func (s *faultyStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type faultyTx struct {
	domain.Transaction
	store *faultyStore
	calls int
}

func (tx *faultyTx) UpdateID(oldID, newID string) error {
	tx.calls++
	tx.store.mu.Lock()
	tx.store.updates++
	failAt := tx.store.failUpdateAt
	tx.store.mu.Unlock()
	if failAt > 0 && tx.calls == failAt {
		return errInjected
	}
	return tx.Transaction.UpdateID(oldID, newID)
}

func (tx *faultyTx) DeleteByID(id string) error {
	tx.store.mu.Lock()
	fail := tx.store.failDelete
	tx.store.mu.Unlock()
	if fail {
		return errInjected
	}
	return tx.Transaction.DeleteByID(id)
}

// racingJournal loses the first `races` saves to a foreign writer that
// appends one entity to the collection.
type racingJournal struct {
	mu       sync.Mutex
	entities []domain.Entity
	version  int64
	races    int
	saves    int
	foreign  func(current []domain.Entity) domain.Entity
}

func (j *racingJournal) Version(context.Context, string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.version, nil
}

func (j *racingJournal) Load(context.Context, string) ([]domain.Entity, int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return domain.CloneEntities(j.entities), j.version, nil
}

func (j *racingJournal) Save(_ context.Context, collection string, entities []domain.Entity, expected int64) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.races > 0 {
		j.races--
		if j.foreign != nil {
			j.entities = append(j.entities, j.foreign(j.entities))
		}
		j.version++
	}
	if expected != j.version {
		return 0, &domain.ConflictError{Collection: collection, Expected: expected, Actual: j.version}
	}
	j.saves++
	j.entities = domain.CloneEntities(entities)
	j.version++
	return j.version, nil
}
