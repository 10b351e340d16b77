// Package memory provides the copy-on-write transactional entity store. It is
// used directly for tests and ephemeral environments and, with a Journal, as
// the working set of the durable sqlite and postgres backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"questionbank/internal/id"
	"questionbank/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// Journal durably records committed collection state. Save must be atomic and
// must refuse to overwrite a collection whose stored version differs from
// expected, returning an error matching domain.ErrConcurrencyConflict.
type Journal interface {
	Version(ctx context.Context, collection string) (int64, error)
	Load(ctx context.Context, collection string) ([]domain.Entity, int64, error)
	Save(ctx context.Context, collection string, entities []domain.Entity, expected int64) (int64, error)
}

type collectionState struct {
	mu       sync.Mutex
	entities []domain.Entity
	version  int64
	loaded   bool
}

// Store provides an in-memory transactional store. Every collection has its
// own lock, held for the whole transaction.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collectionState
	engine      *domain.RulesEngine
	journal     Journal
	nowFn       func() time.Time
	idFn        func() string
}

// Option customises a Store.
type Option func(*Store)

// WithJournal makes every commit durable through j before it becomes visible.
func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides the internal identity generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.idFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		collections: make(map[string]*collectionState),
		engine:      engine,
		nowFn:       func() time.Time { return time.Now().UTC() },
		idFn:        id.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RulesEngine exposes the engine evaluated before each commit.
func (s *Store) RulesEngine() *domain.RulesEngine {
	return s.engine
}

func (s *Store) collection(name string) *collectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &collectionState{}
		s.collections[name] = c
	}
	return c
}

// refresh reloads c from the journal when another writer moved it. Callers hold c.mu.
func (s *Store) refresh(ctx context.Context, name string, c *collectionState) error {
	if s.journal == nil {
		c.loaded = true
		return nil
	}
	if c.loaded {
		v, err := s.journal.Version(ctx, name)
		if err != nil {
			return fmt.Errorf("read version of %s: %w", name, err)
		}
		if v == c.version {
			return nil
		}
	}
	entities, v, err := s.journal.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	c.entities = entities
	c.version = v
	c.loaded = true
	return nil
}

// RunInTransaction executes fn within a transactional copy of one collection.
// The copy replaces the committed state only if fn succeeds, the context is
// still live, no blocking rule fires and the journal accepts the write.
func (s *Store) RunInTransaction(ctx context.Context, collection string, fn func(tx domain.Transaction) error) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	c := s.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.refresh(ctx, collection, c); err != nil {
		return domain.Result{}, err
	}

	tx := &transaction{
		store:      s,
		collection: collection,
		entities:   domain.CloneEntities(c.entities),
		now:        creationTime(s.nowFn(), c.entities),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) == 0 {
		return result, nil
	}

	next := c.version + 1
	if s.journal != nil {
		v, err := s.journal.Save(ctx, collection, tx.entities, c.version)
		if err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				c.loaded = false
			}
			return result, err
		}
		next = v
	}
	c.entities = tx.entities
	c.version = next
	return result, nil
}

// creationTime keeps CreatedAt strictly increasing within a collection so
// creation order matches allocation order when clocks step backwards or
// differ between writers.
func creationTime(now time.Time, entities []domain.Entity) time.Time {
	for _, e := range entities {
		if !now.After(e.CreatedAt) {
			now = e.CreatedAt.Add(time.Nanosecond)
		}
	}
	return now
}

// View executes fn against a read-only snapshot of one collection.
func (s *Store) View(ctx context.Context, collection string, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := s.collection(collection)
	c.mu.Lock()
	if err := s.refresh(ctx, collection, c); err != nil {
		c.mu.Unlock()
		return err
	}
	snapshot := &transaction{
		store:      s,
		collection: collection,
		entities:   domain.CloneEntities(c.entities),
	}
	c.mu.Unlock()
	return fn(snapshot)
}

// Version returns the committed version of a collection; zero when it has
// never been written.
func (s *Store) Version(collection string) int64 {
	c := s.collection(collection)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// transaction is the working copy of one collection. Entities are kept in
// insertion order, which is the tie-break for equal CreatedAt values.
type transaction struct {
	store      *Store
	collection string
	entities   []domain.Entity
	changes    []domain.Change
	now        time.Time
}

func (tx *transaction) recordChange(action domain.Action, before, after *domain.Entity) {
	tx.changes = append(tx.changes, domain.Change{
		Collection: tx.collection,
		Action:     action,
		Before:     before,
		After:      after,
	})
}

func (tx *transaction) indexOf(id string) int {
	for i := range tx.entities {
		if tx.entities[i].SequenceID == id {
			return i
		}
	}
	return -1
}

// Collection returns the collection the transaction is scoped to.
func (tx *transaction) Collection() string { return tx.collection }

// Exists reports whether id is present.
func (tx *transaction) Exists(id string) bool { return tx.indexOf(id) >= 0 }

// Count returns the number of entities.
func (tx *transaction) Count() int { return len(tx.entities) }

// FindByID retrieves an entity by sequence id.
func (tx *transaction) FindByID(id string) (domain.Entity, error) {
	i := tx.indexOf(id)
	if i < 0 {
		return domain.Entity{}, &domain.NotFoundError{Collection: tx.collection, ID: id}
	}
	return tx.entities[i].Clone(), nil
}

// FindAllOrderedByCreation returns entities by ascending CreatedAt, ties in insertion order.
func (tx *transaction) FindAllOrderedByCreation() []domain.Entity {
	out := domain.CloneEntities(tx.entities)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// InsertWithID stores a new entity under id.
func (tx *transaction) InsertWithID(id string, payload domain.Payload, provenance domain.Provenance) (domain.Entity, error) {
	if id == "" {
		return domain.Entity{}, fmt.Errorf("%w: empty sequence id", domain.ErrInvalidInput)
	}
	if !provenance.Valid() {
		return domain.Entity{}, fmt.Errorf("%w: provenance %q", domain.ErrInvalidInput, provenance)
	}
	if tx.indexOf(id) >= 0 {
		return domain.Entity{}, &domain.DuplicateIDError{Collection: tx.collection, ID: id}
	}
	e := domain.Entity{
		InternalID: tx.store.idFn(),
		SequenceID: id,
		CreatedAt:  tx.now,
		Provenance: provenance,
		Payload:    payload.Clone(),
	}
	tx.entities = append(tx.entities, e)
	after := e.Clone()
	tx.recordChange(domain.ActionCreate, nil, &after)
	return e.Clone(), nil
}

// UpdateID rewrites the sequence identifier of one entity.
func (tx *transaction) UpdateID(oldID, newID string) error {
	i := tx.indexOf(oldID)
	if i < 0 {
		return &domain.NotFoundError{Collection: tx.collection, ID: oldID}
	}
	if oldID == newID {
		return nil
	}
	if newID == "" {
		return fmt.Errorf("%w: empty sequence id", domain.ErrInvalidInput)
	}
	if tx.indexOf(newID) >= 0 {
		return &domain.DuplicateIDError{Collection: tx.collection, ID: newID}
	}
	before := tx.entities[i].Clone()
	tx.entities[i].SequenceID = newID
	after := tx.entities[i].Clone()
	tx.recordChange(domain.ActionRenumber, &before, &after)
	return nil
}

// DeleteByID removes an entity preserving the order of the rest.
func (tx *transaction) DeleteByID(id string) error {
	i := tx.indexOf(id)
	if i < 0 {
		return &domain.NotFoundError{Collection: tx.collection, ID: id}
	}
	before := tx.entities[i].Clone()
	tx.entities = append(tx.entities[:i:i], tx.entities[i+1:]...)
	tx.recordChange(domain.ActionDelete, &before, nil)
	return nil
}
