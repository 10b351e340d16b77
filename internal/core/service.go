// Package core implements the sequence-identifier operations of the question
// bank: creation, delete-and-renumber, regenerate and their supporting reads.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	blobcore "questionbank/internal/blob/core"
	"questionbank/internal/infra/persistence/memory"
	"questionbank/internal/sequence"
	"questionbank/pkg/domain"
)

// DefaultOperationTimeout bounds a single service call.
const DefaultOperationTimeout = 10 * time.Second

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Service exposes the transactional sequence operations over a persistent store.
type Service struct {
	store    domain.PersistentStore
	registry *Registry
	logger   *zap.Logger
	metrics  MetricsRecorder
	clock    Clock
	archive  blobcore.Store
	retry    RetryPolicy
	timeout  time.Duration
	newOpID  func() string
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source used for durations and export names.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithArchive enables the deletion archive and snapshot export.
func WithArchive(store blobcore.Store) Option {
	return func(s *Service) { s.archive = store }
}

// WithRetryPolicy bounds replays after concurrency conflicts.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p.normalized() }
}

// WithOperationTimeout bounds each call. Zero disables the bound.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithOperationIDs overrides the generator of per-call correlation ids.
func WithOperationIDs(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newOpID = fn
		}
	}
}

// NewService constructs a service over store. The store's rules engine
// should carry DefaultRules for the same registry.
func NewService(store domain.PersistentStore, registry *Registry, opts ...Option) *Service {
	if registry == nil {
		registry = MustDefaultRegistry()
	}
	s := &Service{
		store:    store,
		registry: registry,
		logger:   zap.NewNop(),
		metrics:  noopMetricsRecorder{},
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		retry:    DefaultRetryPolicy,
		timeout:  DefaultOperationTimeout,
		newOpID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a process-local store.
func NewInMemoryService(registry *Registry, opts ...Option) *Service {
	if registry == nil {
		registry = MustDefaultRegistry()
	}
	store := memory.NewStore(NewDefaultRulesEngine(registry))
	return NewService(store, registry, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Registry returns the collection registry.
func (s *Service) Registry() *Registry { return s.registry }

// RenumberReport describes a committed delete or compaction.
type RenumberReport struct {
	Collection string
	// Deleted is nil for a plain Renumber.
	Deleted *domain.Entity
	Moves   []Move
	// ArchiveKey and ArchiveErr describe the best-effort archive write that
	// follows a committed delete.
	ArchiveKey string
	ArchiveErr error
}

// Create inserts payloads under freshly allocated identifiers. All
// identifiers of a batch come from one allocator call. An empty provenance
// defaults to manual for one payload and bulk for several.
func (s *Service) Create(ctx context.Context, collection string, payloads []domain.Payload, provenance domain.Provenance) ([]domain.Entity, error) {
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: no payloads", domain.ErrInvalidInput)
	}
	if provenance == "" {
		provenance = domain.ProvenanceManual
		if len(payloads) > 1 {
			provenance = domain.ProvenanceBulk
		}
	}
	if provenance == domain.ProvenanceRegenerated || !provenance.Valid() {
		return nil, fmt.Errorf("%w: provenance %q cannot be used for creation", domain.ErrInvalidInput, provenance)
	}

	var created []domain.Entity
	err = s.run(ctx, "create", spec, func(ctx context.Context, log *zap.Logger) error {
		err := s.transact(ctx, "create", spec, func(tx domain.Transaction) error {
			created = make([]domain.Entity, 0, len(payloads))
			ids, err := spec.Allocator().Reserve(tx, len(payloads))
			if err != nil {
				return err
			}
			for i, id := range ids {
				e, err := tx.InsertWithID(id, payloads[i], provenance)
				if err != nil {
					return err
				}
				created = append(created, e)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range created {
			log.Info("entity created", zap.String("sequence_id", e.SequenceID), zap.String("provenance", string(e.Provenance)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteAndRenumber removes id and, for contiguous collections, relabels the
// remaining entities onto 1..N in creation order. Both happen in one
// transaction: on any failure the collection is left exactly as it was.
func (s *Service) DeleteAndRenumber(ctx context.Context, collection, id string) (RenumberReport, error) {
	const op = "delete_and_renumber"
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return RenumberReport{}, err
	}
	var report RenumberReport
	err = s.run(ctx, op, spec, func(ctx context.Context, log *zap.Logger) error {
		report = RenumberReport{Collection: spec.Name}
		err := s.transact(ctx, op, spec, func(tx domain.Transaction) error {
			target, err := tx.FindByID(id)
			if err != nil {
				return err
			}
			if err := tx.DeleteByID(id); err != nil {
				return &domain.TransactionError{Op: op, Collection: spec.Name, Step: "delete", Err: err}
			}
			report.Deleted = &target
			if !spec.Contiguous() {
				return nil
			}
			moves, err := compact(tx, spec)
			if err != nil {
				return &domain.TransactionError{Op: op, Collection: spec.Name, Step: "renumber", Err: err}
			}
			report.Moves = moves
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("entity deleted", zap.String("sequence_id", id), zap.Int("renumbered", len(report.Moves)))
		return nil
	})
	if err != nil {
		return RenumberReport{Collection: spec.Name}, err
	}
	s.metrics.Renumbered(ctx, spec.Name, len(report.Moves))
	report.ArchiveKey, report.ArchiveErr = s.archiveDeleted(ctx, spec, *report.Deleted)
	return report, nil
}

// Renumber compacts a collection onto 1..N in creation order without
// deleting anything. Running it on an already compact collection performs
// no identifier writes.
func (s *Service) Renumber(ctx context.Context, collection string) (RenumberReport, error) {
	const op = "renumber"
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return RenumberReport{}, err
	}
	var report RenumberReport
	err = s.run(ctx, op, spec, func(ctx context.Context, log *zap.Logger) error {
		report = RenumberReport{Collection: spec.Name}
		err := s.transact(ctx, op, spec, func(tx domain.Transaction) error {
			moves, err := compact(tx, spec)
			if err != nil {
				return &domain.TransactionError{Op: op, Collection: spec.Name, Step: "renumber", Err: err}
			}
			report.Moves = moves
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("collection renumbered", zap.Int("renumbered", len(report.Moves)))
		return nil
	})
	if err != nil {
		return RenumberReport{Collection: spec.Name}, err
	}
	s.metrics.Renumbered(ctx, spec.Name, len(report.Moves))
	return report, nil
}

// Regenerate clones the payload of id into a new entity appended at the end
// of the collection with provenance regenerated. The original is untouched.
func (s *Service) Regenerate(ctx context.Context, collection, id string) (domain.Entity, error) {
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return domain.Entity{}, err
	}
	var clone domain.Entity
	err = s.run(ctx, "regenerate", spec, func(ctx context.Context, log *zap.Logger) error {
		err := s.transact(ctx, "regenerate", spec, func(tx domain.Transaction) error {
			original, err := tx.FindByID(id)
			if err != nil {
				return err
			}
			newID, err := sequence.Next(spec.Allocator(), tx)
			if err != nil {
				return err
			}
			clone, err = tx.InsertWithID(newID, original.Payload, domain.ProvenanceRegenerated)
			return err
		})
		if err != nil {
			return err
		}
		log.Info("entity regenerated", zap.String("sequence_id", id), zap.String("clone_id", clone.SequenceID))
		return nil
	})
	if err != nil {
		return domain.Entity{}, err
	}
	return clone, nil
}

// Get returns one entity.
func (s *Service) Get(ctx context.Context, collection, id string) (domain.Entity, error) {
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return domain.Entity{}, err
	}
	var out domain.Entity
	err = s.run(ctx, "get", spec, func(ctx context.Context, _ *zap.Logger) error {
		return s.store.View(ctx, spec.Name, func(v domain.TransactionView) error {
			var err error
			out, err = v.FindByID(id)
			return err
		})
	})
	return out, err
}

// List returns every entity of a collection in creation order.
func (s *Service) List(ctx context.Context, collection string) ([]domain.Entity, error) {
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}
	var out []domain.Entity
	err = s.run(ctx, "list", spec, func(ctx context.Context, _ *zap.Logger) error {
		return s.store.View(ctx, spec.Name, func(v domain.TransactionView) error {
			out = v.FindAllOrderedByCreation()
			return nil
		})
	})
	return out, err
}

// Verify evaluates the collection rules against committed state.
func (s *Service) Verify(ctx context.Context, collection string) (domain.Result, error) {
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return domain.Result{}, err
	}
	var res domain.Result
	err = s.run(ctx, "verify", spec, func(ctx context.Context, log *zap.Logger) error {
		res = domain.Result{}
		err := s.store.View(ctx, spec.Name, func(v domain.TransactionView) error {
			for _, rule := range DefaultRules(s.registry) {
				r, err := rule.Evaluate(ctx, v, nil)
				if err != nil {
					return fmt.Errorf("rule %s: %w", rule.Name(), err)
				}
				res.Merge(r)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(res.Violations) > 0 {
			log.Warn("collection failed verification", zap.Int("violations", len(res.Violations)))
		}
		return nil
	})
	return res, err
}

// transact runs fn in one transaction on spec's collection. Failures raised
// outside fn (blocking rules, the durable write, cancellation) are reported
// as a TransactionError for the begin or commit step.
func (s *Service) transact(ctx context.Context, op string, spec CollectionSpec, fn func(domain.Transaction) error) error {
	var (
		called bool
		fnErr  error
	)
	_, err := s.store.RunInTransaction(ctx, spec.Name, func(tx domain.Transaction) error {
		called = true
		fnErr = fn(tx)
		return fnErr
	})
	if err == nil || fnErr != nil {
		return err
	}
	step := "commit"
	if !called {
		step = "begin"
	}
	return &domain.TransactionError{Op: op, Collection: spec.Name, Step: step, Err: err}
}

// run applies the operation timeout, conflict retries, logging and metrics.
func (s *Service) run(ctx context.Context, op string, spec CollectionSpec, fn func(context.Context, *zap.Logger) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	log := s.logger.With(zap.String("op", op), zap.String("collection", spec.Name), zap.String("op_id", s.newOpID()))
	start := s.clock.Now()
	err := retryConflicts(ctx, s.retry, func(attempt int, err error, retrying bool) {
		s.metrics.Conflict(ctx, spec.Name)
		if retrying {
			log.Warn("concurrency conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return
		}
		log.Warn("concurrency conflict, giving up", zap.Int("attempt", attempt), zap.Error(err))
	}, func(attempt int) error {
		return fn(ctx, log.With(zap.Int("attempt", attempt)))
	})
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		log.Debug("operation failed", zap.Error(err))
	}
	return err
}

func compact(tx domain.Transaction, spec CollectionSpec) ([]Move, error) {
	ordered := tx.FindAllOrderedByCreation()
	moves, err := planRenumber(spec.Format, ordered)
	if err != nil {
		return nil, err
	}
	if err := applyRenumber(tx, ordered, moves); err != nil {
		return nil, err
	}
	return moves, nil
}
