// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics. Collections are stored as versioned JSONB rows so
// several service instances can share one database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"questionbank/internal/infra/persistence/memory"
	"questionbank/internal/infra/persistence/sqlstate"
	"questionbank/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/questionbank?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists collections to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db      *sql.DB
	journal *sqlstate.Journal
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to DefaultDSN)
// and ensures the collections table exists.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	journal := sqlstate.New(db, sqlstate.Postgres)
	if err := journal.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	opts = append(opts, memory.WithJournal(journal))
	return &Store{Store: memory.NewStore(engine, opts...), db: db, journal: journal}, nil
}

// Collections lists the collections that have been written at least once.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	return s.journal.Collections(ctx)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
