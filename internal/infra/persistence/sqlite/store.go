// Package sqlite provides a SQLite-backed persistent store. Every collection
// is kept as one versioned JSON row; transactions run against the in-memory
// working set and commit through a conditional write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"questionbank/internal/infra/persistence/memory"
	"questionbank/internal/infra/persistence/sqlstate"
	"questionbank/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "questionbank.db"

// Store persists collections to a single SQLite file.
type Store struct {
	*memory.Store
	db      *sql.DB
	journal *sqlstate.Journal
	path    string
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	journal := sqlstate.New(db, sqlstate.SQLite)
	if err := journal.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	opts = append(opts, memory.WithJournal(journal))
	return &Store{
		Store:   memory.NewStore(engine, opts...),
		db:      db,
		journal: journal,
		path:    path,
	}, nil
}

// applyPragmas configures WAL and a busy timeout so several processes can
// share one file.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Collections lists the collections that have been written at least once.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	return s.journal.Collections(ctx)
}

// DB exposes the underlying database for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
