package core

import (
	"context"
	"fmt"
	"io"

	"questionbank/internal/config"
	"questionbank/internal/infra/persistence/memory"
	"questionbank/internal/infra/persistence/postgres"
	"questionbank/internal/infra/persistence/sqlite"
	"questionbank/internal/sequence"
	"questionbank/pkg/domain"
)

// StorageEngine identifies a persistence backend.
type StorageEngine string

const (
	// StorageMemory keeps collections in process memory only.
	StorageMemory StorageEngine = "memory"
	// StorageSQLite persists collections to an embedded SQLite file.
	StorageSQLite StorageEngine = "sqlite"
	// StoragePostgres persists collections to PostgreSQL.
	StoragePostgres StorageEngine = "postgres"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenPersistentStore opens the backend selected by cfg with the default rules
// for registry. The returned closer releases database handles.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, registry *Registry) (domain.PersistentStore, io.Closer, error) {
	engine := NewDefaultRulesEngine(registry)
	switch StorageEngine(cfg.Driver) {
	case StorageMemory:
		return memory.NewStore(engine), nopCloser{}, nil
	case StorageSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = sqlite.DefaultPath
		}
		store, err := sqlite.NewStore(path, engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StoragePostgres:
		dsn := cfg.PostgresDSN
		if dsn == "" {
			dsn = postgres.DefaultDSN
		}
		store, err := postgres.NewStore(ctx, dsn, engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// RegistryFromConfig builds a registry from the configured collections.
func RegistryFromConfig(cfg *config.Config) (*Registry, error) {
	specs := make([]CollectionSpec, 0, len(cfg.Collections))
	for _, c := range cfg.Collections {
		specs = append(specs, CollectionSpec{
			Name: c.Name,
			Format: sequence.Format{
				Prefix:    c.Prefix,
				Separator: c.Separator,
				Width:     c.Width,
				Overflow:  sequence.OverflowPolicy(c.Overflow),
			},
			Policy: sequence.Policy(c.Allocator),
		})
	}
	return NewRegistry(specs...)
}

// OptionsFromConfig maps retry and timeout settings onto service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithRetryPolicy(RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff(),
			MaxBackoff:     cfg.MaxBackoff(),
		}),
		WithOperationTimeout(cfg.OperationTimeout()),
	}
}
