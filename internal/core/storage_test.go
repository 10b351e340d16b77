package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionbank/internal/config"
	"questionbank/internal/infra/persistence/postgres"
	"questionbank/internal/infra/persistence/postgres/testutil"
	"questionbank/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	registry := MustDefaultRegistry()
	store, closer, err := OpenPersistentStore(context.Background(), config.Storage{Driver: "memory"}, registry)
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	svc := NewService(store, registry)
	seedCollection(t, svc, verbal, "a")
	assert.Equal(t, []string{"V-001"}, listIDs(t, svc, verbal))
}

func TestOpenPersistentStoreSQLiteSurvivesReopen(t *testing.T) {
	registry := MustDefaultRegistry()
	cfg := config.Storage{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "bank.db")}

	store, closer, err := OpenPersistentStore(context.Background(), cfg, registry)
	require.NoError(t, err)
	svc := NewService(store, registry)
	seedCollection(t, svc, verbal, "a", "b", "c")
	_, err = svc.DeleteAndRenumber(context.Background(), verbal, "V-001")
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	reopened, closer, err := OpenPersistentStore(context.Background(), cfg, registry)
	require.NoError(t, err)
	defer closer.Close()
	svc = NewService(reopened, registry)
	assert.Equal(t, []string{"V-001", "V-002"}, listIDs(t, svc, verbal))
	created, err := svc.Create(context.Background(), verbal, []domain.Payload{stem(t, "d")}, "")
	require.NoError(t, err)
	assert.Equal(t, "V-003", created[0].SequenceID)
}

func TestOpenPersistentStorePostgres(t *testing.T) {
	db, conn := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	registry := MustDefaultRegistry()
	store, closer, err := OpenPersistentStore(context.Background(), config.Storage{Driver: "postgres"}, registry)
	require.NoError(t, err)
	defer closer.Close()
	svc := NewService(store, registry)
	seedCollection(t, svc, verbal, "a", "b")
	assert.EqualValues(t, 2, conn.Version(verbal))
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	_, _, err := OpenPersistentStore(context.Background(), config.Storage{Driver: "mongo"}, MustDefaultRegistry())
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retry.MaxAttempts = 7
	cfg.Timeouts.Operation = "3s"
	svc := NewService(newMemoryStore(MustDefaultRegistry()), nil, OptionsFromConfig(cfg)...)
	assert.Equal(t, 7, svc.retry.MaxAttempts)
	assert.Equal(t, cfg.OperationTimeout(), svc.timeout)
}
