package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, DefaultCollections(), cfg.Collections)
	assert.Equal(t, 10*time.Second, cfg.OperationTimeout())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "qbank.yaml", `
schema_version: v1.2.0
storage:
  driver: memory
retry:
  max_attempts: 3
  initial_backoff: 5ms
timeouts:
  operation: 2s
collections:
  - name: reading
    prefix: RC
    separator: "-"
    width: 4
    allocator: count
    overflow: expand
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.InitialBackoff())
	assert.Equal(t, 500*time.Millisecond, cfg.MaxBackoff())
	assert.Equal(t, 2*time.Second, cfg.OperationTimeout())
	require.Len(t, cfg.Collections, 1)
	assert.Equal(t, Collection{Name: "reading", Prefix: "RC", Separator: "-", Width: 4, Allocator: "count", Overflow: "expand"}, cfg.Collections[0])
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "qbank.toml", `
schema_version = "v1.0.0"

[storage]
driver = "postgres"
postgres_dsn = "postgres://db/qbank"

[blob]
driver = "fs"
fs_root = "/var/lib/qbank"

[[collections]]
name = "assessments"
prefix = "Exam"
allocator = "probe"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://db/qbank", cfg.Storage.PostgresDSN)
	assert.Equal(t, "/var/lib/qbank", cfg.Blob.FSRoot)
	require.Len(t, cfg.Collections, 1)
	assert.Equal(t, "probe", cfg.Collections[0].Allocator)
}

func TestLoadKeepsDefaultCollectionsWhenFileOmitsThem(t *testing.T) {
	path := writeFile(t, "qbank.yml", "schema_version: v1.0.0\nstorage:\n  driver: memory\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Collections, 3)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QBANK_STORAGE_DRIVER", "postgres")
	t.Setenv("QBANK_POSTGRES_DSN", "postgres://env/qbank")
	t.Setenv("QBANK_SQLITE_PATH", "/tmp/env.db")
	t.Setenv("QBANK_BLOB_DRIVER", "s3")
	t.Setenv("QBANK_BLOB_S3_BUCKET", "archive")
	t.Setenv("QBANK_BLOB_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("QBANK_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("QBANK_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://env/qbank", cfg.Storage.PostgresDSN)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, S3{Bucket: "archive", Endpoint: "http://minio:9000", PathStyle: true}, cfg.Blob.S3)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"missing schema":    func(c *Config) { c.SchemaVersion = "" },
		"bad schema":        func(c *Config) { c.SchemaVersion = "1.0" },
		"future major":      func(c *Config) { c.SchemaVersion = "v2.0.0" },
		"storage driver":    func(c *Config) { c.Storage.Driver = "mongo" },
		"blob driver":       func(c *Config) { c.Blob.Driver = "gcs" },
		"s3 without bucket": func(c *Config) { c.Blob.Driver = "s3" },
		"bad duration":      func(c *Config) { c.Timeouts.Operation = "soon" },
		"no collections":    func(c *Config) { c.Collections = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "qbank.json", `{}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported config format"))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeFile(t, "qbank.yaml", "storage: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}
