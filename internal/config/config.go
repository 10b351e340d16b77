// Package config loads questionbank settings from a YAML or TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the config schema written by this release. Files with
// the same major version are accepted.
const SchemaVersion = "v1.0.0"

// Config is the root configuration document.
type Config struct {
	SchemaVersion string       `yaml:"schema_version" toml:"schema_version"`
	Storage       Storage      `yaml:"storage" toml:"storage"`
	Blob          Blob         `yaml:"blob" toml:"blob"`
	Retry         Retry        `yaml:"retry" toml:"retry"`
	Timeouts      Timeouts     `yaml:"timeouts" toml:"timeouts"`
	Logging       Logging      `yaml:"logging" toml:"logging"`
	Collections   []Collection `yaml:"collections" toml:"collections"`
}

// Storage selects the persistence backend.
type Storage struct {
	Driver      string `yaml:"driver" toml:"driver"` // memory, sqlite, postgres
	SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" toml:"postgres_dsn"`
}

// Blob selects the archive store. An empty driver disables archiving.
type Blob struct {
	Driver string `yaml:"driver" toml:"driver"` // fs, s3, memory
	FSRoot string `yaml:"fs_root" toml:"fs_root"`
	S3     S3     `yaml:"s3" toml:"s3"`
}

// S3 configures an S3 or MinIO bucket.
type S3 struct {
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Region    string `yaml:"region" toml:"region"`
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	PathStyle bool   `yaml:"path_style" toml:"path_style"`
}

// Retry bounds conflict replays.
type Retry struct {
	MaxAttempts    int    `yaml:"max_attempts" toml:"max_attempts"`
	InitialBackoff string `yaml:"initial_backoff" toml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff" toml:"max_backoff"`
}

// Timeouts bounds service calls.
type Timeouts struct {
	Operation string `yaml:"operation" toml:"operation"`
}

// Logging configures the zap logger built by the CLI.
type Logging struct {
	Level    string `yaml:"level" toml:"level"`       // debug, info, warn, error
	Encoding string `yaml:"encoding" toml:"encoding"` // json, console
}

// Collection declares one sequence collection.
type Collection struct {
	Name      string `yaml:"name" toml:"name"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	Separator string `yaml:"separator" toml:"separator"`
	Width     int    `yaml:"width" toml:"width"`
	Allocator string `yaml:"allocator" toml:"allocator"` // count, probe
	Overflow  string `yaml:"overflow" toml:"overflow"`   // reject, expand
}

// DefaultCollections are the three resource types of a question bank.
func DefaultCollections() []Collection {
	return []Collection{
		{Name: "verbal", Prefix: "V", Separator: "-", Width: 3, Allocator: "count", Overflow: "reject"},
		{Name: "data_sufficiency", Prefix: "DS", Separator: "-", Width: 3, Allocator: "count", Overflow: "reject"},
		{Name: "assessments", Prefix: "Exam", Width: 0, Allocator: "probe", Overflow: "reject"},
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Storage: Storage{
			Driver:     "sqlite",
			SQLitePath: "questionbank.db",
		},
		Retry: Retry{
			MaxAttempts:    5,
			InitialBackoff: "10ms",
			MaxBackoff:     "500ms",
		},
		Timeouts: Timeouts{
			Operation: "10s",
		},
		Logging: Logging{
			Level:    "info",
			Encoding: "json",
		},
		Collections: DefaultCollections(),
	}
}

// Load reads path, applies environment overrides and validates the result.
// A missing file yields the defaults; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	// Collections in the file replace the defaults rather than merging.
	cfg.Collections = nil
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = DefaultCollections()
	}
	return nil
}

// applyEnvOverrides applies QBANK_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QBANK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("QBANK_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("QBANK_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("QBANK_BLOB_DRIVER"); v != "" {
		c.Blob.Driver = v
	}
	if v := os.Getenv("QBANK_BLOB_FS_ROOT"); v != "" {
		c.Blob.FSRoot = v
	}
	if v := os.Getenv("QBANK_BLOB_S3_BUCKET"); v != "" {
		c.Blob.S3.Bucket = v
	}
	if v := os.Getenv("QBANK_BLOB_S3_REGION"); v != "" {
		c.Blob.S3.Region = v
	}
	if v := os.Getenv("QBANK_BLOB_S3_ENDPOINT"); v != "" {
		c.Blob.S3.Endpoint = v
	}
	if v := os.Getenv("QBANK_BLOB_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Blob.S3.PathStyle = b
		}
	}
	if v := os.Getenv("QBANK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ValidStorageDrivers lists the supported persistence backends.
var ValidStorageDrivers = []string{"memory", "sqlite", "postgres"}

// ValidBlobDrivers lists the supported archive stores.
var ValidBlobDrivers = []string{"fs", "s3", "memory"}

// Validate checks the configuration for settings the service cannot run with.
func (c *Config) Validate() error {
	if c.SchemaVersion == "" {
		return fmt.Errorf("schema_version is required (current: %s)", SchemaVersion)
	}
	if !semver.IsValid(c.SchemaVersion) {
		return fmt.Errorf("schema_version %q is not a semantic version", c.SchemaVersion)
	}
	if semver.Major(c.SchemaVersion) != semver.Major(SchemaVersion) {
		return fmt.Errorf("schema_version %s is incompatible with %s", c.SchemaVersion, SchemaVersion)
	}
	if !contains(ValidStorageDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidStorageDrivers)
	}
	if c.Blob.Driver != "" && !contains(ValidBlobDrivers, c.Blob.Driver) {
		return fmt.Errorf("invalid blob driver: %s (valid: %v)", c.Blob.Driver, ValidBlobDrivers)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket is required for the s3 driver (or set QBANK_BLOB_S3_BUCKET)")
	}
	for _, d := range []struct{ name, value string }{
		{"retry.initial_backoff", c.Retry.InitialBackoff},
		{"retry.max_backoff", c.Retry.MaxBackoff},
		{"timeouts.operation", c.Timeouts.Operation},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	return nil
}

// InitialBackoff returns the first conflict backoff as a duration.
func (c *Config) InitialBackoff() time.Duration {
	return parseDuration(c.Retry.InitialBackoff, 10*time.Millisecond)
}

// MaxBackoff returns the backoff ceiling as a duration.
func (c *Config) MaxBackoff() time.Duration {
	return parseDuration(c.Retry.MaxBackoff, 500*time.Millisecond)
}

// OperationTimeout returns the per-call bound as a duration.
func (c *Config) OperationTimeout() time.Duration {
	return parseDuration(c.Timeouts.Operation, 10*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
