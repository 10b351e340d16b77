package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"questionbank/internal/blob"
	"questionbank/internal/config"
	"questionbank/internal/core"
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(title string) (bool, error)
}

type huhConfirmer struct{}

func (huhConfirmer) Confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}

// app holds the state shared by every subcommand for one invocation.
type app struct {
	out     io.Writer
	confirm Confirmer

	configPath  string
	debug       bool
	metricsFile string

	cfg     *config.Config
	logger  *zap.Logger
	metrics *prometheus.Registry
	svc     *core.Service
	closers []io.Closer
}

func newApp(out io.Writer, confirm Confirmer) *app {
	return &app{out: out, confirm: confirm}
}

// open loads configuration and wires storage, archive, logging and metrics.
func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger, err = buildLogger(cfg.Logging, a.debug); err != nil {
		return err
	}
	registry, err := core.RegistryFromConfig(cfg)
	if err != nil {
		return err
	}
	store, closer, err := core.OpenPersistentStore(ctx, cfg.Storage, registry)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	a.closers = append(a.closers, closer)
	archive, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open %s archive: %w", cfg.Blob.Driver, err)
	}
	a.metrics = prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(a.metrics)
	if err != nil {
		return err
	}
	opts := append(core.OptionsFromConfig(cfg),
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(recorder),
	)
	if archive != nil {
		opts = append(opts, core.WithArchive(archive))
	}
	a.svc = core.NewService(store, registry, opts...)
	a.logger.Debug("qbank ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("archive", cfg.Blob.Driver),
		zap.Int("collections", len(registry.Specs())))
	return nil
}

// close flushes metrics and releases storage handles.
func (a *app) close() error {
	var firstErr error
	if a.metricsFile != "" && a.metrics != nil {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.metrics); err != nil {
			firstErr = fmt.Errorf("write metrics: %w", err)
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return firstErr
}

func buildLogger(cfg config.Logging, debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
	}
	if debug {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
