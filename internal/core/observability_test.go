package core

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questionbank/internal/infra/persistence/memory"
	"questionbank/pkg/domain"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	svc := newTestService(t, WithMetricsRecorder(metrics))
	ctx := context.Background()

	seedCollection(t, svc, verbal, "a", "b", "c")
	_, err = svc.DeleteAndRenumber(ctx, verbal, "V-001")
	require.NoError(t, err)
	_, err = svc.DeleteAndRenumber(ctx, verbal, "V-404")
	require.Error(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.results.WithLabelValues("create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.results.WithLabelValues("delete_and_renumber", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.results.WithLabelValues("delete_and_renumber", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.renumbered.WithLabelValues(verbal)))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.durations))

	_, err = NewPrometheusMetricsRecorder(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestPrometheusCountsConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	registry := MustDefaultRegistry()
	store := newMemoryStore(registry, memory.WithJournal(&racingJournal{races: 2}))
	svc := NewService(store, registry, WithMetricsRecorder(metrics), WithRetryPolicy(RetryPolicy{MaxAttempts: 3}))

	_, err = svc.Create(context.Background(), verbal, []domain.Payload{stem(t, "a")}, "")
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.conflicts.WithLabelValues(verbal)))
}

func TestPrometheusCountsConflictThatExhaustsRetries(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	registry := MustDefaultRegistry()
	store := newMemoryStore(registry, memory.WithJournal(&racingJournal{races: 5}))
	svc := NewService(store, registry, WithMetricsRecorder(metrics), WithRetryPolicy(RetryPolicy{MaxAttempts: 2}))

	_, err = svc.Create(context.Background(), verbal, []domain.Payload{stem(t, "a")}, "")
	require.True(t, domain.IsConflict(err))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.conflicts.WithLabelValues(verbal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.results.WithLabelValues("create", "error")))
}
