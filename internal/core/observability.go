package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives per-operation measurements.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	Renumbered(ctx context.Context, collection string, moved int)
	Conflict(ctx context.Context, collection string)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetricsRecorder) Renumbered(context.Context, string, int)              {}
func (noopMetricsRecorder) Conflict(context.Context, string)                     {}

// PrometheusMetricsRecorder exports service metrics through a Prometheus registerer.
type PrometheusMetricsRecorder struct {
	durations  *prometheus.HistogramVec
	results    *prometheus.CounterVec
	renumbered *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the questionbank collectors on reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "questionbank",
			Name:      "operation_duration_seconds",
			Help:      "Duration of sequence operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questionbank",
			Name:      "operations_total",
			Help:      "Sequence operations by outcome.",
		}, []string{"operation", "result"}),
		renumbered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questionbank",
			Name:      "renumbered_entities_total",
			Help:      "Entities whose sequence id was rewritten by a renumber pass.",
		}, []string{"collection"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "questionbank",
			Name:      "concurrency_conflicts_total",
			Help:      "Transactions replayed after a concurrent writer moved the collection.",
		}, []string{"collection"}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.results, r.renumbered, r.conflicts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "error"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, result).Inc()
}

// Renumbered implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Renumbered(_ context.Context, collection string, moved int) {
	r.renumbered.WithLabelValues(collection).Add(float64(moved))
}

// Conflict implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Conflict(_ context.Context, collection string) {
	r.conflicts.WithLabelValues(collection).Inc()
}
