// Package metrics defines the prometheus collectors for the service.
//
// Collectors live on an injected Metrics value rather than in
// package-level state, so tests and multiple wirings can register
// against their own registries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ProgressUpdates    *prometheus.CounterVec
	RecomputeDuration  prometheus.Histogram
	BackfillInsertions prometheus.Counter
	HTTPDuration       *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProgressUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_updates_total",
				Help: "Total number of progress status updates",
			},
			[]string{"mode", "result"}, // mode: single, bulk, by_id; result: ok, rejected, failed
		),
		RecomputeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "streak_recompute_duration_seconds",
				Help:    "Duration of full streak recomputation per (user, habit) pair",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
		),
		BackfillInsertions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backfill_rows_inserted_total",
				Help: "Total number of default rows inserted by backfill",
			},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (m *Metrics) ObserveUpdate(mode, result string) {
	m.ProgressUpdates.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) AddBackfillInsertions(n int) {
	m.BackfillInsertions.Add(float64(n))
}

func (m *Metrics) ObserveRecompute(d time.Duration) {
	m.RecomputeDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	m.HTTPDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
