// Package metrics exposes Prometheus instrumentation for the
// materialization engine. All collectors are registered on the default
// registry and served by the API server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OccurrencesMaterialized counts occurrences created by any
	// materialization path (window advance, regeneration, get-or-create).
	OccurrencesMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_occurrences_materialized_total",
		Help: "Occurrences created by materialization.",
	})

	// InsertConflicts counts uniqueness-constraint conflicts recovered by
	// the materializer. A steadily nonzero rate just means concurrent
	// callers overlap; it is not an error signal.
	InsertConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_insert_conflicts_total",
		Help: "Duplicate-insert conflicts recovered during materialization.",
	})

	// SeriesFailures counts per-series failures isolated during batch
	// materialization (bad timezone, generator errors).
	SeriesFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_series_failures_total",
		Help: "Series skipped during a batch run due to an isolated failure.",
	})

	// OccurrencesPruned counts terminal occurrences removed by retention
	// pruning.
	OccurrencesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_occurrences_pruned_total",
		Help: "Terminal occurrences deleted past the retention threshold.",
	})

	// LifecycleTransitions counts status transitions by kind.
	LifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_lifecycle_transitions_total",
		Help: "Occurrence status transitions.",
	}, []string{"transition"})

	// ActiveSeries tracks how many series the window scheduler advanced on
	// its last tick.
	ActiveSeries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_active_series",
		Help: "Active series seen by the last scheduler tick.",
	})
)
