// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/justestif/muziqua/internal/ingest"
)

var (
	// SyncRuns counts pipeline runs by outcome: ok, throttled or error.
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muziqua_sync_runs_total",
			Help: "Total number of ingestion pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// SyncEvents counts store mutations by action: created, deleted, backfilled.
	SyncEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muziqua_sync_events_total",
			Help: "Total number of play events touched by the pipeline",
		},
		[]string{"action"},
	)

	// SyncDuration observes pipeline run latency.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "muziqua_sync_duration_seconds",
			Help:    "Duration of ingestion pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// ObserveRun records the outcome of one pipeline run.
func ObserveRun(result *ingest.Result, err error, elapsed time.Duration) {
	SyncDuration.Observe(elapsed.Seconds())

	switch {
	case err != nil:
		SyncRuns.WithLabelValues("error").Inc()
	case result.Throttled:
		SyncRuns.WithLabelValues("throttled").Inc()
	default:
		SyncRuns.WithLabelValues("ok").Inc()
		SyncEvents.WithLabelValues("created").Add(float64(result.Synced))
		SyncEvents.WithLabelValues("deleted").Add(float64(result.Deleted))
		SyncEvents.WithLabelValues("backfilled").Add(float64(result.Backfilled))
	}
}
