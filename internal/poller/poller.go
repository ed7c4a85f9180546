// Package poller triggers ingestion pipeline runs on a fixed interval.
package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/muziqua/internal/ingest"
	"github.com/justestif/muziqua/internal/metrics"
)

// Runner executes one ingestion pipeline run.
type Runner interface {
	Run(ctx context.Context) (*ingest.Result, error)
}

// Poller runs the pipeline once at startup and then on every interval tick
// until the context is cancelled. The pipeline's own throttle gate makes
// overlapping triggers from other sources harmless.
type Poller struct {
	runner   Runner
	interval time.Duration
	log      zerolog.Logger
}

// New creates a Poller. A non-positive interval disables it.
func New(runner Runner, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		runner:   runner,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}

	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

// runOnce executes a single run, recording metrics and logging the outcome.
func (p *Poller) runOnce(ctx context.Context) {
	start := time.Now()
	result, err := p.runner.Run(ctx)
	metrics.ObserveRun(result, err, time.Since(start))

	if err != nil {
		p.log.Error().Err(err).Msg("scheduled sync failed")
		return
	}
	if result.Throttled {
		p.log.Debug().Msg("scheduled sync throttled")
		return
	}
	p.log.Info().
		Int("synced", result.Synced).
		Int("deleted", result.Deleted).
		Int("backfilled", result.Backfilled).
		Int("total_fetched", result.TotalFetched).
		Msg("scheduled sync completed")
}
