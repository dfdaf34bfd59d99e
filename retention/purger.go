// Package retention sweeps terminal jobs past their TTL, removing the job
// row and every segment artifact the job and its documents left behind.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/metrics"
	"github.com/c360studio/ucc/segmentstore"
)

// DefaultTTL is how long completed/failed/cancelled jobs are kept.
const DefaultTTL = 24 * time.Hour

// sweepSchedule runs the purger every ten minutes.
const sweepSchedule = "*/10 * * * *"

// Purger deletes expired jobs on a cron schedule.
type Purger struct {
	jobs     jobstore.Store
	segments segmentstore.Store
	ttl      time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cron     *cron.Cron
}

// New builds a Purger. A zero ttl uses the default retention window.
func New(jobs jobstore.Store, segments segmentstore.Store, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Purger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{
		jobs:     jobs,
		segments: segments,
		ttl:      ttl,
		metrics:  m,
		logger:   logger,
	}
}

// Start schedules the sweep. Stop must be called on shutdown.
func (p *Purger) Start() error {
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(sweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.Sweep(ctx, time.Now()); err != nil {
			p.logger.Error("retention sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for a running sweep.
func (p *Purger) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// Sweep purges every job whose terminal transition predates the TTL and
// returns how many were removed.
func (p *Purger) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := p.jobs.ListExpired(ctx, p.ttl, now)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, job := range expired {
		for _, owner := range []string{job.JobID, job.DocIDA, job.DocIDB} {
			if err := p.segments.DeleteOwner(ctx, owner); err != nil {
				p.logger.Warn("failed to delete segment artifacts",
					"job_id", job.JobID, "owner", owner, "error", err)
			}
		}
		if err := p.jobs.Delete(ctx, job.JobID); err != nil {
			p.logger.Warn("failed to delete job", "job_id", job.JobID, "error", err)
			continue
		}
		purged++
		p.metrics.JobsPurgedTotal.Inc()
	}
	if purged > 0 {
		p.logger.Info("retention sweep", "purged", purged, "ttl", p.ttl)
	}
	return purged, nil
}
