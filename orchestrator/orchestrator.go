// Package orchestrator drives the 12-segment comparison chain for each job:
// queueing, worker scheduling, progress emission, retry, cancellation,
// timeouts and result assembly. It is the only component that mutates jobs.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/metrics"
	"github.com/c360studio/ucc/pipeline"
	"github.com/c360studio/ucc/progress"
	"github.com/c360studio/ucc/retry"
	"github.com/c360studio/ucc/segmentstore"
)

// Config tunes the worker pool and timeout/retry policy.
type Config struct {
	// Workers is the number of concurrent jobs.
	Workers int

	// QueueSize bounds the submission backlog.
	QueueSize int

	// MaxRetries caps segment reattempts for transient failures.
	MaxRetries int

	// SegmentSoftTimeout bounds a single segment.
	SegmentSoftTimeout time.Duration

	// JobHardTimeout bounds the whole job; exceeding it fails the job with
	// reason "timeout".
	JobHardTimeout time.Duration

	// Backoff paces retry reattempts.
	Backoff retry.Config

	// ReuseSegments lets a re-uploaded document skip recomputing its
	// per-document segments (content-addressed by doc hash).
	ReuseSegments bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Workers:            2,
		QueueSize:          256,
		MaxRetries:         3,
		SegmentSoftTimeout: 540 * time.Second,
		JobHardTimeout:     600 * time.Second,
		Backoff:            retry.DefaultConfig(),
		ReuseSegments:      true,
	}
}

// task carries a queued job and the document bytes the orchestrator owns for
// the job's lifetime.
type task struct {
	jobID string
	docA  clause.Document
	docB  clause.Document
	opts  clause.Options
}

// Orchestrator owns job execution.
type Orchestrator struct {
	cfg      Config
	stages   *pipeline.Stages
	jobs     jobstore.Store
	segments segmentstore.Store
	bus      progress.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	queue   chan *task
	cancels sync.Map // job id -> chan struct{}

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an Orchestrator.
func New(cfg Config, stages *pipeline.Stages, jobs jobstore.Store, segments segmentstore.Store, bus progress.Bus, opts ...Option) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	o := &Orchestrator{
		cfg:      cfg,
		stages:   stages,
		jobs:     jobs,
		segments: segments,
		bus:      bus,
		metrics:  metrics.NewNop(),
		logger:   slog.Default(),
		queue:    make(chan *task, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the worker pool. Workers drain the queue FIFO until the
// context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.group, runCtx = errgroup.WithContext(runCtx)
	for i := 0; i < o.cfg.Workers; i++ {
		worker := i
		o.group.Go(func() error {
			o.logger.Debug("worker started", "worker", worker)
			for {
				select {
				case <-runCtx.Done():
					return nil
				case t := <-o.queue:
					o.metrics.QueueDepth.Dec()
					o.execute(runCtx, t)
				}
			}
		})
	}
}

// Stop cancels the pool context, which in-flight segments also run under, and
// waits for every worker to return.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	if o.group != nil {
		_ = o.group.Wait()
	}
}

// Submit registers a new job and enqueues it. The returned job is QUEUED.
func (o *Orchestrator) Submit(ctx context.Context, docA, docB clause.Document, opts clause.Options) (*jobstore.Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	job := &jobstore.Job{
		JobID:     uuid.New().String(),
		DocIDA:    docA.DocID,
		DocIDB:    docB.DocID,
		FileNameA: docA.FileName,
		FileNameB: docB.FileName,
		Status:    jobstore.StatusPending,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	queued := jobstore.StatusQueued
	job, err := o.jobs.Update(ctx, job.JobID, jobstore.Update{Status: &queued})
	if err != nil {
		return nil, fmt.Errorf("queue job: %w", err)
	}

	o.cancels.Store(job.JobID, make(chan struct{}))

	select {
	case o.queue <- &task{jobID: job.JobID, docA: docA, docB: docB, opts: opts}:
		o.metrics.QueueDepth.Inc()
		o.metrics.JobsSubmittedTotal.Inc()
	default:
		failed := jobstore.StatusFailed
		msg := "queue full"
		_, _ = o.jobs.Update(ctx, job.JobID, jobstore.Update{Status: &failed, ErrorMessage: &msg})
		o.cancels.Delete(job.JobID)
		return nil, fmt.Errorf("submission queue is full")
	}
	return job, nil
}

// Cancel requests cooperative cancellation. The job stops at its next
// segment boundary; an in-flight segment finishes and its output is
// discarded.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, string) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return false, "job not found"
	}
	if job.Status.Terminal() {
		return false, fmt.Sprintf("job already %s", job.Status)
	}
	if flag, ok := o.cancels.Load(jobID); ok {
		ch := flag.(chan struct{})
		select {
		case <-ch:
			// Already requested.
		default:
			close(ch)
		}
		return true, "cancellation requested"
	}
	// Job exists but is owned by no live worker (e.g. submitted before a
	// restart). Mark it cancelled directly.
	cancelled := jobstore.StatusCancelled
	now := time.Now().UTC()
	if _, err := o.jobs.Update(ctx, jobID, jobstore.Update{Status: &cancelled, CompletedAt: &now}); err != nil {
		return false, err.Error()
	}
	return true, "cancellation requested"
}

// cancelRequested reports whether the job's cancel flag is set.
func (o *Orchestrator) cancelRequested(jobID string) bool {
	flag, ok := o.cancels.Load(jobID)
	if !ok {
		return false
	}
	select {
	case <-flag.(chan struct{}):
		return true
	default:
		return false
	}
}
