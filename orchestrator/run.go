package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/ucc/align"
	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/layout"
	"github.com/c360studio/ucc/pipeline"
	"github.com/c360studio/ucc/progress"
	"github.com/c360studio/ucc/retry"
	"github.com/c360studio/ucc/segmentstore"
	"github.com/c360studio/ucc/summary"
)

// Failure reasons surfaced in job error messages.
const (
	reasonTimeout  = "timeout"
	reasonStorage  = "storage"
	reasonInternal = "internal_error"
)

// Per-document artifact stage ids under a doc-keyed segment entry.
const (
	stageLayout = 1
	stageDefs   = 2
	stageTypes  = 3
	stageDNA    = 4
)

// run is the in-memory state of one job execution. The orchestrator owns the
// document bytes until the job reaches a terminal state.
type run struct {
	task     *task
	warnings []string
	timings  clause.Timings
	started  time.Time

	blocksA, blocksB     []clause.Block
	defsA, defsB         []clause.Definition
	clausesA, clausesB   []clause.Clause
	parseErrA, parseErrB error

	aligned *align.Result
	matches []clause.Match
}

// segment is one step of the chain. fn computes; the returned persist
// closure writes the segment artifact, and is skipped when a cancel was
// observed while the segment was in flight.
type segment struct {
	id int
	fn func(ctx context.Context) (persist func(context.Context) error, err error)
}

// execute runs the whole chain for one task.
func (o *Orchestrator) execute(ctx context.Context, t *task) {
	running := jobstore.StatusRunning
	now := time.Now().UTC()
	job, err := o.jobs.Update(ctx, t.jobID, jobstore.Update{Status: &running, StartedAt: &now})
	if err != nil {
		// Not QUEUED anymore: picked up twice, cancelled, or failed at
		// submission. Running it again is a no-op.
		o.logger.Debug("skipping job pickup", "job_id", t.jobID, "error", err)
		o.cancels.Delete(t.jobID)
		return
	}
	o.metrics.JobsInFlight.Inc()
	defer o.metrics.JobsInFlight.Dec()
	o.logger.Info("job started", "job_id", job.JobID,
		"doc_a", job.DocIDA[:12], "doc_b", job.DocIDB[:12])

	hardCtx, cancelHard := context.WithTimeout(ctx, o.cfg.JobHardTimeout)
	defer cancelHard()

	r := &run{task: t, started: time.Now()}
	for _, seg := range o.chain(r) {
		if o.cancelRequested(t.jobID) {
			o.finishCancelled(t.jobID)
			return
		}
		if err := o.startSegment(hardCtx, t.jobID, seg.id); err != nil {
			o.finishFailed(t.jobID, err)
			return
		}
		if err := o.runSegment(hardCtx, t.jobID, seg); err != nil {
			if o.cancelRequested(t.jobID) {
				o.finishCancelled(t.jobID)
				return
			}
			o.finishFailed(t.jobID, err)
			return
		}
	}
	if o.cancelRequested(t.jobID) {
		o.finishCancelled(t.jobID)
		return
	}
	o.finishCompleted(t.jobID)
}

// startSegment writes the segment id/name/progress and publishes the
// progress frame. Subscribers therefore always see a monotonically
// non-decreasing segment id.
func (o *Orchestrator) startSegment(ctx context.Context, jobID string, segID int) error {
	job, err := o.jobs.Update(ctx, jobID, jobstore.Update{CurrentSegment: &segID})
	if err != nil {
		return err
	}
	o.publish(progress.Event{
		Type:          progress.TypeProgress,
		JobID:         jobID,
		Status:        string(job.Status),
		Segment:       &job.CurrentSegment,
		SegmentName:   job.CurrentSegmentName,
		ProgressPct:   &job.ProgressPct,
		TotalSegments: jobstore.TotalSegments,
	})
	return nil
}

// runSegment executes one segment under the soft timeout, retrying
// transient failures up to the configured budget.
func (o *Orchestrator) runSegment(ctx context.Context, jobID string, seg segment) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		segStart := time.Now()
		segCtx, cancel := context.WithTimeout(ctx, o.cfg.SegmentSoftTimeout)
		persist, err := seg.fn(segCtx)
		cancel()
		if err == nil {
			if o.cancelRequested(jobID) {
				// The in-flight segment finished; its output is discarded.
				return nil
			}
			if persist != nil {
				if perr := persist(ctx); perr != nil {
					err = perr
				}
			}
			if err == nil {
				o.metrics.SegmentDuration.WithLabelValues(jobstore.SegmentNames[seg.id]).
					Observe(time.Since(segStart).Seconds())
				return nil
			}
		}
		lastErr = err
		if !retry.IsTransient(err) || attempt >= o.cfg.MaxRetries {
			return lastErr
		}
		if err := o.markRetrying(ctx, jobID, seg.id, attempt+1, err); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.Backoff.Backoff(attempt + 1)):
		}
		if err := o.markRunning(ctx, jobID); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) markRetrying(ctx context.Context, jobID string, segID, attempt int, cause error) error {
	retrying := jobstore.StatusRetrying
	msg := cause.Error()
	job, err := o.jobs.Update(ctx, jobID, jobstore.Update{
		Status:       &retrying,
		ErrorMessage: &msg,
		Retries:      &attempt,
	})
	if err != nil {
		return err
	}
	o.metrics.JobRetriesTotal.Inc()
	o.logger.Warn("segment failed, retrying", "job_id", jobID,
		"segment", segID, "attempt", attempt, "error", cause)
	o.publish(progress.Event{
		Type:         progress.TypeError,
		JobID:        jobID,
		Status:       string(job.Status),
		Segment:      &job.CurrentSegment,
		SegmentName:  job.CurrentSegmentName,
		ErrorMessage: msg,
	})
	return nil
}

func (o *Orchestrator) markRunning(ctx context.Context, jobID string) error {
	running := jobstore.StatusRunning
	empty := ""
	_, err := o.jobs.Update(ctx, jobID, jobstore.Update{Status: &running, ErrorMessage: &empty})
	return err
}

// chain builds the 11 work segments (segment 0, Queued, is the submission
// state itself).
func (o *Orchestrator) chain(r *run) []segment {
	return []segment{
		{id: 1, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.parseDoc(ctx, r, sideA)
		}},
		{id: 2, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.resolveDefs(ctx, r, sideA)
		}},
		{id: 3, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.classifyDoc(ctx, r, sideA)
		}},
		{id: 4, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.extractDNA(ctx, r, sideA)
		}},
		{id: 5, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.parseDoc(ctx, r, sideB)
		}},
		{id: 6, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.resolveDefs(ctx, r, sideB)
		}},
		{id: 7, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.classifyDoc(ctx, r, sideB)
		}},
		{id: 8, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.extractDNA(ctx, r, sideB)
		}},
		{id: 9, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.alignPair(ctx, r)
		}},
		{id: 10, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.interpretDeltas(ctx, r)
		}},
		{id: 11, fn: func(ctx context.Context) (func(context.Context) error, error) {
			return o.summarise(ctx, r)
		}},
	}
}

type side int

const (
	sideA side = iota
	sideB
)

func (r *run) doc(s side) clause.Document {
	if s == sideA {
		return r.task.docA
	}
	return r.task.docB
}

func (o *Orchestrator) parseDoc(ctx context.Context, r *run, s side) (func(context.Context) error, error) {
	doc := r.doc(s)
	key := segmentstore.DocKey(doc.DocID, stageLayout)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start).Milliseconds()
		if s == sideA {
			r.timings.ParseA = elapsed
		} else {
			r.timings.ParseB = elapsed
		}
	}()

	var blocks []clause.Block
	if o.cfg.ReuseSegments {
		if ok, _ := o.segments.Has(ctx, key); ok {
			if err := o.segments.Get(ctx, key, &blocks); err == nil {
				r.setBlocks(s, blocks)
				return nil, nil
			}
		}
	}

	blocks, err := o.stages.ParseLayout(ctx, doc.DocID, doc.Bytes)
	if err != nil {
		if layout.IsParseError(err) {
			r.setParseErr(s, err)
			r.warnings = append(r.warnings, err.Error())
			if r.parseErrA != nil && r.parseErrB != nil {
				return nil, retry.Fatal(fmt.Errorf("both documents failed to parse: %w", err))
			}
			return nil, nil
		}
		return nil, err
	}
	r.setBlocks(s, blocks)
	o.metrics.ClausesParsedTotal.Add(float64(len(blocks)))
	return func(ctx context.Context) error {
		return o.segments.Put(ctx, key, blocks)
	}, nil
}

func (o *Orchestrator) resolveDefs(ctx context.Context, r *run, s side) (func(context.Context) error, error) {
	doc := r.doc(s)
	defs := o.stages.ResolveDefinitions(r.blocks(s))
	r.setDefs(s, defs)
	return func(ctx context.Context) error {
		return o.segments.Put(ctx, segmentstore.DocKey(doc.DocID, stageDefs), defs)
	}, nil
}

func (o *Orchestrator) classifyDoc(ctx context.Context, r *run, s side) (func(context.Context) error, error) {
	doc := r.doc(s)
	clauses := o.stages.ClassifyClauses(r.blocks(s))
	r.setClauses(s, clauses)
	return func(ctx context.Context) error {
		return o.segments.Put(ctx, segmentstore.DocKey(doc.DocID, stageTypes), clauses)
	}, nil
}

func (o *Orchestrator) extractDNA(ctx context.Context, r *run, s side) (func(context.Context) error, error) {
	doc := r.doc(s)
	clauses := o.stages.ExtractDNA(r.clauses(s))
	r.setClauses(s, clauses)
	return func(ctx context.Context) error {
		return o.segments.Put(ctx, segmentstore.DocKey(doc.DocID, stageDNA), clauses)
	}, nil
}

func (o *Orchestrator) alignPair(ctx context.Context, r *run) (func(context.Context) error, error) {
	if r.parseErrA == nil && pipeline.CountOperational(r.clausesA) == 0 {
		r.warnings = append(r.warnings, pipeline.EmptyDocumentWarning)
	}
	if r.parseErrB == nil && pipeline.CountOperational(r.clausesB) == 0 {
		r.warnings = append(r.warnings, pipeline.EmptyDocumentWarning)
	}

	start := time.Now()
	aligned, err := o.stages.AlignPair(ctx, r.clausesA, r.clausesB, r.defsA, r.defsB, r.task.opts)
	if err != nil {
		return nil, err
	}
	r.timings.Align = time.Since(start).Milliseconds()
	r.aligned = aligned
	for _, w := range aligned.Warnings {
		if w == align.FallbackWarning {
			o.metrics.EmbedFallbacksTotal.Inc()
		}
	}
	return func(ctx context.Context) error {
		return o.segments.Put(ctx, segmentstore.JobKey(r.task.jobID, 9), aligned)
	}, nil
}

func (o *Orchestrator) interpretDeltas(ctx context.Context, r *run) (func(context.Context) error, error) {
	start := time.Now()
	matches := o.stages.InterpretDeltas(r.aligned.Matches,
		pipeline.Lookup(r.clausesA), pipeline.Lookup(r.clausesB), r.task.opts)
	pipeline.SortMatches(matches)
	r.matches = matches
	r.timings.Diff = time.Since(start).Milliseconds()
	return func(ctx context.Context) error {
		return o.segments.Put(ctx, segmentstore.JobKey(r.task.jobID, 10), matches)
	}, nil
}

func (o *Orchestrator) summarise(ctx context.Context, r *run) (func(context.Context) error, error) {
	lookupA := pipeline.Lookup(r.clausesA)
	lookupB := pipeline.Lookup(r.clausesB)
	r.timings.Total = time.Since(r.started).Milliseconds()

	result := &clause.ComparisonResult{
		Summary:   summary.Summarize(r.matches, lookupA, lookupB),
		Matches:   r.matches,
		UnmappedA: append([]string{}, r.aligned.UnmappedA...),
		UnmappedB: append([]string{}, r.aligned.UnmappedB...),
		Warnings:  append([]string{}, append(r.warnings, r.aligned.Warnings...)...),
		TimingsMS: r.timings,
	}
	return func(ctx context.Context) error {
		if err := o.segments.Put(ctx, segmentstore.JobKey(r.task.jobID, 11), result); err != nil {
			return err
		}
		return o.jobs.SetResult(ctx, r.task.jobID, result)
	}, nil
}

// finish helpers run with their own context: the job's hard-timeout context
// may already be expired when they execute.

func (o *Orchestrator) finishCompleted(jobID string) {
	ctx, cancel := finalCtx()
	defer cancel()
	completed := jobstore.StatusCompleted
	now := time.Now().UTC()
	job, err := o.jobs.Update(ctx, jobID, jobstore.Update{Status: &completed, CompletedAt: &now})
	if err != nil {
		o.logger.Error("failed to mark job completed", "job_id", jobID, "error", err)
		return
	}
	o.afterTerminal(job)
	o.publish(progress.Event{
		Type:          progress.TypeFinal,
		JobID:         jobID,
		Status:        string(jobstore.StatusCompleted),
		Segment:       &job.CurrentSegment,
		SegmentName:   job.CurrentSegmentName,
		ProgressPct:   &job.ProgressPct,
		TotalSegments: jobstore.TotalSegments,
	})
	o.logger.Info("job completed", "job_id", jobID)
}

func (o *Orchestrator) finishCancelled(jobID string) {
	ctx, cancel := finalCtx()
	defer cancel()
	cancelled := jobstore.StatusCancelled
	now := time.Now().UTC()
	job, err := o.jobs.Update(ctx, jobID, jobstore.Update{Status: &cancelled, CompletedAt: &now})
	if err != nil {
		o.logger.Error("failed to mark job cancelled", "job_id", jobID, "error", err)
		return
	}
	o.afterTerminal(job)
	o.publish(progress.Event{
		Type:   progress.TypeFinal,
		JobID:  jobID,
		Status: string(jobstore.StatusCancelled),
	})
	o.logger.Info("job cancelled", "job_id", jobID)
}

func (o *Orchestrator) finishFailed(jobID string, cause error) {
	ctx, cancel := finalCtx()
	defer cancel()
	msg := classifyFailure(cause)
	failed := jobstore.StatusFailed
	now := time.Now().UTC()
	job, err := o.jobs.Update(ctx, jobID, jobstore.Update{
		Status:       &failed,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	})
	if err != nil {
		o.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
		return
	}
	o.afterTerminal(job)
	o.publish(progress.Event{
		Type:         progress.TypeFinal,
		JobID:        jobID,
		Status:       string(jobstore.StatusFailed),
		ErrorMessage: msg,
	})
	o.logger.Error("job failed", "job_id", jobID, "reason", msg, "error", cause)
}

func (o *Orchestrator) afterTerminal(job *jobstore.Job) {
	o.cancels.Delete(job.JobID)
	o.metrics.JobsByStatus.WithLabelValues(string(job.Status)).Inc()
}

// classifyFailure maps an error to the public failure reason.
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return reasonTimeout
	case layout.IsParseError(err):
		return err.Error()
	case retry.IsTransient(err):
		return reasonStorage
	case retry.IsFatal(err):
		return err.Error()
	default:
		return reasonInternal
	}
}

func finalCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (o *Orchestrator) publish(ev progress.Event) {
	ev.Timestamp = time.Now().UTC()
	ctx, cancel := finalCtx()
	defer cancel()
	if err := o.bus.Publish(ctx, ev); err != nil {
		o.logger.Warn("progress publish failed", "job_id", ev.JobID, "type", ev.Type, "error", err)
	}
}

// run state accessors.

func (r *run) blocks(s side) []clause.Block {
	if s == sideA {
		return r.blocksA
	}
	return r.blocksB
}

func (r *run) setBlocks(s side, blocks []clause.Block) {
	if s == sideA {
		r.blocksA = blocks
	} else {
		r.blocksB = blocks
	}
}

func (r *run) setDefs(s side, defs []clause.Definition) {
	if s == sideA {
		r.defsA = defs
	} else {
		r.defsB = defs
	}
}

func (r *run) clauses(s side) []clause.Clause {
	if s == sideA {
		return r.clausesA
	}
	return r.clausesB
}

func (r *run) setClauses(s side, clauses []clause.Clause) {
	if s == sideA {
		r.clausesA = clauses
	} else {
		r.clausesB = clauses
	}
}

func (r *run) setParseErr(s side, err error) {
	if s == sideA {
		r.parseErrA = err
	} else {
		r.parseErrB = err
	}
}
