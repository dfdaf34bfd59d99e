package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/embed"
	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/layout"
	"github.com/c360studio/ucc/pipeline"
	"github.com/c360studio/ucc/progress"
	"github.com/c360studio/ucc/retry"
	"github.com/c360studio/ucc/segmentstore"
)

const docAText = `1. Coverage

We will pay for loss or damage to the buildings caused by fire.

We will pay for theft of contents from the premises.
`

const docBText = `1. Coverage

We will pay for loss or damage to the buildings caused by fire.

2. Exclusions

We will not pay for loss caused by flood.
`

// hookExtractor wraps the text extractor with failure injection, delays and
// call counting.
type hookExtractor struct {
	inner layout.Extractor

	mu       sync.Mutex
	failures int
	delay    time.Duration
	calls    int
}

func (h *hookExtractor) Extract(ctx context.Context, docID string, data []byte) ([]clause.Block, error) {
	h.mu.Lock()
	h.calls++
	shouldFail := h.failures > 0
	if shouldFail {
		h.failures--
	}
	delay := h.delay
	h.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if shouldFail {
		return nil, retry.Transient(assert.AnError)
	}
	return h.inner.Extract(ctx, docID, data)
}

func (h *hookExtractor) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type testRig struct {
	orch      *Orchestrator
	jobs      jobstore.Store
	segments  segmentstore.Store
	bus       *progress.MemoryBus
	extractor *hookExtractor
	cancel    context.CancelFunc
}

func newRig(t *testing.T, mutate func(*Config)) *testRig {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.Backoff = retry.Config{
		MaxAttempts:       4,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	extractor := &hookExtractor{inner: layout.NewTextExtractor()}
	stages := pipeline.NewStages(extractor, embed.NewLexicalEmbedder())
	stages.RetryCfg = cfg.Backoff

	jobs := jobstore.NewMemoryStore()
	segments := segmentstore.NewMemoryStore()
	bus := progress.NewMemoryBus()

	rig := &testRig{
		orch:      New(cfg, stages, jobs, segments, bus),
		jobs:      jobs,
		segments:  segments,
		bus:       bus,
		extractor: extractor,
	}
	t.Cleanup(func() {
		if rig.cancel != nil {
			rig.cancel()
		}
		rig.orch.Stop()
	})
	return rig
}

func (r *testRig) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.orch.Start(ctx)
}

func docs() (clause.Document, clause.Document) {
	return clause.NewDocument("a.txt", []byte(docAText)),
		clause.NewDocument("b.txt", []byte(docBText))
}

func waitForTerminal(t *testing.T, store jobstore.Store, jobID string, timeout time.Duration) *jobstore.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %s", jobID, timeout)
	return nil
}

func TestJobCompletes(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()

	docA, docB := docs()
	job, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusQueued, job.Status)

	events, stop, err := rig.bus.Subscribe(ctx, job.JobID)
	require.NoError(t, err)
	defer stop()

	rig.start()

	final := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	assert.Equal(t, jobstore.StatusCompleted, final.Status)
	assert.Equal(t, jobstore.TotalSegments, final.CurrentSegment)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)

	result, err := rig.jobs.GetResult(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, result.Summary.Counts.Total(), len(result.Matches))
	assert.Equal(t, 1, result.Summary.Counts.Added, "flood exclusion appears only in B")
	assert.Equal(t, 1, result.Summary.Counts.Removed, "theft clause appears only in A")

	// Progress stream: non-decreasing segments, then exactly one terminal
	// frame with COMPLETED.
	lastSeg := 0
	sawFinal := false
	timeout := time.After(2 * time.Second)
	for !sawFinal {
		select {
		case ev := <-events:
			if ev.Segment != nil {
				assert.GreaterOrEqual(t, *ev.Segment, lastSeg)
				lastSeg = *ev.Segment
			}
			if ev.Terminal() {
				assert.Equal(t, string(jobstore.StatusCompleted), ev.Status)
				sawFinal = true
			}
		case <-timeout:
			t.Fatal("no terminal frame observed")
		}
	}

	// Segment artifacts were persisted for both documents and the pair.
	for _, key := range []segmentstore.Key{
		segmentstore.DocKey(docA.DocID, 1),
		segmentstore.DocKey(docB.DocID, 4),
		segmentstore.JobKey(job.JobID, 9),
		segmentstore.JobKey(job.JobID, 11),
	} {
		ok, err := rig.segments.Has(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "missing artifact %s", key)
	}
}

func TestJobCancellation(t *testing.T) {
	rig := newRig(t, nil)
	rig.extractor.delay = 80 * time.Millisecond
	ctx := context.Background()

	docA, docB := docs()
	job, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)

	events, stop, err := rig.bus.Subscribe(ctx, job.JobID)
	require.NoError(t, err)
	defer stop()

	rig.start()

	// Observe at least two progress frames with increasing segment before
	// cancelling.
	frames := 0
	timeout := time.After(3 * time.Second)
	for frames < 2 {
		select {
		case ev := <-events:
			if ev.Type == progress.TypeProgress {
				frames++
			}
		case <-timeout:
			t.Fatal("did not observe two progress frames")
		}
	}

	cancelled, msg := rig.orch.Cancel(ctx, job.JobID)
	assert.True(t, cancelled, msg)

	final := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	assert.Equal(t, jobstore.StatusCancelled, final.Status)

	// Terminal frame carries CANCELLED.
	timeout = time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Terminal() {
				assert.Equal(t, string(jobstore.StatusCancelled), ev.Status)
				return
			}
		case <-timeout:
			t.Fatal("no terminal frame observed after cancel")
		}
	}
}

func TestCancelUnknownJob(t *testing.T) {
	rig := newRig(t, nil)
	cancelled, msg := rig.orch.Cancel(context.Background(), "no-such-job")
	assert.False(t, cancelled)
	assert.Equal(t, "job not found", msg)
}

func TestCancelTerminalJobRefused(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()
	docA, docB := docs()
	job, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)
	rig.start()
	waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)

	cancelled, msg := rig.orch.Cancel(ctx, job.JobID)
	assert.False(t, cancelled)
	assert.Contains(t, msg, "already")
}

func TestTransientFailureRetries(t *testing.T) {
	rig := newRig(t, nil)
	rig.extractor.failures = 1
	ctx := context.Background()

	docA, docB := docs()
	job, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)
	rig.start()

	final := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	assert.Equal(t, jobstore.StatusCompleted, final.Status)
	assert.GreaterOrEqual(t, final.Retries, 1)
}

func TestTransientFailureExhaustsBudget(t *testing.T) {
	rig := newRig(t, func(cfg *Config) {
		cfg.MaxRetries = 1
	})
	rig.extractor.failures = 10
	ctx := context.Background()

	docA, docB := docs()
	job, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)
	rig.start()

	final := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	assert.Equal(t, jobstore.StatusFailed, final.Status)
	assert.Equal(t, reasonStorage, final.ErrorMessage)
}

func TestBothDocumentsUnparseable(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()

	bad := clause.NewDocument("bad.bin", []byte{0xff, 0xfe, 0x01})
	worse := clause.NewDocument("worse.bin", []byte{0xff, 0xfd, 0x02})
	job, err := rig.orch.Submit(ctx, bad, worse, clause.DefaultOptions())
	require.NoError(t, err)
	rig.start()

	final := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	assert.Equal(t, jobstore.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "both documents failed to parse")
}

func TestOneDocumentUnparseableCompletes(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()

	bad := clause.NewDocument("bad.bin", []byte{0xff, 0xfe, 0x01})
	_, docB := docs()
	job, err := rig.orch.Submit(ctx, bad, docB, clause.DefaultOptions())
	require.NoError(t, err)
	rig.start()

	final := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	assert.Equal(t, jobstore.StatusCompleted, final.Status)

	result, err := rig.jobs.GetResult(ctx, job.JobID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
	assert.Zero(t, result.Summary.Counts.Removed)
}

func TestHardTimeout(t *testing.T) {
	rig := newRig(t, func(cfg *Config) {
		cfg.JobHardTimeout = 60 * time.Millisecond
		cfg.SegmentSoftTimeout = 60 * time.Millisecond
	})
	rig.extractor.delay = 300 * time.Millisecond
	ctx := context.Background()

	docA, docB := docs()
	job, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)
	rig.start()

	final := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	assert.Equal(t, jobstore.StatusFailed, final.Status)
	assert.Equal(t, reasonTimeout, final.ErrorMessage)
}

func TestExecuteIsIdempotent(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()

	docA, docB := docs()
	job, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)

	tk := &task{jobID: job.JobID, docA: docA, docB: docB, opts: clause.DefaultOptions()}
	rig.orch.execute(ctx, tk)

	first := waitForTerminal(t, rig.jobs, job.JobID, 5*time.Second)
	require.Equal(t, jobstore.StatusCompleted, first.Status)
	completedAt := first.CompletedAt

	// A duplicate pickup must be a no-op.
	rig.orch.execute(ctx, tk)
	again, err := rig.jobs.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, again.Status)
	assert.Equal(t, completedAt, again.CompletedAt)
}

func TestSegmentReuseForSameDocument(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()
	rig.start()

	docA, docB := docs()
	job1, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)
	waitForTerminal(t, rig.jobs, job1.JobID, 5*time.Second)
	firstCalls := rig.extractor.callCount()
	assert.Equal(t, 2, firstCalls)

	job2, err := rig.orch.Submit(ctx, docA, docB, clause.DefaultOptions())
	require.NoError(t, err)
	waitForTerminal(t, rig.jobs, job2.JobID, 5*time.Second)
	assert.Equal(t, firstCalls, rig.extractor.callCount(),
		"layout artifacts are content-addressed and reused")
}

func TestSubmitValidatesOptions(t *testing.T) {
	rig := newRig(t, nil)
	opts := clause.DefaultOptions()
	opts.SimilarityThreshold = 3
	docA, docB := docs()
	_, err := rig.orch.Submit(context.Background(), docA, docB, opts)
	assert.Error(t, err)
}
