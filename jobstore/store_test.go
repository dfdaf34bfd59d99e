package jobstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/ucc/clause"
)

// storeUnderTest runs the shared suite over both implementations.
func storeUnderTest(t *testing.T, name string) Store {
	t.Helper()
	switch name {
	case "memory":
		return NewMemoryStore()
	case "sqlite":
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}
	t.Fatalf("unknown store %q", name)
	return nil
}

func newJob(id string) *Job {
	return &Job{
		JobID:     id,
		DocIDA:    "doc-a-hash",
		DocIDB:    "doc-b-hash",
		FileNameA: "a.pdf",
		FileNameB: "b.pdf",
	}
}

func statusPtr(s JobStatus) *JobStatus { return &s }

func TestStoreSuite(t *testing.T) {
	for _, impl := range []string{"memory", "sqlite"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()

			t.Run("create and get", func(t *testing.T) {
				s := storeUnderTest(t, impl)
				job := newJob("job-1")
				require.NoError(t, s.Create(ctx, job))

				got, err := s.Get(ctx, "job-1")
				require.NoError(t, err)
				assert.Equal(t, StatusPending, got.Status)
				assert.Equal(t, "Queued", got.CurrentSegmentName)
				assert.Equal(t, TotalSegments, got.TotalSegments)
				assert.False(t, got.CreatedAt.IsZero())

				assert.ErrorIs(t, s.Create(ctx, newJob("job-1")), ErrExists)

				_, err = s.Get(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("status transitions", func(t *testing.T) {
				s := storeUnderTest(t, impl)
				require.NoError(t, s.Create(ctx, newJob("job-2")))

				for _, status := range []JobStatus{StatusQueued, StatusRunning, StatusRetrying, StatusRunning, StatusCompleted} {
					_, err := s.Update(ctx, "job-2", Update{Status: statusPtr(status)})
					require.NoError(t, err, "transition to %s", status)
				}

				// Terminal states are write-once.
				_, err := s.Update(ctx, "job-2", Update{Status: statusPtr(StatusRunning)})
				assert.ErrorIs(t, err, ErrTerminal)
			})

			t.Run("invalid transition rejected", func(t *testing.T) {
				s := storeUnderTest(t, impl)
				require.NoError(t, s.Create(ctx, newJob("job-3")))

				_, err := s.Update(ctx, "job-3", Update{Status: statusPtr(StatusRunning)})
				assert.ErrorIs(t, err, ErrBadChange)
			})

			t.Run("segment update recomputes progress", func(t *testing.T) {
				s := storeUnderTest(t, impl)
				require.NoError(t, s.Create(ctx, newJob("job-4")))
				_, err := s.Update(ctx, "job-4", Update{Status: statusPtr(StatusQueued)})
				require.NoError(t, err)

				seg := 9
				job, err := s.Update(ctx, "job-4", Update{CurrentSegment: &seg})
				require.NoError(t, err)
				assert.Equal(t, "Semantic Alignment", job.CurrentSegmentName)
				assert.InDelta(t, 100*9.0/11.0, job.ProgressPct, 1e-9)
			})

			t.Run("result round trip", func(t *testing.T) {
				s := storeUnderTest(t, impl)
				require.NoError(t, s.Create(ctx, newJob("job-5")))

				_, err := s.GetResult(ctx, "job-5")
				assert.ErrorIs(t, err, ErrNoResult)

				result := &clause.ComparisonResult{
					Summary:  clause.Summary{Counts: clause.Counts{Modified: 2}, Bullets: []string{"Modified Coverage: wording changed"}},
					Matches:  []clause.Match{},
					Warnings: []string{},
				}
				require.NoError(t, s.SetResult(ctx, "job-5", result))

				got, err := s.GetResult(ctx, "job-5")
				require.NoError(t, err)
				assert.Equal(t, result.Summary, got.Summary)

				job, err := s.Get(ctx, "job-5")
				require.NoError(t, err)
				assert.True(t, job.HasResult)
			})

			t.Run("list newest first with filter", func(t *testing.T) {
				s := storeUnderTest(t, impl)
				for _, id := range []string{"list-1", "list-2", "list-3"} {
					job := newJob(id)
					require.NoError(t, s.Create(ctx, job))
					time.Sleep(2 * time.Millisecond)
				}
				_, err := s.Update(ctx, "list-2", Update{Status: statusPtr(StatusQueued)})
				require.NoError(t, err)

				all, err := s.List(ctx, Filter{})
				require.NoError(t, err)
				require.Len(t, all, 3)
				assert.Equal(t, "list-3", all[0].JobID)

				queued, err := s.List(ctx, Filter{Status: StatusQueued})
				require.NoError(t, err)
				require.Len(t, queued, 1)
				assert.Equal(t, "list-2", queued[0].JobID)

				paged, err := s.List(ctx, Filter{Limit: 1, Offset: 1})
				require.NoError(t, err)
				require.Len(t, paged, 1)
				assert.Equal(t, "list-2", paged[0].JobID)
			})

			t.Run("delete and expiry", func(t *testing.T) {
				s := storeUnderTest(t, impl)
				require.NoError(t, s.Create(ctx, newJob("exp-1")))
				require.NoError(t, s.Create(ctx, newJob("exp-2")))

				for _, id := range []string{"exp-1", "exp-2"} {
					_, err := s.Update(ctx, id, Update{Status: statusPtr(StatusQueued)})
					require.NoError(t, err)
					_, err = s.Update(ctx, id, Update{Status: statusPtr(StatusRunning)})
					require.NoError(t, err)
				}
				old := time.Now().UTC().Add(-48 * time.Hour)
				_, err := s.Update(ctx, "exp-1", Update{Status: statusPtr(StatusCompleted), CompletedAt: &old})
				require.NoError(t, err)
				recent := time.Now().UTC()
				_, err = s.Update(ctx, "exp-2", Update{Status: statusPtr(StatusFailed), CompletedAt: &recent})
				require.NoError(t, err)

				expired, err := s.ListExpired(ctx, 24*time.Hour, time.Now())
				require.NoError(t, err)
				require.Len(t, expired, 1)
				assert.Equal(t, "exp-1", expired[0].JobID)

				require.NoError(t, s.Delete(ctx, "exp-1"))
				_, err = s.Get(ctx, "exp-1")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, s.Delete(ctx, "exp-1"), ErrNotFound)
			})
		})
	}
}

func TestProgressPct(t *testing.T) {
	assert.Equal(t, 0.0, ProgressPct(0))
	assert.Equal(t, 100.0, ProgressPct(11))
	assert.Equal(t, 100.0, ProgressPct(15), "clamped")
	assert.InDelta(t, 45.45, ProgressPct(5), 0.01)
}

func TestStatusMachine(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusQueued))
	assert.True(t, StatusQueued.CanTransition(StatusRunning))
	assert.True(t, StatusRunning.CanTransition(StatusRetrying))
	assert.True(t, StatusRetrying.CanTransition(StatusRunning))
	assert.True(t, StatusRunning.CanTransition(StatusCancelled))
	assert.False(t, StatusPending.CanTransition(StatusRunning))
	assert.False(t, StatusCompleted.CanTransition(StatusRunning))
	assert.False(t, StatusFailed.CanTransition(StatusQueued))
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusRetrying.Terminal())
}
