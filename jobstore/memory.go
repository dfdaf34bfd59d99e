package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/c360studio/ucc/clause"
)

// MemoryStore is an in-process Store for dev mode and tests. It enforces the
// same transition rules as the SQLite store.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	results map[string]*clause.ComparisonResult
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*Job),
		results: make(map[string]*clause.ComparisonResult),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; ok {
		return ErrExists
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}
	job.TotalSegments = TotalSegments
	if job.CurrentSegmentName == "" {
		job.CurrentSegmentName = SegmentNames[job.CurrentSegment]
	}
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, jobID string, update Update) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Status != nil && *update.Status != job.Status {
		if job.Status.Terminal() {
			return nil, ErrTerminal
		}
		if !job.Status.CanTransition(*update.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrBadChange, job.Status, *update.Status)
		}
		job.Status = *update.Status
	}
	applyUpdate(job, update)
	job.UpdatedAt = time.Now().UTC()
	cp := *job
	return &cp, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID < jobs[j].JobID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// SetResult implements Store.
func (s *MemoryStore) SetResult(_ context.Context, jobID string, result *clause.ComparisonResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	s.results[jobID] = result
	job.HasResult = true
	return nil
}

// GetResult implements Store.
func (s *MemoryStore) GetResult(_ context.Context, jobID string) (*clause.ComparisonResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, ErrNotFound
	}
	result, ok := s.results[jobID]
	if !ok {
		return nil, ErrNoResult
	}
	return result, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, jobID)
	delete(s.results, jobID)
	return nil
}

// ListExpired implements Store.
func (s *MemoryStore) ListExpired(_ context.Context, ttl time.Duration, now time.Time) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := now.Add(-ttl)
	var jobs []*Job
	for _, job := range s.jobs {
		if !job.Status.Terminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			cp := *job
			jobs = append(jobs, &cp)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobID < jobs[j].JobID })
	return jobs, nil
}
