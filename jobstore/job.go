// Package jobstore persists comparison jobs: status, progress, timings and
// the final result pointer. The orchestrator is the only writer for a given
// job; everything else reads.
package jobstore

import (
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a comparison job.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusQueued    JobStatus = "QUEUED"
	StatusRunning   JobStatus = "RUNNING"
	StatusRetrying  JobStatus = "RETRYING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status is final. Terminal states are
// write-once.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition validates the job state machine.
func (s JobStatus) CanTransition(to JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return to == StatusQueued || to == StatusCancelled || to == StatusFailed
	case StatusQueued:
		return to == StatusRunning || to == StatusCancelled || to == StatusFailed
	case StatusRunning:
		return to == StatusRetrying || to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusRetrying:
		return to == StatusRunning || to == StatusFailed || to == StatusCancelled
	}
	return false
}

// TotalSegments is the highest segment id of the pipeline chain.
const TotalSegments = 11

// SegmentNames maps segment ids to their display names.
var SegmentNames = map[int]string{
	0:  "Queued",
	1:  "Document A: Layout Analysis",
	2:  "Document A: Definitions Extraction",
	3:  "Document A: Clause Classification",
	4:  "Document A: Clause DNA Extraction",
	5:  "Document B: Layout Analysis",
	6:  "Document B: Definitions Extraction",
	7:  "Document B: Clause Classification",
	8:  "Document B: Clause DNA Extraction",
	9:  "Semantic Alignment",
	10: "Delta Interpretation",
	11: "Narrative Summarisation",
}

// ProgressPct converts a segment id to the public progress percentage.
func ProgressPct(segment int) float64 {
	if segment < 0 {
		segment = 0
	}
	if segment > TotalSegments {
		segment = TotalSegments
	}
	return 100 * float64(segment) / float64(TotalSegments)
}

// Job is the mutable record tracking one comparison.
type Job struct {
	JobID              string     `json:"job_id"`
	DocIDA             string     `json:"doc_id_a"`
	DocIDB             string     `json:"doc_id_b"`
	FileNameA          string     `json:"file_name_a"`
	FileNameB          string     `json:"file_name_b"`
	Status             JobStatus  `json:"status"`
	CurrentSegment     int        `json:"current_segment"`
	CurrentSegmentName string     `json:"current_segment_name"`
	TotalSegments      int        `json:"total_segments"`
	ProgressPct        float64    `json:"progress_pct"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	Retries            int        `json:"retries"`
	HasResult          bool       `json:"has_result"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Update names the fields an orchestrator write may touch. Nil fields are
// left alone.
type Update struct {
	Status             *JobStatus
	CurrentSegment     *int
	CurrentSegmentName *string
	ProgressPct        *float64
	ErrorMessage       *string
	Retries            *int
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// Filter narrows List.
type Filter struct {
	Status JobStatus // empty = all
	Limit  int
	Offset int
}

// Store errors.
var (
	ErrNotFound  = errors.New("job not found")
	ErrExists    = errors.New("job already exists")
	ErrTerminal  = errors.New("job is in a terminal state")
	ErrNoResult  = errors.New("job has no result")
	ErrBadChange = errors.New("invalid status transition")
)
