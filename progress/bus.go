// Package progress multiplexes per-job progress events from the worker that
// owns a job to any number of subscribers.
package progress

import (
	"context"
	"time"
)

// Event types.
const (
	TypeInitial  = "initial"
	TypeProgress = "progress"
	TypeFinal    = "final"
	TypeError    = "error"
)

// Event is one progress frame. Subscribers tolerate duplicates by checking
// (segment, status) monotonicity; the terminal frame is always last.
type Event struct {
	Type          string    `json:"type"`
	JobID         string    `json:"job_id"`
	Status        string    `json:"status"`
	Segment       *int      `json:"segment,omitempty"`
	SegmentName   string    `json:"segment_name,omitempty"`
	ProgressPct   *float64  `json:"progress_pct,omitempty"`
	TotalSegments int       `json:"total_segments,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeFinal || e.Type == TypeError
}

// Bus is the publish/subscribe contract. Only the worker owning a job
// publishes for that job id; delivery is at-least-once with per-job
// ordering.
type Bus interface {
	// Publish emits an event on the job's topic.
	Publish(ctx context.Context, ev Event) error

	// Subscribe returns a channel of live events for the job and a stop
	// function releasing the subscription. Events published before the
	// subscription are not replayed; late subscribers get their initial
	// frame from the job store.
	Subscribe(ctx context.Context, jobID string) (<-chan Event, func(), error)
}
