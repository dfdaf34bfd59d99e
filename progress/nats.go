package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/ucc/retry"
)

// subjectPrefix scopes all progress traffic.
const subjectPrefix = "ucc.jobs"

// subscriberBuffer bounds how far a slow subscriber may lag before frames
// are dropped on its channel (duplicates and drops are allowed by the bus
// contract as long as the terminal frame arrives).
const subscriberBuffer = 64

// NATSBus publishes progress frames on per-job NATS subjects.
type NATSBus struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSBus wraps an established NATS connection.
func NewNATSBus(conn *nats.Conn, logger *slog.Logger) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBus{conn: conn, logger: logger}
}

func subject(jobID string) string {
	return fmt.Sprintf("%s.%s.progress", subjectPrefix, jobID)
}

// Publish implements Bus.
func (b *NATSBus) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := b.conn.Publish(subject(ev.JobID), data); err != nil {
		return retry.Transient(fmt.Errorf("publish progress: %w", err))
	}
	if ev.Terminal() {
		// Flush so the terminal frame is on the wire before the worker
		// releases the job.
		if err := b.conn.Flush(); err != nil {
			return retry.Transient(fmt.Errorf("flush progress: %w", err))
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(_ context.Context, jobID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	sub, err := b.conn.Subscribe(subject(jobID), func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn("dropping malformed progress frame", "job_id", jobID, "error", err)
			return
		}
		select {
		case ch <- ev:
		case <-done:
		default:
			if ev.Terminal() {
				// Evict the oldest buffered frame so the terminal frame
				// always lands.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
				return
			}
			b.logger.Warn("subscriber lagging, dropping progress frame",
				"job_id", jobID, "segment", ev.Segment)
		}
	})
	if err != nil {
		return nil, nil, retry.Transient(fmt.Errorf("subscribe progress: %w", err))
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(done)
		})
	}
	return ch, stop, nil
}
