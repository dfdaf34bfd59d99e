package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/progress"
)

// Close codes beyond the RFC set.
const closeJobNotFound = 4404

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is same-origin agnostic; auth is out of scope.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleJobSocket streams progress frames for one job until a terminal
// frame, then closes with 1000.
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before reading current state so no frame between the
	// snapshot and the subscription is lost.
	events, stop, err := s.bus.Subscribe(r.Context(), jobID)
	if err != nil {
		s.closeSocket(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}
	defer stop()

	job, err := s.jobs.Get(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		s.closeSocket(conn, closeJobNotFound, "job not found")
		return
	}
	if err != nil {
		s.closeSocket(conn, websocket.CloseInternalServerErr, "job lookup failed")
		return
	}

	if err := s.writeFrame(conn, initialFrame(job)); err != nil {
		return
	}
	if job.Status.Terminal() {
		_ = s.writeFrame(conn, finalFrame(job))
		s.closeSocket(conn, websocket.CloseNormalClosure, "done")
		return
	}

	// Reader goroutine surfaces client disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastSegment := job.CurrentSegment
	for {
		select {
		case <-clientGone:
			return
		case <-r.Context().Done():
			s.closeSocket(conn, websocket.CloseNormalClosure, "server shutting down")
			return
		case ev := <-events:
			// Duplicates are legal on the bus; enforce monotonic segments.
			if ev.Segment != nil {
				if *ev.Segment < lastSegment && !ev.Terminal() {
					continue
				}
				lastSegment = *ev.Segment
			}
			if err := s.writeFrame(conn, ev); err != nil {
				return
			}
			if ev.Terminal() {
				s.closeSocket(conn, websocket.CloseNormalClosure, "done")
				return
			}
		}
	}
}

// handleSocketHealth accepts, reports ok and closes.
func (s *Server) handleSocketHealth(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(map[string]string{"status": "ok"})
	s.closeSocket(conn, websocket.CloseNormalClosure, "ok")
}

func (s *Server) writeFrame(conn *websocket.Conn, ev progress.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func (s *Server) closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

func initialFrame(job *jobstore.Job) progress.Event {
	seg := job.CurrentSegment
	pct := job.ProgressPct
	return progress.Event{
		Type:          progress.TypeInitial,
		JobID:         job.JobID,
		Status:        string(job.Status),
		Segment:       &seg,
		SegmentName:   job.CurrentSegmentName,
		ProgressPct:   &pct,
		TotalSegments: jobstore.TotalSegments,
		Timestamp:     time.Now().UTC(),
	}
}

func finalFrame(job *jobstore.Job) progress.Event {
	seg := job.CurrentSegment
	pct := job.ProgressPct
	return progress.Event{
		Type:          progress.TypeFinal,
		JobID:         job.JobID,
		Status:        string(job.Status),
		Segment:       &seg,
		SegmentName:   job.CurrentSegmentName,
		ProgressPct:   &pct,
		TotalSegments: jobstore.TotalSegments,
		ErrorMessage:  job.ErrorMessage,
		Timestamp:     time.Now().UTC(),
	}
}
