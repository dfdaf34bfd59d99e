// Package server exposes the comparer over HTTP and WebSocket: synchronous
// comparison, async job submission, job queries, cancellation and progress
// streaming.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/metrics"
	"github.com/c360studio/ucc/orchestrator"
	"github.com/c360studio/ucc/pipeline"
	"github.com/c360studio/ucc/progress"
)

// maxUploadBytes bounds one multipart upload.
const maxUploadBytes = 64 << 20

// Server wires the HTTP surface to the orchestrator and pipeline.
type Server struct {
	orch     *orchestrator.Orchestrator
	stages   *pipeline.Stages
	jobs     jobstore.Store
	bus      progress.Bus
	defaults clause.Options
	hardTO   time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	pdfOnly  bool

	httpSrv *http.Server
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPDFOnly toggles strict PDF validation of uploads. On by default; the
// test harness disables it to drive the stack with plain-text fixtures.
func WithPDFOnly(v bool) Option {
	return func(s *Server) { s.pdfOnly = v }
}

// WithHardTimeout bounds the synchronous compare endpoint.
func WithHardTimeout(d time.Duration) Option {
	return func(s *Server) { s.hardTO = d }
}

// New builds a Server.
func New(orch *orchestrator.Orchestrator, stages *pipeline.Stages, jobs jobstore.Store, bus progress.Bus, defaults clause.Options, opts ...Option) *Server {
	s := &Server{
		orch:     orch,
		stages:   stages,
		jobs:     jobs,
		bus:      bus,
		defaults: defaults,
		hardTO:   600 * time.Second,
		metrics:  metrics.NewNop(),
		logger:   slog.Default(),
		pdfOnly:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ucc/preprocess", s.instrument("/ucc/preprocess", s.handlePreprocess))
	mux.HandleFunc("POST /ucc/compare", s.instrument("/ucc/compare", s.handleCompare))
	mux.HandleFunc("POST /jobs/compare", s.instrument("/jobs/compare", s.handleSubmitJob))
	mux.HandleFunc("GET /jobs/{job_id}", s.instrument("/jobs/{job_id}", s.handleGetJob))
	mux.HandleFunc("GET /jobs/{job_id}/result", s.instrument("/jobs/{job_id}/result", s.handleGetResult))
	mux.HandleFunc("POST /jobs/{job_id}/cancel", s.instrument("/jobs/{job_id}/cancel", s.handleCancelJob))
	mux.HandleFunc("GET /jobs", s.instrument("/jobs", s.handleListJobs))
	mux.HandleFunc("GET /ws/jobs/{job_id}", s.handleJobSocket)
	mux.HandleFunc("GET /ws/health", s.handleSocketHealth)
	mux.HandleFunc("GET /health", s.instrument("/health", s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// ListenAndServe blocks serving the API until the context ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.HTTPRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
