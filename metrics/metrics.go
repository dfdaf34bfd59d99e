// Package metrics provides Prometheus metrics for the comparer service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Job lifecycle
	JobsSubmittedTotal prometheus.Counter
	JobsByStatus       *prometheus.CounterVec
	JobsInFlight       prometheus.Gauge
	QueueDepth         prometheus.Gauge
	SegmentDuration    *prometheus.HistogramVec
	JobRetriesTotal    prometheus.Counter

	// Pipeline internals
	EmbedFallbacksTotal prometheus.Counter
	ClausesParsedTotal  prometheus.Counter

	// Retention
	JobsPurgedTotal prometheus.Counter
}

// New creates and registers all metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a private registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucc_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ucc_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	m.JobsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ucc_jobs_submitted_total",
		Help: "Total number of comparison jobs submitted",
	})

	m.JobsByStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucc_jobs_terminal_total",
			Help: "Jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	m.JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ucc_jobs_in_flight",
		Help: "Jobs currently being processed by workers",
	})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ucc_queue_depth",
		Help: "Jobs waiting in the queue",
	})

	m.SegmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ucc_segment_duration_seconds",
			Help:    "Duration of pipeline segments in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"segment"},
	)

	m.JobRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ucc_job_retries_total",
		Help: "Segment retries after transient failures",
	})

	m.EmbedFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ucc_embed_fallbacks_total",
		Help: "Alignments that fell back to lexical similarity",
	})

	m.ClausesParsedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ucc_clauses_parsed_total",
		Help: "Clauses extracted from documents",
	})

	m.JobsPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ucc_jobs_purged_total",
		Help: "Jobs removed by the retention purger",
	})

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobsSubmittedTotal,
		m.JobsByStatus,
		m.JobsInFlight,
		m.QueueDepth,
		m.SegmentDuration,
		m.JobRetriesTotal,
		m.EmbedFallbacksTotal,
		m.ClausesParsedTotal,
		m.JobsPurgedTotal,
	)
	return m
}

// NewNop returns metrics registered on a throwaway registry, for tests and
// the CLI paths that don't serve /metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
