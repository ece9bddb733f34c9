package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks admin API request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "scim_sync_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"path", "method", "status"},
	)

	// ActiveRequests is the number of admin API requests in flight. Sweeps
	// run inside the request, so a stuck sweep shows up here.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scim_sync_active_requests",
			Help: "Number of HTTP requests being served",
		},
	)

	// JobsProcessed counts executed jobs by action and outcome
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scim_sync_jobs_total",
			Help: "Number of sync jobs executed",
		},
		[]string{"action", "outcome"},
	)

	// JobDuration tracks the time spent executing one job
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scim_sync_job_duration_seconds",
			Help:    "Duration of sync job execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// JobsEnqueued counts enqueue calls, split by whether dedup coalesced them
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scim_sync_enqueued_total",
			Help: "Number of sync jobs enqueued",
		},
		[]string{"action", "deduplicated"},
	)

	// Runs counts full sweeps and drains
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scim_sync_runs_total",
			Help: "Number of reconciliation runs",
		},
		[]string{"mode", "status"},
	)

	// RemoteRequests counts outbound SCIM calls
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scim_sync_remote_requests_total",
			Help: "Number of requests sent to the remote SCIM service",
		},
		[]string{"method", "resource", "status"},
	)

	// ClientBuilds counts remote client constructions
	ClientBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scim_sync_client_builds_total",
			Help: "Number of remote client constructions",
		},
		[]string{"result"},
	)
)
