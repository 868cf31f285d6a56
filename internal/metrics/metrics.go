package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Report run metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auxreport_runs_total",
			Help: "Total number of report runs by outcome",
		},
		[]string{"status"}, // ok, error, canceled
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auxreport_run_duration_seconds",
			Help:    "Report run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
	)

	InterfacesPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auxreport_run_interfaces",
			Help:    "Interfaces aggregated per run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Upstream fetch metrics
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auxreport_fetch_duration_seconds",
			Help:    "Duration of one upstream measurement request",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auxreport_fetch_errors_total",
			Help: "Upstream fetch failures by kind",
		},
		[]string{"kind"}, // fetch, malformed
	)

	InterfaceGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auxreport_interface_gaps_total",
			Help: "Interfaces dropped from best-effort runs",
		},
	)

	// HTTP API metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auxreport_http_requests_total",
			Help: "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auxreport_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
