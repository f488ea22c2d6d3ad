// Package metrics holds the Prometheus instruments shared by the sync
// pipeline and the webhook listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Source API
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsync_source_requests_total",
			Help: "Analytics API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // ok, no_content, rate_limited, http_error, network_error, decode_error
	)

	PostsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsync_posts_normalized_total",
			Help: "Raw posts that passed validation",
		},
		[]string{"platform"},
	)

	PostsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsync_posts_dropped_total",
			Help: "Raw posts discarded during validation",
		},
		[]string{"platform", "reason"}, // missing_id, missing_timestamp
	)

	// Sink API
	SinkCreates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsync_sink_creates_total",
			Help: "Destination page creations by result",
		},
		[]string{"result"}, // created, duplicate, missing_id, conflict, failed, dry_run
	)

	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialsync_rate_limit_wait_seconds",
			Help:    "Time callers spent blocked on a rate limiter",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"limiter"},
	)

	// Orchestrator
	PlatformRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsync_platform_runs_total",
			Help: "Per-platform collection results",
		},
		[]string{"platform", "result"}, // ok, empty, error
	)

	// Webhook listener
	TriggerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsync_trigger_requests_total",
			Help: "Webhook trigger requests by HTTP status",
		},
		[]string{"status"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
