// Package metrics defines the Prometheus collectors of the middleware.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "erp_vision"

var (
	// Resolutions counts similarity resolution attempts by outcome.
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Similarity resolution attempts by outcome",
		},
		[]string{"outcome"},
	)

	// StageFailures counts fatal pipeline failures by stage.
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Fatal similarity pipeline failures by stage",
		},
		[]string{"stage"},
	)

	// StageDuration observes how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of similarity pipeline stages",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// ERPFetches counts backend calls by origin and outcome.
	ERPFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "erp_fetch_total",
			Help:      "ERP backend calls by origin and outcome",
		},
		[]string{"origin", "outcome"},
	)

	// CleanupErrors counts transient file cleanup failures.
	CleanupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_errors_total",
			Help:      "Transient file cleanup failures",
		},
	)

	// HTTPRequests counts served HTTP requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// HTTPRecorder records served requests into HTTPRequests and HTTPDuration.
type HTTPRecorder struct{}

func (HTTPRecorder) RecordRequest(method, path string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
