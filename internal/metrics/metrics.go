// Package metrics exposes Prometheus collectors for the analysis service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes for ObserveSubmission.
const (
	SubmissionAccepted = "accepted"
	SubmissionInvalid  = "invalid"
	SubmissionRejected = "rejected"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	submissionsTotal           *prometheus.CounterVec
	cancellationsTotal         prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		submissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcheck_submissions_total",
				Help: "Analysis submissions, labeled by admission outcome.",
			},
			[]string{"outcome"},
		)

		cancellationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linkcheck_cancellations_total",
				Help: "Analyses cancelled through the API.",
			},
		)
	})
}

// RegisterQueueDepth exposes the current queue length as a gauge. Registering
// twice is a no-op.
func RegisterQueueDepth(depth func() int) {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "linkcheck_queue_depth",
			Help: "Analyses waiting for a worker.",
		},
		func() float64 { return float64(depth()) },
	)
	// AlreadyRegisteredError keeps the first registration.
	_ = prometheus.Register(gauge)
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSubmission counts a POST /analyze outcome.
func ObserveSubmission(outcome string) {
	if submissionsTotal == nil {
		return
	}
	submissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCancellation counts a successful cancellation.
func ObserveCancellation() {
	if cancellationsTotal == nil {
		return
	}
	cancellationsTotal.Inc()
}
