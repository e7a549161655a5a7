package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchlist_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ReviewsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchlist_reviews_submitted_total",
			Help: "Total number of reviews accepted",
		},
	)

	ReviewsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_reviews_rejected_total",
			Help: "Total number of review submissions rejected by reason",
		},
		[]string{"reason"}, // "duplicate", "not_found", "invalid", "unauthorized"
	)

	ThrottledRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_throttled_requests_total",
			Help: "Total number of requests rejected by a throttle scope",
		},
		[]string{"scope"},
	)

	EmailVerifierState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchlist_email_verifier_breaker_state",
			Help: "Email verifier circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
