package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration is labelled by route pattern, never by raw path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipgate_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipgate_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	HTTPResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipgate_http_response_size_bytes",
		Help:    "HTTP response sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 8),
	}, []string{"method", "route", "status"})

	HTTPRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_http_rate_limited_total",
		Help: "Total number of requests rejected by the API rate limiter, by route.",
	}, []string{"route"})

	// ProblemResponsesTotal counts problem+json responses by problem type.
	ProblemResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipgate_problem_responses_total",
		Help: "Total number of RFC 7807 error responses, by type.",
	}, []string{"type"})
)
