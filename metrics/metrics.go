// Package metrics provides Prometheus metrics for the prescriptions front end.
// It exports metrics for incoming HTTP requests and for calls made to the
// upstream prescriptions API:
//   - page_request_total: Counter with method, page, and status labels
//   - page_request_duration_seconds: Histogram with a page label
//   - http_request_in_flight: Gauge for concurrent requests
//   - upstream_request_total: Counter with resource, method, and status labels
//   - upstream_request_duration_seconds: Histogram with resource and method labels
//
// All metrics are registered with the Prometheus default registry
// during package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_request_total",
			Help: "Total HTTP requests per front end page",
		},
		[]string{"method", "page", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "page_request_duration_seconds",
			Help:    "Page latency, upstream API calls included",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"page"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	UpstreamRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_request_total",
			Help: "Total requests sent to the prescriptions API",
		},
		[]string{"resource", "method", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Prescriptions API latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"resource", "method"},
	)

	UpstreamUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upstream_up",
			Help: "1 when the last probe of the prescriptions API succeeded",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Browser sessions currently held in memory",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(UpstreamRequestTotals)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(UpstreamUp)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(RateLimiterBucketsTotal)
}
