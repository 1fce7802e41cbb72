// Package metrics instruments the web service handlers for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware registers one set of HTTP metrics per monitored handler.
type Middleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// New creates a Middleware registering in registry.
func New(registry prometheus.Registerer) *Middleware {
	return &Middleware{
		// Upstream fetches dominate the latency, up to the request timeout. Max of 20.48.
		buckets:  prometheus.ExponentialBuckets(0.01, 2, 12),
		registry: registry,
	}
}

// Monitor wraps handler, counting its requests, latencies and response sizes under the handler label.
// handlerName must be unique for a Middleware.
func (m *Middleware) Monitor(handlerName string, handler http.Handler) http.Handler {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code"}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Tracks the number of HTTP requests.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests.",
			Buckets: m.buckets,
		},
		labels,
	)
	responseSize := promauto.With(reg).NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "http_response_size_bytes",
			Help: "Tracks the size of HTTP responses.",
		},
		labels,
	)

	return promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(
			requestDuration,
			promhttp.InstrumentHandlerResponseSize(responseSize, handler),
		),
	)
}
