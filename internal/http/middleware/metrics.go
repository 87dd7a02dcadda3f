// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for inbound HTTP traffic.
// Labels are kept to a bounded set:
//
//   - method: HTTP verb
//   - path:   the registered Gin route (e.g. /api/teams/:id); requests that
//     matched no route share the "unmatched" label
//   - status: numeric status code as a string
//
// Failures rendered through AbortWithError are additionally counted by error
// code in http_api_errors_total (see errors.go).
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests that matched no route, so scanners probing
// random URLs cannot grow the label set.
const unmatchedRoute = "unmatched"

// sizeBuckets spans typical JSON payloads, 200B to 5MiB.
var sizeBuckets = []float64{
	200, 500, 1 << 10, 2 << 10, 5 << 10,
	10 << 10, 25 << 10, 50 << 10,
	100 << 10, 250 << 10, 500 << 10,
	1 << 20, 2 << 20, 5 << 20,
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight prometheus.Gauge
	reqSize  *prometheus.HistogramVec
	respSize *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		// status is left out to bound histogram series
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		}),
		reqSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "Declared size of HTTP request bodies in bytes.",
			Buckets: sizeBuckets,
		}, []string{"method", "path"}),
		respSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: sizeBuckets,
		}, []string{"method", "path"}),
	}
}

var serverMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)

func init() {
	prometheus.MustRegister(apiErrors)
}

// routeLabel returns the registered route or unmatchedRoute.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}

// Metrics instruments every request on the default registry. Mount
// promhttp.Handler() separately to expose it.
func Metrics() gin.HandlerFunc {
	return serverMetrics.handler()
}

func (m *httpMetrics) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.inflight.Inc()
		defer m.inflight.Dec()

		c.Next()

		method, path := c.Request.Method, routeLabel(c)
		m.requests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n > 0 {
			m.reqSize.WithLabelValues(method, path).Observe(float64(n))
		}
		// Size is -1 when nothing was written.
		if n := c.Writer.Size(); n >= 0 {
			m.respSize.WithLabelValues(method, path).Observe(float64(n))
		}
	}
}
