// Package httpclient – transport instrumentation
//
// This file exposes Prometheus instrumentation for outbound attempts. The
// InstrumentedDoer wrapper sits between the client loop and the real
// transport, so every attempt (retries included) is counted:
//
//   - method: HTTP method verb (GET/POST/…)
//   - status: numeric status code as a string, or "error" when the transport
//     failed before a response arrived
//
// Paths are not a label: outbound URLs embed resource IDs.
package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// clientAttempts counts transport attempts by method and outcome.
	clientAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpclient_attempts_total",
			Help: "Total number of outbound HTTP attempts.",
		},
		[]string{"method", "status"},
	)

	// clientLat records attempt duration in seconds by method.
	clientLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpclient_attempt_duration_seconds",
			Help:    "Duration of outbound HTTP attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(clientAttempts, clientLat)
}

// InstrumentedDoer wraps d so each attempt is recorded in
// httpclient_attempts_total and httpclient_attempt_duration_seconds.
//
// Usage:
//
//	c := httpclient.New(base, httpclient.WithTransport(httpclient.InstrumentedDoer(http.DefaultClient)))
func InstrumentedDoer(d Doer) Doer {
	if d == nil {
		d = http.DefaultClient
	}
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := d.Do(req)
		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		clientAttempts.WithLabelValues(req.Method, status).Inc()
		clientLat.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		return resp, err
	})
}
