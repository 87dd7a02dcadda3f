// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the failure side of the response envelope. Every error
// written by this service, from handlers and middleware alike, goes through
// AbortWithError so the body shape and the apperr.Public rendering rule are
// the same everywhere:
//
//	{ "success": false, "error": { "code": "...", "message": "..." }, "requestId": "..." }
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/teamhub/internal/apperr"
)

// ErrorEnvelope is the failure body. It is what the outbound client decodes.
type ErrorEnvelope struct {
	Success   bool               `json:"success" example:"false"`
	Error     apperr.PublicError `json:"error"`
	RequestID string             `json:"requestId,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// apiErrors counts rendered failures by taxonomy code.
var apiErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_api_errors_total",
		Help: "Error envelopes written, by error code.",
	},
	[]string{"code"},
)

// AbortWithError renders err as the failure envelope and aborts the chain.
//
// The status is the category's status unless the error carries an explicit
// transport status (rate limiting and oversized bodies use this). Errors that
// are not operational are logged in full with the request-scoped logger;
// clients only ever see the generic internal message for them.
func AbortWithError(c *gin.Context, err error) {
	e := apperr.From(err)
	if e == nil {
		e = apperr.Internal("error handler called without an error", nil)
	}

	status := e.HTTPStatus()
	if st, ok := e.TransportStatus(); ok && st >= 400 && st <= 599 {
		status = st
	}

	if !e.Operational() {
		LoggerFrom(c).WithLevel(e.LogLevel()).
			Int("status", status).
			Object("error", e).
			Msg("api error")
	}
	_ = c.Error(e)

	pub := apperr.Public(e)
	apiErrors.WithLabelValues(pub.Code).Inc()
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Success:   false,
		Error:     pub,
		RequestID: RequestIDFrom(c),
	})
}
