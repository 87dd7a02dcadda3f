// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds request correlation and panic safety. RequestID gives
// every request an ID, echoed in X-Request-ID. Recovery turns panics into
// the internal error envelope. LoggerFrom hands handlers the request-scoped
// logger that RedactingLogger attaches.
package middleware

import (
	"errors"
	"runtime/debug"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/teamhub/internal/apperr"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	// UserIDKey is the Gin context key holding the authenticated user ID.
	UserIDKey = "userID"
	loggerKey = "logger"

	maxQueryLogLength  = 2048
	maxRequestIDLength = 128
)

// RequestID reuses a client-supplied X-Request-ID so that retries of one
// logical call share it in server logs. Missing or oversized IDs are
// replaced by a fresh UUIDv4.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the ID set by RequestID, falling back to the
// response header.
func RequestIDFrom(c *gin.Context) string {
	if s := c.GetString(requestIDKey); s != "" {
		return s
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// UserIDFrom returns the authenticated user ID, or "" for anonymous requests.
func UserIDFrom(c *gin.Context) string { return c.GetString(UserIDKey) }

// Recovery logs the panic with a stack trace and writes the internal error
// envelope. The panic value is kept out of the response. When the handler
// already started writing, the request is only aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", RequestIDFrom(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.Header(requestIDHeader, RequestIDFrom(c))
			AbortWithError(c, apperr.Internal("panic recovered", map[string]any{"panic": rec}))
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// statusEvent picks the level for an access line: error for 5xx, warn for
// 4xx and info otherwise.
func statusEvent(l *zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return l.Error()
	case status >= 400:
		return l.Warn()
	}
	return l.Info()
}

// lastErrorCode returns the code of the last taxonomy error recorded on c.
func lastErrorCode(c *gin.Context) string {
	ge := c.Errors.Last()
	if ge == nil {
		return ""
	}
	var ae *apperr.Error
	if errors.As(ge.Err, &ae) {
		return ae.Code()
	}
	return ""
}

// truncate cuts s to at most max bytes on a rune boundary and marks the
// cut. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
