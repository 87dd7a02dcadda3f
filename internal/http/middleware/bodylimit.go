// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file caps request body sizes. Declared lengths over the limit are
// rejected up front; streamed bodies are wrapped in http.MaxBytesReader so the
// JSON binder fails once the limit is crossed (see IsBodyTooLarge).
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/teamhub/internal/apperr"
)

// BodyTooLarge is the error rendered for oversized bodies (413).
func BodyTooLarge(limit int64) *apperr.Error {
	return apperr.Validation("request body too large", map[string]any{
		apperr.MetaDetails: map[string]any{"limit": limit},
	}).WithStatus(http.StatusRequestEntityTooLarge)
}

// IsBodyTooLarge reports whether err came from a MaxBytesReader.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// BodyLimit returns a middleware enforcing limit bytes per request body.
// A limit <= 0 disables the check.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			AbortWithError(c, BodyTooLarge(limit))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
