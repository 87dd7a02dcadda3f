// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. RequireAuth resolves the
// Authorization header through an Authenticator and stores the user ID under
// UserIDKey for handlers, the rate limiter, and idempotency scoping.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/teamhub/internal/apperr"
)

// Authenticator resolves an opaque bearer token to a user ID.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme match is case-insensitive.
func BearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// RequireAuth rejects requests without a valid session token with an
// authentication error envelope (401).
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			AbortWithError(c, apperr.Authentication("missing bearer token", nil))
			return
		}
		uid, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}
