// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for resource-creating POSTs. It
// validates the Idempotency-Key request header, looks up a previously completed
// request for the same (user, scope, key), and annotates the request context so
// downstream handlers can:
//   - read the normalized key and scope (GetIdempotencyKey, IdempotencyScope)
//   - detect and serve replays (ReplayFrom)
//   - bypass rate limiting when a replay is served (via an internal flag)
//
// The outbound client sends one key per logical POST and reuses it on every
// retry, so a create that succeeded server side but whose response was lost
// is answered with the original resource instead of a conflict.
package middleware

import (
	"context"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/teamhub/internal/apperr"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay marks a response served from a stored result.
const HeaderIdempotentReplay = "Idempotent-Replayed"

// anonymousUser scopes keys sent without authentication (registration).
const anonymousUser = "anonymous"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay" // Replay: stored result for this key
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// Replay is what a completed request left behind: the ID of the resource it
// produced and the status it answered with.
type Replay struct {
	ResourceID string
	Status     int
}

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyScope returns the scope configured for the current route.
func IdempotencyScope(c *gin.Context) string {
	return c.GetString(ctxKeyIdemScope)
}

// IdempotencyUser is the user half of the lookup key: the authenticated user,
// or a shared anonymous bucket.
func IdempotencyUser(c *gin.Context) string {
	if uid := UserIDFrom(c); uid != "" {
		return uid
	}
	return anonymousUser
}

// ReplayFrom returns the stored result when this request replays one.
func ReplayFrom(c *gin.Context) (Replay, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return Replay{}, false
	}
	r, ok := v.(Replay)
	return r, ok
}

// IsReplay reports whether the middleware found a stored result.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayFrom(c)
	return ok
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// Scope namespaces keys per route (e.g. "teams", "users").
	Scope string
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative RFC7230-like
	// token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the stored result for (userID, scope, key) if one
// is still valid at now. Implementations enforce the TTL. An error is treated
// like a miss and does not block the request.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (Replay, bool, error)

// IdempotencyValidator validates the Idempotency-Key header (if present), stashes
// it in the request context, and consults lookup for a prior completed request.
//
// Behavior:
//   - Header absent: no-op.
//   - Header fails validation: validation error envelope on the header field.
//   - Lookup hit: the Replay is stored for ReplayFrom and rate limiting is skipped.
//
// Handlers remain in control of how a replay is served.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			AbortWithError(c, apperr.Validation("invalid Idempotency-Key", map[string]any{
				apperr.MetaField: HeaderIdempotencyKey,
			}))
			return
		}

		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, opts.Scope)

		if lookup != nil {
			uid := IdempotencyUser(c)
			if r, ok, err := lookup(c.Request.Context(), uid, opts.Scope, key, time.Now().UTC()); err != nil {
				LoggerFrom(c).Warn().Err(err).Str("scope", opts.Scope).Msg("idempotency lookup failed")
			} else if ok {
				c.Set(ctxKeyIdemReplay, r)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
