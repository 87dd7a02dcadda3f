// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the per-identity token-bucket limiter mounted on every API
// route. Buckets are keyed by the authenticated user (or client IP for the
// public routes) and live in process memory; idle buckets are swept on a
// timer driven by lookups.
//
// A rejection is a BUSINESS_RULE_ERROR envelope with transport status 429 and
// a Retry-After header computed from the bucket's own refill schedule, so the
// outbound client's retry loop can back off by the right amount. Replays
// flagged by IdempotencyValidator never consume tokens.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/teamhub/internal/apperr"
)

// Rate-limit response headers.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
)

const (
	defaultBucketIdle = 10 * time.Minute
	defaultSweepEvery = time.Minute
)

// keyFunc maps a request to its bucket identity.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated requests by user ID and anonymous ones by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserIDFrom(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a set of token buckets, one per key. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	idle       time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1). rps of 0 allows each key burst requests
// in total.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		keyFn:      keyFn,
		idle:       defaultBucketIdle,
		sweepEvery: defaultSweepEvery,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Len reports how many buckets are live.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// limiterFor returns the bucket for key, creating it on first use. Idle
// buckets are swept first so an expired bucket is never refreshed.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 2
//	X-RateLimit-Limit: 10
//	X-RateLimit-Remaining: 0
//	{"success":false,"error":{"code":"BUSINESS_RULE_ERROR","message":"rate limit exceeded"}}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.limiterFor(rl.keyFn(c), now)
		wait, allowed := reserve(lim, now)

		c.Header(HeaderRateLimit, strconv.Itoa(rl.burst))
		c.Header(HeaderRateRemaining, strconv.Itoa(int(math.Max(0, math.Floor(lim.TokensAt(now))))))
		if allowed {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(ceilSeconds(wait)))
		AbortWithError(c, apperr.BusinessRule("rate limit exceeded", map[string]any{
			apperr.MetaKind: "ratelimit",
		}).WithStatus(http.StatusTooManyRequests))
	}
}

// reserve takes a token if one is available now. Otherwise it returns how
// long until one would be, without holding the reservation.
func reserve(lim *rate.Limiter, now time.Time) (time.Duration, bool) {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return time.Second, false
	}
	d := r.DelayFrom(now)
	if d == 0 {
		return 0, true
	}
	r.CancelAt(now)
	if d == rate.InfDuration {
		// zero refill rate and an empty bucket: no token will ever arrive
		return time.Second, false
	}
	return d, false
}

// ceilSeconds rounds d up to whole seconds, minimum 1.
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
