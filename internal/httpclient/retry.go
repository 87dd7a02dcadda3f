// Package httpclient – retry policy
//
// This file holds the pure retry decision and delay functions. Nothing here
// sleeps or performs I/O; the client loop owns waiting.
package httpclient

import (
	"math"
	"net/http"
	"time"

	"github.com/tbourn/teamhub/internal/apperr"
)

// BackoffMode selects how the delay grows between retries.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffExponential BackoffMode = "exponential"
)

// ParseBackoffMode accepts "fixed" or "exponential". Anything else reports false.
func ParseBackoffMode(s string) (BackoffMode, bool) {
	switch BackoffMode(s) {
	case BackoffFixed, BackoffExponential:
		return BackoffMode(s), true
	}
	return "", false
}

// RetryPredicate overrides the status-based retry decision. attempt is the
// zero-based retry index.
type RetryPredicate func(err *apperr.Error, attempt int) bool

// RetryStrategy parameterizes the retry loop.
type RetryStrategy struct {
	// MaxRetries is the number of retries after the initial attempt (>= 0).
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// Backoff is fixed or exponential.
	Backoff BackoffMode
	// RetryableStatuses lists transport statuses worth retrying.
	RetryableStatuses map[int]struct{}
	// ShouldRetry, when set, replaces the status-based decision entirely.
	ShouldRetry RetryPredicate
	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultRetryableStatuses are the statuses retried by DefaultRetryStrategy.
var DefaultRetryableStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultRetryStrategy returns 3 retries, 1s base delay, exponential backoff,
// retrying DefaultRetryableStatuses.
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		Backoff:           BackoffExponential,
		RetryableStatuses: StatusSet(DefaultRetryableStatuses...),
	}
}

// StatusSet builds a RetryableStatuses set.
func StatusSet(statuses ...int) map[int]struct{} {
	m := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		m[s] = struct{}{}
	}
	return m
}

// Retryable reports whether status is in the strategy's retryable set.
func (s RetryStrategy) Retryable(status int) bool {
	_, ok := s.RetryableStatuses[status]
	return ok
}

// ShouldRetry decides whether the loop continues after attempt failed with err.
//
//  1. attempt >= maxRetries: exhausted, false.
//  2. A custom predicate on the strategy decides alone.
//  3. An error carrying a transport status retries iff the status is in
//     RetryableStatuses. An error without one (timeout, unreachable host) is
//     presumed transient and retries.
func ShouldRetry(err *apperr.Error, attempt, maxRetries int, strategy RetryStrategy) bool {
	if attempt >= maxRetries {
		return false
	}
	if strategy.ShouldRetry != nil {
		return strategy.ShouldRetry(err, attempt)
	}
	if err == nil {
		return false
	}
	if status, ok := err.TransportStatus(); ok {
		return strategy.Retryable(status)
	}
	return true
}

// DelayFor returns the wait before retry number attempt (zero-based):
// BaseDelay for fixed backoff, BaseDelay*2^attempt for exponential, capped by
// MaxDelay when set. Overflow saturates at the cap or math.MaxInt64.
func DelayFor(attempt int, strategy RetryStrategy) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := strategy.BaseDelay
	if strategy.Backoff == BackoffExponential && d > 0 {
		f := float64(d) * math.Pow(2, float64(attempt))
		if f >= math.MaxInt64 {
			d = time.Duration(math.MaxInt64)
		} else {
			d = time.Duration(f)
		}
	}
	if strategy.MaxDelay > 0 && d > strategy.MaxDelay {
		d = strategy.MaxDelay
	}
	return d
}

// StrategyOverride carries per-call retry settings. Nil fields keep the
// client default.
type StrategyOverride struct {
	MaxRetries        *int
	BaseDelay         *time.Duration
	Backoff           *BackoffMode
	RetryableStatuses map[int]struct{}
	ShouldRetry       RetryPredicate
}

// Merge returns base with the non-nil fields of o applied.
func (o *StrategyOverride) Merge(base RetryStrategy) RetryStrategy {
	if o == nil {
		return base
	}
	if o.MaxRetries != nil && *o.MaxRetries >= 0 {
		base.MaxRetries = *o.MaxRetries
	}
	if o.BaseDelay != nil && *o.BaseDelay >= 0 {
		base.BaseDelay = *o.BaseDelay
	}
	if o.Backoff != nil {
		base.Backoff = *o.Backoff
	}
	if o.RetryableStatuses != nil {
		base.RetryableStatuses = o.RetryableStatuses
	}
	if o.ShouldRetry != nil {
		base.ShouldRetry = o.ShouldRetry
	}
	return base
}
