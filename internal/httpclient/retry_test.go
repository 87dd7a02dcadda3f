package httpclient

import (
	"math"
	"testing"
	"time"

	"github.com/tbourn/teamhub/internal/apperr"
)

func TestDelayFor_Exponential(t *testing.T) {
	s := DefaultRetryStrategy()
	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond, 4000 * time.Millisecond, 8000 * time.Millisecond}
	for i, w := range want {
		if got := DelayFor(i, s); got != w {
			t.Fatalf("DelayFor(%d) = %v; want %v", i, got, w)
		}
	}
}

func TestDelayFor_FixedAndCapped(t *testing.T) {
	fixed := RetryStrategy{BaseDelay: 250 * time.Millisecond, Backoff: BackoffFixed}
	for i := 0; i < 5; i++ {
		if got := DelayFor(i, fixed); got != 250*time.Millisecond {
			t.Fatalf("fixed DelayFor(%d) = %v", i, got)
		}
	}

	capped := RetryStrategy{BaseDelay: time.Second, Backoff: BackoffExponential, MaxDelay: 3 * time.Second}
	if got := DelayFor(5, capped); got != 3*time.Second {
		t.Fatalf("capped = %v; want 3s", got)
	}
	if got := DelayFor(200, RetryStrategy{BaseDelay: time.Second, Backoff: BackoffExponential}); got != time.Duration(math.MaxInt64) {
		t.Fatalf("overflow should saturate, got %v", got)
	}
}

func TestShouldRetry(t *testing.T) {
	s := DefaultRetryStrategy()
	unavailable := apperr.MapStatus(503, "down")
	badReq := apperr.MapStatus(400, "bad")
	timeout := apperr.Internal("Request timeout after 10ms", nil)

	cases := []struct {
		name    string
		err     *apperr.Error
		attempt int
		max     int
		want    bool
	}{
		{"retryable status", unavailable, 0, 3, true},
		{"non-retryable status", badReq, 0, 3, false},
		{"no status is transient", timeout, 1, 3, true},
		{"exhausted", unavailable, 3, 3, false},
		{"zero retries", unavailable, 0, 0, false},
		{"nil error", nil, 0, 3, false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err, tc.attempt, tc.max, s); got != tc.want {
			t.Fatalf("%s: ShouldRetry = %v; want %v", tc.name, got, tc.want)
		}
	}

	s.ShouldRetry = func(*apperr.Error, int) bool { return true }
	if !ShouldRetry(badReq, 0, 3, s) {
		t.Fatalf("custom predicate should override status set")
	}
	if ShouldRetry(badReq, 3, 3, s) {
		t.Fatalf("custom predicate must not extend past maxRetries")
	}
}

func TestStrategyOverride_Merge(t *testing.T) {
	base := DefaultRetryStrategy()
	var nilOverride *StrategyOverride
	if got := nilOverride.Merge(base); got.MaxRetries != base.MaxRetries || got.BaseDelay != base.BaseDelay {
		t.Fatalf("nil override changed strategy: %+v", got)
	}

	one, delay, mode := 1, 50*time.Millisecond, BackoffFixed
	got := (&StrategyOverride{MaxRetries: &one, BaseDelay: &delay, Backoff: &mode, RetryableStatuses: StatusSet(429)}).Merge(base)
	if got.MaxRetries != 1 || got.BaseDelay != delay || got.Backoff != BackoffFixed {
		t.Fatalf("merge = %+v", got)
	}
	if got.Retryable(503) || !got.Retryable(429) {
		t.Fatalf("retryable set not replaced")
	}
	if !base.Retryable(503) {
		t.Fatalf("base strategy mutated")
	}
}

func TestParseBackoffMode(t *testing.T) {
	if m, ok := ParseBackoffMode("fixed"); !ok || m != BackoffFixed {
		t.Fatalf("fixed: %v %v", m, ok)
	}
	if _, ok := ParseBackoffMode("linear"); ok {
		t.Fatalf("linear should be rejected")
	}
}
