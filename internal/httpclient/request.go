// Package httpclient – request and response values
//
// RequestConfig is an immutable value: interceptors receive one and return
// one, and helpers such as WithHeader always copy. Response carries the decoded
// envelope payload of a successful attempt.
package httpclient

import (
	"encoding/json"
	"net/http"
	"time"
)

// Header names set by the client or its standard interceptors.
const (
	HeaderContentType    = "Content-Type"
	HeaderAuthorization  = "Authorization"
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// RequestConfig describes one logical call.
type RequestConfig struct {
	Method string
	// Path is joined to the client's base URL. Absolute URLs are used as-is.
	Path string
	// Body is JSON-encoded; json.RawMessage and []byte are sent verbatim.
	Body any
	// Headers are per-call headers; keys are canonicalized by WithHeader.
	Headers map[string]string
	// Timeout overrides the client's per-attempt timeout when > 0.
	Timeout time.Duration
	// MaxRetries overrides the strategy's MaxRetries when non-nil.
	MaxRetries *int
	// Retry overrides other strategy fields for this call.
	Retry *StrategyOverride
}

// WithHeader returns a copy of rc with header k set to v.
func (rc RequestConfig) WithHeader(k, v string) RequestConfig {
	h := make(map[string]string, len(rc.Headers)+1)
	for hk, hv := range rc.Headers {
		h[http.CanonicalHeaderKey(hk)] = hv
	}
	h[http.CanonicalHeaderKey(k)] = v
	rc.Headers = h
	return rc
}

// Header returns the per-call value of header k, matched case-insensitively.
func (rc RequestConfig) Header(k string) string {
	ck := http.CanonicalHeaderKey(k)
	for hk, hv := range rc.Headers {
		if http.CanonicalHeaderKey(hk) == ck {
			return hv
		}
	}
	return ""
}

// Response is the result of a successful attempt.
type Response struct {
	// Status is the transport status (2xx).
	Status int
	// Header holds the response headers.
	Header http.Header
	// Data is the raw "data" member of the envelope; nil for empty bodies.
	Data json.RawMessage
	// Request is the config that was sent, after request interceptors.
	Request RequestConfig
	// Attempts counts transport attempts made, including the successful one.
	Attempts int
}

// Decode unmarshals Data into v. Empty or null data leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
