// Package httpclient is the outbound communication layer: a JSON-over-HTTP
// client with a composable interceptor pipeline, a configurable retry/backoff
// policy, per-attempt timeouts, and a typed error taxonomy.
//
// Callers never see raw transport faults. Every call returns a
// result.Result whose error side is an *apperr.Error:
//
//	c := httpclient.New("https://api.example.com",
//	    httpclient.WithTimeout(5*time.Second),
//	    httpclient.WithRetryStrategy(httpclient.DefaultRetryStrategy()),
//	)
//	c.UseRequestInterceptor(httpclient.BearerAuth(tokens))
//
//	res := httpclient.Get[TeamList](ctx, c, "/api/teams", nil)
//	res.Match(show, func(e *apperr.Error) { render(apperr.Public(e)) })
//
// Timeouts: Timeout applies to each attempt and is re-armed on every retry.
// WithCallDeadline optionally bounds the whole logical call, delays included.
// The caller's context bounds everything.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/result"
)

// Doer is the transport primitive: one HTTP request in, status+headers+body out.
// *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// DefaultTimeout is the per-attempt timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

// Result is the result type returned by every client call.
type Result[T any] = result.Result[T, *apperr.Error]

// Client issues logical calls. It is safe for concurrent use; the base
// configuration is fixed after New and the pipeline is synchronized.
type Client struct {
	baseURL      string
	doer         Doer
	timeout      time.Duration
	callDeadline time.Duration
	strategy     RetryStrategy
	headers      map[string]string
	idempotency  bool
	sleep        Sleeper
	log          zerolog.Logger

	pipeline Pipeline
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the transport (default: an *http.Client without its
// own timeout; the per-attempt guard is applied through the request context).
func WithTransport(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithTimeout sets the per-attempt timeout. Values <= 0 keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCallDeadline bounds a whole logical call, retries and delays included.
// Zero (the default) leaves the call bounded only by the caller's context.
func WithCallDeadline(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callDeadline = d
		}
	}
}

// WithRetryStrategy sets the client-level retry strategy.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(c *Client) {
		if s.MaxRetries < 0 {
			s.MaxRetries = 0
		}
		c.strategy = s
	}
}

// WithSleeper replaces the inter-retry wait. Tests use it to record delays.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger sets the logger used for retry and failure events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithDefaultHeaders sets headers sent on every call. Per-call headers win.
func WithDefaultHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[http.CanonicalHeaderKey(k)] = v
		}
	}
}

// WithIdempotencyKeys makes the client attach one Idempotency-Key per logical
// POST call (reused across its retries) when the caller did not set one.
func WithIdempotencyKeys() Option {
	return func(c *Client) { c.idempotency = true }
}

// New returns a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		doer:     &http.Client{},
		timeout:  DefaultTimeout,
		strategy: DefaultRetryStrategy(),
		headers:  map[string]string{"Accept": "application/json"},
		sleep:    sleepContext,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// UseRequestInterceptor registers a stage that runs before every attempt.
func (c *Client) UseRequestInterceptor(fn RequestInterceptor) InterceptorID {
	return c.pipeline.UseRequest(fn)
}

// UseResponseInterceptor registers a stage that runs once on success.
func (c *Client) UseResponseInterceptor(fn ResponseInterceptor) InterceptorID {
	return c.pipeline.UseResponse(fn)
}

// UseErrorInterceptor registers a stage that runs once on final failure.
func (c *Client) UseErrorInterceptor(fn ErrorInterceptor) InterceptorID {
	return c.pipeline.UseError(fn)
}

// Eject removes a previously registered stage. Unknown IDs are a no-op.
func (c *Client) Eject(id InterceptorID) bool { return c.pipeline.Eject(id) }

type ctxKey int

const (
	callIDKey ctxKey = iota
	attemptKey
)

// CallID returns the identifier of the logical call running in ctx. It is
// stable across the call's retries.
func CallID(ctx context.Context) string {
	s, _ := ctx.Value(callIDKey).(string)
	return s
}

// Attempt returns the zero-based attempt index running in ctx, or -1 outside
// an attempt.
func Attempt(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey).(int); ok {
		return n
	}
	return -1
}

// Do executes one logical call and returns the raw success response.
func (c *Client) Do(ctx context.Context, rc RequestConfig) Result[*Response] {
	return c.execute(ctx, rc, nil)
}

// execute runs the retry loop. decode, when set, runs after the response
// chain; its failure is the call's final error.
func (c *Client) execute(ctx context.Context, rc RequestConfig, decode func(*Response) error) Result[*Response] {
	start := time.Now()

	strategy := rc.Retry.Merge(c.strategy)
	if rc.MaxRetries != nil && *rc.MaxRetries >= 0 {
		strategy.MaxRetries = *rc.MaxRetries
	}
	timeout := c.timeout
	if rc.Timeout > 0 {
		timeout = rc.Timeout
	}

	if c.callDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callDeadline)
		defer cancel()
	}
	ctx = context.WithValue(ctx, callIDKey, uuid.NewString())
	rc = c.prepare(rc)

	var (
		last     *apperr.Error
		attempts int
	)
	for attempt := 0; attempt <= strategy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			last = canceled(err, time.Since(start))
			break
		}
		attempts++
		actx := context.WithValue(ctx, attemptKey, attempt)

		resp, aerr, fatal := c.attempt(actx, rc, timeout, start)
		if aerr == nil {
			resp.Attempts = attempts
			out, err := c.pipeline.runResponse(actx, resp)
			if err == nil && out != nil && decode != nil {
				err = decode(out)
			}
			if err == nil {
				if out == nil {
					out = resp
				}
				return result.Ok[*Response, *apperr.Error](out)
			}
			last = stageError(err, resp.Status)
			break
		}

		last = aerr
		if fatal {
			break
		}
		if err := ctx.Err(); err != nil {
			last = canceled(err, time.Since(start))
			break
		}
		if !ShouldRetry(last, attempt, strategy.MaxRetries, strategy) {
			break
		}

		delay := DelayFor(attempt, strategy)
		c.log.Warn().
			Str("method", rc.Method).
			Str("path", rc.Path).
			Str("call_id", CallID(ctx)).
			Int("attempt", attempt).
			Dur("delay", delay).
			Object("error", last).
			Msg("retrying request")
		if err := c.sleep(ctx, delay); err != nil {
			last = canceled(err, time.Since(start))
			break
		}
	}

	last = last.WithField(apperr.MetaAttempts, attempts)
	final := c.pipeline.runError(ctx, last)
	c.log.Debug().
		Str("method", rc.Method).
		Str("path", rc.Path).
		Str("call_id", CallID(ctx)).
		Int("attempts", attempts).
		Dur("elapsed", time.Since(start)).
		Object("error", final).
		Msg("request failed")
	return result.Err[*Response](final)
}

// prepare applies call-level defaults that must stay fixed across attempts.
func (c *Client) prepare(rc RequestConfig) RequestConfig {
	for k, v := range c.headers {
		if rc.Header(k) == "" {
			rc = rc.WithHeader(k, v)
		}
	}
	if c.idempotency && strings.EqualFold(rc.Method, http.MethodPost) && rc.Header(HeaderIdempotencyKey) == "" {
		rc = rc.WithHeader(HeaderIdempotencyKey, uuid.NewString())
	}
	return rc
}

// attempt runs the request chain and one transport exchange under the
// per-attempt guard. fatal marks errors that must not be retried. start is
// when the call began.
func (c *Client) attempt(ctx context.Context, rc RequestConfig, timeout time.Duration, start time.Time) (resp *Response, aerr *apperr.Error, fatal bool) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sent, err := c.pipeline.runRequest(actx, rc)
	if err != nil {
		if actx.Err() != nil {
			return nil, c.guardError(ctx, actx, timeout, time.Since(start)), ctx.Err() != nil
		}
		return nil, stageError(err, 0), false
	}

	req, err := c.newRequest(actx, sent)
	if err != nil {
		return nil, apperr.Internal("Failed to build request", map[string]any{apperr.MetaKind: "encode"}).WithCause(err), true
	}

	hr, err := c.doer.Do(req)
	if err != nil {
		if actx.Err() != nil {
			return nil, c.guardError(ctx, actx, timeout, time.Since(start)), ctx.Err() != nil
		}
		return nil, apperr.Internal("Network request failed", map[string]any{apperr.MetaKind: "network"}).WithCause(err), false
	}
	defer hr.Body.Close()

	body, err := io.ReadAll(io.LimitReader(hr.Body, maxBodyBytes))
	if err != nil {
		if actx.Err() != nil {
			return nil, c.guardError(ctx, actx, timeout, time.Since(start)), ctx.Err() != nil
		}
		return nil, apperr.Internal("Failed to read response body", map[string]any{apperr.MetaKind: "network"}).WithCause(err), false
	}

	resp, aerr = decodeEnvelope(hr.StatusCode, hr.Header, body)
	if aerr != nil {
		return nil, aerr, false
	}
	resp.Request = sent
	return resp, nil, false
}

// guardError describes why the attempt context ended: the per-attempt guard
// tripped (retryable) or the call itself was canceled.
func (c *Client) guardError(callCtx, attemptCtx context.Context, timeout, elapsed time.Duration) *apperr.Error {
	if err := callCtx.Err(); err != nil {
		return canceled(err, elapsed)
	}
	return apperr.Internal(
		fmt.Sprintf("Request timeout after %dms", timeout.Milliseconds()),
		map[string]any{apperr.MetaKind: "timeout", "timeoutMs": timeout.Milliseconds()},
	).WithCause(attemptCtx.Err())
}

// canceled converts a call-level context error. Deadline expiry reads as a
// timeout; explicit cancellation as canceled.
func canceled(err error, elapsed time.Duration) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		msg := "Request timeout"
		if elapsed > 0 {
			msg = fmt.Sprintf("Request timeout after %dms", elapsed.Milliseconds())
		}
		return apperr.Internal(msg, map[string]any{apperr.MetaKind: "timeout"}).WithCause(err)
	}
	return apperr.Internal("Request canceled", map[string]any{apperr.MetaKind: "canceled"}).WithCause(err)
}

// stageError converts an interceptor or decode failure. Taxonomy errors pass
// through; anything else becomes internal, tagged with status when known.
func stageError(err error, status int) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.From(ae)
	}
	e := apperr.Internal("Interceptor failed", map[string]any{apperr.MetaKind: "interceptor"}).WithCause(err)
	if status > 0 {
		e = e.WithStatus(status)
	}
	return e
}

func (c *Client) newRequest(ctx context.Context, rc RequestConfig) (*http.Request, error) {
	var (
		body    io.Reader
		hasBody bool
	)
	switch b := rc.Body.(type) {
	case nil:
	case json.RawMessage:
		body, hasBody = bytes.NewReader(b), true
	case []byte:
		body, hasBody = bytes.NewReader(b), true
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		body, hasBody = bytes.NewReader(buf), true
	}

	method := strings.ToUpper(rc.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(rc.Path), body)
	if err != nil {
		return nil, err
	}
	for k, v := range rc.Headers {
		req.Header.Set(k, v)
	}
	if hasBody && req.Header.Get(HeaderContentType) == "" {
		req.Header.Set(HeaderContentType, "application/json")
	}
	return req, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// sleepContext waits for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
