package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/teamhub/internal/apperr"
)

// --- helpers ---

type scriptDoer struct {
	mu    sync.Mutex
	calls int
	reqs  []*http.Request
	fn    func(n int, req *http.Request) (*http.Response, error)
}

func (d *scriptDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	n := d.calls
	d.calls++
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()
	return d.fn(n, req)
}

func (d *scriptDoer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func reply(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const (
	okBody   = `{"success":true,"data":{"id":"t1","name":"core"}}`
	downBody = `{"success":false,"error":{"code":"SERVICE_UNAVAILABLE","message":"down"}}`
)

type sleepRecorder struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.d = append(s.d, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t time.Duration
	for _, d := range s.d {
		t += d
	}
	return t
}

func newTestClient(d Doer, s *sleepRecorder, opts ...Option) *Client {
	base := []Option{WithTransport(d), WithSleeper(s.sleep)}
	return New("http://api.test", append(base, opts...)...)
}

type team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func kindOf(e *apperr.Error) string {
	v, _ := e.Meta(apperr.MetaKind)
	s, _ := v.(string)
	return s
}

// --- retry loop ---

func TestDo_RetryExhaustion_MakesMaxRetriesPlusOneCalls(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusServiceUnavailable, downBody), nil
	}}
	s := &sleepRecorder{}
	c := newTestClient(d, s)

	res := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/api/teams"})
	if !res.IsErr() {
		t.Fatalf("expected error result")
	}
	if d.Calls() != 4 {
		t.Fatalf("calls = %d; want 4", d.Calls())
	}
	_, e := res.Unpack()
	if e.Category() != apperr.CategoryInternal {
		t.Fatalf("category = %s; want internal", e.Category())
	}
	if st, ok := e.TransportStatus(); !ok || st != 503 {
		t.Fatalf("status = %d,%v; want 503", st, ok)
	}
	if n, _ := e.Meta(apperr.MetaAttempts); n != 4 {
		t.Fatalf("attempts meta = %v; want 4", n)
	}
	if got := apperr.Public(e).Message; got != apperr.GenericInternalMessage {
		t.Fatalf("public message leaked: %q", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(s.d) != len(want) {
		t.Fatalf("sleeps = %v; want %v", s.d, want)
	}
	for i := range want {
		if s.d[i] != want[i] {
			t.Fatalf("sleep[%d] = %v; want %v", i, s.d[i], want[i])
		}
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	d := &scriptDoer{fn: func(n int, _ *http.Request) (*http.Response, error) {
		if n < 3 {
			return reply(http.StatusServiceUnavailable, downBody), nil
		}
		return reply(http.StatusOK, okBody), nil
	}}
	s := &sleepRecorder{}
	c := newTestClient(d, s)

	res := Get[team](context.Background(), c, "/api/teams/t1", nil)
	tm, e := res.Unpack()
	if e != nil {
		t.Fatalf("unexpected error: %v", e)
	}
	if tm.ID != "t1" || tm.Name != "core" {
		t.Fatalf("team = %+v", tm)
	}
	if d.Calls() != 4 {
		t.Fatalf("calls = %d; want 4", d.Calls())
	}
	if s.total() != 7*time.Second {
		t.Fatalf("total delay = %v; want 7s", s.total())
	}
}

func TestDo_NonRetryableStatusShortCircuits(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusBadRequest,
			`{"success":false,"error":{"code":"VALIDATION_ERROR","message":"name is required","field":"name"}}`), nil
	}}
	s := &sleepRecorder{}
	c := newTestClient(d, s)

	res := Post[team](context.Background(), c, "/api/teams", map[string]string{}, nil)
	_, e := res.Unpack()
	if e == nil {
		t.Fatalf("expected error")
	}
	if d.Calls() != 1 || len(s.d) != 0 {
		t.Fatalf("calls=%d sleeps=%v; want 1 call, no sleeps", d.Calls(), s.d)
	}
	if !errors.Is(e, apperr.ErrValidation) {
		t.Fatalf("want validation, got %v", e)
	}
	pub := apperr.Public(e)
	if pub.Message != "name is required" || pub.Field != "name" {
		t.Fatalf("public = %+v", pub)
	}
}

func TestDo_NetworkErrorIsRetried(t *testing.T) {
	d := &scriptDoer{fn: func(n int, _ *http.Request) (*http.Response, error) {
		if n == 0 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return reply(http.StatusOK, okBody), nil
	}}
	c := newTestClient(d, &sleepRecorder{})

	res := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x"})
	resp, e := res.Unpack()
	if e != nil {
		t.Fatalf("unexpected error: %v", e)
	}
	if resp.Attempts != 2 {
		t.Fatalf("attempts = %d; want 2", resp.Attempts)
	}
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	d := &scriptDoer{fn: func(_ int, req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}
	c := newTestClient(d, &sleepRecorder{},
		WithTimeout(20*time.Millisecond),
		WithRetryStrategy(RetryStrategy{MaxRetries: 1, Backoff: BackoffFixed}),
	)

	res := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/slow"})
	_, e := res.Unpack()
	if e == nil {
		t.Fatalf("expected timeout")
	}
	if d.Calls() != 2 {
		t.Fatalf("calls = %d; want 2 (timeouts are retried)", d.Calls())
	}
	if e.Message() != "Request timeout after 20ms" {
		t.Fatalf("message = %q", e.Message())
	}
	if _, ok := e.TransportStatus(); ok {
		t.Fatalf("timeout must not carry a transport status")
	}
	if kindOf(e) != "timeout" {
		t.Fatalf("kind = %q; want timeout", kindOf(e))
	}
}

func TestDo_CallDeadlineIsTerminal(t *testing.T) {
	d := &scriptDoer{fn: func(_ int, req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}
	c := newTestClient(d, &sleepRecorder{}, WithCallDeadline(30*time.Millisecond))

	res := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/slow"})
	_, e := res.Unpack()
	if e == nil {
		t.Fatalf("expected error")
	}
	if d.Calls() != 1 {
		t.Fatalf("calls = %d; want 1", d.Calls())
	}
	if kindOf(e) != "timeout" {
		t.Fatalf("kind = %q; want timeout", kindOf(e))
	}
	if !strings.HasPrefix(e.Message(), "Request timeout after ") || !strings.HasSuffix(e.Message(), "ms") {
		t.Fatalf("message = %q; want elapsed time", e.Message())
	}
}

func TestDo_CancelDuringDelay(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusServiceUnavailable, downBody), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var errStage int32
	c := New("http://api.test",
		WithTransport(d),
		WithSleeper(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)
	c.UseErrorInterceptor(func(_ context.Context, e *apperr.Error) *apperr.Error {
		atomic.AddInt32(&errStage, 1)
		return e
	})

	res := c.Do(ctx, RequestConfig{Method: http.MethodGet, Path: "/x"})
	_, e := res.Unpack()
	if e == nil {
		t.Fatalf("expected error")
	}
	if d.Calls() != 1 {
		t.Fatalf("calls = %d; want 1", d.Calls())
	}
	if kindOf(e) != "canceled" {
		t.Fatalf("kind = %q; want canceled", kindOf(e))
	}
	if n := atomic.LoadInt32(&errStage); n != 1 {
		t.Fatalf("error stage ran %d times; want 1", n)
	}
}

func TestDo_PerCallMaxRetriesOverride(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusBadGateway, ""), nil
	}}
	c := newTestClient(d, &sleepRecorder{})
	zero := 0

	res := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x", MaxRetries: &zero})
	_, e := res.Unpack()
	if e == nil || d.Calls() != 1 {
		t.Fatalf("calls = %d err=%v; want 1 call and an error", d.Calls(), e)
	}
	if e.Category() != apperr.CategoryExternal {
		t.Fatalf("category = %s; want external", e.Category())
	}
}

func TestDo_CustomPredicate(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusConflict, `{"success":false,"error":{"code":"CONFLICT_ERROR","message":"busy"}}`), nil
	}}
	c := newTestClient(d, &sleepRecorder{})
	retryConflicts := &StrategyOverride{ShouldRetry: func(e *apperr.Error, attempt int) bool {
		return e.Category() == apperr.CategoryConflict && attempt < 1
	}}

	res := c.Do(context.Background(), RequestConfig{Method: http.MethodPut, Path: "/x", Retry: retryConflicts})
	if res.IsOk() {
		t.Fatalf("expected error")
	}
	if d.Calls() != 2 {
		t.Fatalf("calls = %d; want 2", d.Calls())
	}
}

// --- interceptors ---

func TestInterceptors_OrderOnEveryAttempt(t *testing.T) {
	d := &scriptDoer{fn: func(n int, _ *http.Request) (*http.Response, error) {
		if n < 2 {
			return reply(http.StatusServiceUnavailable, downBody), nil
		}
		return reply(http.StatusOK, okBody), nil
	}}
	c := newTestClient(d, &sleepRecorder{})

	var trace []string
	mark := func(name string) RequestInterceptor {
		return func(_ context.Context, rc RequestConfig) (RequestConfig, error) {
			trace = append(trace, name)
			return rc.WithHeader("X-Stage-"+name, "1"), nil
		}
	}
	c.UseRequestInterceptor(mark("A"))
	c.UseRequestInterceptor(mark("B"))
	c.UseRequestInterceptor(mark("C"))

	var respStage, errStage int
	c.UseResponseInterceptor(func(_ context.Context, r *Response) (*Response, error) {
		respStage++
		return r, nil
	})
	c.UseErrorInterceptor(func(_ context.Context, e *apperr.Error) *apperr.Error {
		errStage++
		return e
	})

	if res := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x"}); res.IsErr() {
		t.Fatalf("unexpected error")
	}
	if got := strings.Join(trace, ""); got != "ABCABCABC" {
		t.Fatalf("trace = %q; want ABCABCABC", got)
	}
	if respStage != 1 || errStage != 0 {
		t.Fatalf("response stage=%d error stage=%d; want 1,0", respStage, errStage)
	}
	for i, r := range d.reqs {
		if r.Header.Get("X-Stage-C") != "1" {
			t.Fatalf("attempt %d missing stage header", i)
		}
	}
}

func TestInterceptors_Eject(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusOK, okBody), nil
	}}
	c := newTestClient(d, &sleepRecorder{})

	var trace []string
	mark := func(name string) RequestInterceptor {
		return func(_ context.Context, rc RequestConfig) (RequestConfig, error) {
			trace = append(trace, name)
			return rc, nil
		}
	}
	c.UseRequestInterceptor(mark("A"))
	b := c.UseRequestInterceptor(mark("B"))
	c.UseRequestInterceptor(mark("C"))

	if !c.Eject(b) {
		t.Fatalf("Eject(b) = false")
	}
	if c.Eject(b) {
		t.Fatalf("second Eject(b) should be a no-op")
	}
	if c.Eject(InterceptorID(1 << 60)) {
		t.Fatalf("unknown id should be a no-op")
	}

	c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x"})
	if got := strings.Join(trace, ""); got != "AC" {
		t.Fatalf("trace = %q; want AC", got)
	}
}

func TestInterceptors_ConcurrentEject(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusOK, okBody), nil
	}}
	c := newTestClient(d, &sleepRecorder{})
	noop := func(_ context.Context, rc RequestConfig) (RequestConfig, error) { return rc, nil }

	ids := make([]InterceptorID, 50)
	for i := range ids {
		ids[i] = c.UseRequestInterceptor(noop)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x"})
			}
		}()
	}
	var ejected int32
	for _, id := range ids {
		wg.Add(1)
		go func(id InterceptorID) {
			defer wg.Done()
			if c.Eject(id) {
				atomic.AddInt32(&ejected, 1)
			}
		}(id)
	}
	wg.Wait()

	if ejected != int32(len(ids)) {
		t.Fatalf("ejected = %d; want %d", ejected, len(ids))
	}
	if req, _, _ := c.pipeline.Len(); req != 0 {
		t.Fatalf("request chain len = %d; want 0", req)
	}
}

func TestInterceptors_RequestStageFailureIsRetried(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusOK, okBody), nil
	}}
	c := newTestClient(d, &sleepRecorder{})
	var n int
	c.UseRequestInterceptor(func(_ context.Context, rc RequestConfig) (RequestConfig, error) {
		n++
		if n == 1 {
			return rc, errors.New("token refresh failed")
		}
		return rc, nil
	})

	if res := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x"}); res.IsErr() {
		t.Fatalf("unexpected error")
	}
	if d.Calls() != 1 || n != 2 {
		t.Fatalf("transport calls=%d stage runs=%d; want 1,2", d.Calls(), n)
	}
}

func TestInterceptors_ResponseStageFailureIsFinal(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusOK, okBody), nil
	}}
	c := newTestClient(d, &sleepRecorder{})
	c.UseResponseInterceptor(func(context.Context, *Response) (*Response, error) {
		return nil, apperr.BusinessRule("team is archived", nil)
	})
	var errStage int
	c.UseErrorInterceptor(func(_ context.Context, e *apperr.Error) *apperr.Error {
		errStage++
		return e
	})

	_, e := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x"}).Unpack()
	if e == nil || e.Category() != apperr.CategoryBusinessRule {
		t.Fatalf("err = %v; want business_rule", e)
	}
	if d.Calls() != 1 || errStage != 1 {
		t.Fatalf("calls=%d error stage=%d; want 1,1", d.Calls(), errStage)
	}
}

func TestInterceptors_ErrorStageCanReplace(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusNotFound, ""), nil
	}}
	c := newTestClient(d, &sleepRecorder{})
	c.UseErrorInterceptor(func(_ context.Context, e *apperr.Error) *apperr.Error {
		return e.WithField("hint", "check the team id")
	})
	c.UseErrorInterceptor(func(context.Context, *apperr.Error) *apperr.Error { return nil })

	_, e := c.Do(context.Background(), RequestConfig{Method: http.MethodGet, Path: "/x"}).Unpack()
	if e == nil || e.Category() != apperr.CategoryNotFound {
		t.Fatalf("err = %v; want not_found", e)
	}
	if v, _ := e.Meta("hint"); v != "check the team id" {
		t.Fatalf("hint = %v", v)
	}
}

func TestRequestID_StableAcrossRetries(t *testing.T) {
	d := &scriptDoer{fn: func(n int, _ *http.Request) (*http.Response, error) {
		if n == 0 {
			return reply(http.StatusBadGateway, ""), nil
		}
		return reply(http.StatusCreated, okBody), nil
	}}
	c := newTestClient(d, &sleepRecorder{}, WithIdempotencyKeys())
	c.UseRequestInterceptor(RequestID())
	c.UseRequestInterceptor(BearerAuth(StaticToken("tok-123")))

	if res := Post[team](context.Background(), c, "/api/teams", team{Name: "core"}, nil); res.IsErr() {
		t.Fatalf("unexpected error")
	}
	if len(d.reqs) != 2 {
		t.Fatalf("reqs = %d; want 2", len(d.reqs))
	}
	first, second := d.reqs[0], d.reqs[1]
	for _, h := range []string{HeaderRequestID, HeaderIdempotencyKey} {
		if first.Header.Get(h) == "" || first.Header.Get(h) != second.Header.Get(h) {
			t.Fatalf("%s differs across attempts: %q vs %q", h, first.Header.Get(h), second.Header.Get(h))
		}
	}
	if got := second.Header.Get(HeaderAuthorization); got != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := second.Header.Get(HeaderContentType); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestBearerAuth_TokenSourceFailure(t *testing.T) {
	ic := BearerAuth(TokenSourceFunc(func(context.Context) (string, error) {
		return "", errors.New("keyring locked")
	}))
	_, err := ic(context.Background(), RequestConfig{})
	if !errors.Is(err, apperr.ErrAuthentication) {
		t.Fatalf("err = %v; want authentication", err)
	}
}

func TestSend_DecodeFailureRunsErrorChain(t *testing.T) {
	d := &scriptDoer{fn: func(int, *http.Request) (*http.Response, error) {
		return reply(http.StatusOK, `{"success":true,"data":"not-an-object"}`), nil
	}}
	c := newTestClient(d, &sleepRecorder{})
	var errStage int
	c.UseErrorInterceptor(func(_ context.Context, e *apperr.Error) *apperr.Error {
		errStage++
		return e
	})

	_, e := Get[team](context.Background(), c, "/x", nil).Unpack()
	if e == nil || kindOf(e) != "decode" {
		t.Fatalf("err = %v; want decode error", e)
	}
	if errStage != 1 || d.Calls() != 1 {
		t.Fatalf("error stage=%d calls=%d; want 1,1", errStage, d.Calls())
	}
}

func TestClient_AgainstHTTPTestServer(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/api/teams" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":[{"id":"a","name":"A"},{"id":"b","name":"B"}]}`)
	}))
	defer srv.Close()

	base := testutil.ToFloat64(clientAttempts.WithLabelValues("GET", "200"))
	c := New(srv.URL+"/", WithTransport(InstrumentedDoer(srv.Client())))
	teams, e := Get[[]team](context.Background(), c, "api/teams", nil).Unpack()
	if e != nil {
		t.Fatalf("unexpected error: %v", e)
	}
	if len(teams) != 2 || teams[1].ID != "b" {
		t.Fatalf("teams = %+v", teams)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("hits = %d", hits)
	}
	if got := testutil.ToFloat64(clientAttempts.WithLabelValues("GET", "200")); got != base+1 {
		t.Fatalf("httpclient_attempts_total = %v; want %v", got, base+1)
	}
}
