// Package httpclient – interceptor pipeline
//
// This file implements the three interceptor chains (request, response,
// error). Stages are identified by an opaque InterceptorID so a caller can
// eject exactly the stage it registered.
//
// Concurrency: chains are guarded by an RWMutex and every run iterates a
// snapshot copy, so Use*/Eject may be called while other calls are in flight
// without affecting the iteration those calls are already performing.
package httpclient

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tbourn/teamhub/internal/apperr"
)

// RequestInterceptor transforms the outgoing request before every attempt.
// Returning an error fails the attempt.
type RequestInterceptor func(ctx context.Context, rc RequestConfig) (RequestConfig, error)

// ResponseInterceptor transforms a decoded success response. It runs once per
// logical call, on the attempt that succeeded. Returning an error fails the call.
type ResponseInterceptor func(ctx context.Context, resp *Response) (*Response, error)

// ErrorInterceptor observes or enriches the final error of a call. It runs
// once, after the retry loop, immediately before the caller receives Err.
type ErrorInterceptor func(ctx context.Context, err *apperr.Error) *apperr.Error

// InterceptorID identifies one registration. IDs are never reused within a
// process, so two registrations never compare equal.
type InterceptorID uint64

var lastInterceptorID atomic.Uint64

func nextInterceptorID() InterceptorID {
	return InterceptorID(lastInterceptorID.Add(1))
}

type stage[F any] struct {
	id InterceptorID
	fn F
}

// Pipeline holds the three ordered chains. The zero value is ready to use.
type Pipeline struct {
	mu       sync.RWMutex
	request  []stage[RequestInterceptor]
	response []stage[ResponseInterceptor]
	errs     []stage[ErrorInterceptor]
}

// UseRequest appends a request stage and returns its ID.
func (p *Pipeline) UseRequest(fn RequestInterceptor) InterceptorID {
	id := nextInterceptorID()
	if fn == nil {
		return id
	}
	p.mu.Lock()
	p.request = append(p.request, stage[RequestInterceptor]{id, fn})
	p.mu.Unlock()
	return id
}

// UseResponse appends a response stage and returns its ID.
func (p *Pipeline) UseResponse(fn ResponseInterceptor) InterceptorID {
	id := nextInterceptorID()
	if fn == nil {
		return id
	}
	p.mu.Lock()
	p.response = append(p.response, stage[ResponseInterceptor]{id, fn})
	p.mu.Unlock()
	return id
}

// UseError appends an error stage and returns its ID.
func (p *Pipeline) UseError(fn ErrorInterceptor) InterceptorID {
	id := nextInterceptorID()
	if fn == nil {
		return id
	}
	p.mu.Lock()
	p.errs = append(p.errs, stage[ErrorInterceptor]{id, fn})
	p.mu.Unlock()
	return id
}

// Eject removes the stage registered under id from whichever chain holds it.
// It reports whether a stage was removed; unknown or already ejected IDs are
// a no-op.
func (p *Pipeline) Eject(id InterceptorID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	var removed bool
	p.request, removed = eject(p.request, id)
	if removed {
		return true
	}
	p.response, removed = eject(p.response, id)
	if removed {
		return true
	}
	p.errs, removed = eject(p.errs, id)
	return removed
}

func eject[F any](chain []stage[F], id InterceptorID) ([]stage[F], bool) {
	i := slices.IndexFunc(chain, func(s stage[F]) bool { return s.id == id })
	if i < 0 {
		return chain, false
	}
	return slices.Delete(chain, i, i+1), true
}

// Len returns the number of stages in each chain.
func (p *Pipeline) Len() (request, response, errs int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.request), len(p.response), len(p.errs)
}

// funcs copies the stage functions of chain. Callers hold p.mu.
func funcs[F any](chain []stage[F]) []F {
	out := make([]F, len(chain))
	for i, s := range chain {
		out[i] = s.fn
	}
	return out
}

func (p *Pipeline) requestStages() []RequestInterceptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return funcs(p.request)
}

func (p *Pipeline) responseStages() []ResponseInterceptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return funcs(p.response)
}

func (p *Pipeline) errorStages() []ErrorInterceptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return funcs(p.errs)
}

// runRequest applies the request chain in registration order. It stops at the
// first stage error or when ctx is done.
func (p *Pipeline) runRequest(ctx context.Context, rc RequestConfig) (RequestConfig, error) {
	for _, fn := range p.requestStages() {
		var err error
		if rc, err = fn(ctx, rc); err != nil {
			return rc, err
		}
		if err := ctx.Err(); err != nil {
			return rc, err
		}
	}
	return rc, nil
}

// runResponse applies the response chain in registration order.
func (p *Pipeline) runResponse(ctx context.Context, resp *Response) (*Response, error) {
	for _, fn := range p.responseStages() {
		var err error
		if resp, err = fn(ctx, resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// runError applies the error chain in registration order. A stage returning
// nil keeps the previous error so the caller always receives a taxonomy error.
func (p *Pipeline) runError(ctx context.Context, err *apperr.Error) *apperr.Error {
	for _, fn := range p.errorStages() {
		if next := fn(ctx, err); next != nil {
			err = next
		}
	}
	return err
}
