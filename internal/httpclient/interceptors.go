// Package httpclient – standard interceptors
//
// Ready-made stages for the common cross-cutting concerns: bearer auth,
// request IDs, trace propagation, client-side rate limiting and error logging.
// Each is an ordinary interceptor and can be ejected like any other.
package httpclient

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/tbourn/teamhub/internal/apperr"
)

// TokenSource yields the current bearer token. An empty token means
// "not signed in" and leaves the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) { return tok, nil })
}

// BearerAuth sets Authorization: Bearer <token> unless the call already
// carries an Authorization header. A TokenSource failure is an
// authentication error.
func BearerAuth(ts TokenSource) RequestInterceptor {
	return func(ctx context.Context, rc RequestConfig) (RequestConfig, error) {
		if ts == nil || rc.Header(HeaderAuthorization) != "" {
			return rc, nil
		}
		tok, err := ts.Token(ctx)
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				return rc, ae
			}
			return rc, apperr.Authentication("Unable to obtain access token", nil).WithCause(err)
		}
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return rc, nil
		}
		return rc.WithHeader(HeaderAuthorization, "Bearer "+tok), nil
	}
}

// RequestID sets X-Request-ID to the logical call ID unless already present.
// Retries of one call share the ID so server logs correlate.
func RequestID() RequestInterceptor {
	return func(ctx context.Context, rc RequestConfig) (RequestConfig, error) {
		if rc.Header(HeaderRequestID) != "" {
			return rc, nil
		}
		id := CallID(ctx)
		if id == "" {
			return rc, nil
		}
		return rc.WithHeader(HeaderRequestID, id), nil
	}
}

// TracePropagation injects the active span context (W3C traceparent by
// default) using the global OpenTelemetry propagator.
func TracePropagation() RequestInterceptor {
	return func(ctx context.Context, rc RequestConfig) (RequestConfig, error) {
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		for k, v := range carrier {
			rc = rc.WithHeader(k, v)
		}
		return rc, nil
	}
}

// RateLimit waits on l before every attempt. The wait honours ctx, so a
// canceled call does not linger in the limiter.
func RateLimit(l *rate.Limiter) RequestInterceptor {
	return func(ctx context.Context, rc RequestConfig) (RequestConfig, error) {
		if l == nil {
			return rc, nil
		}
		if err := l.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return rc, ctx.Err()
			}
			return rc, apperr.Internal("Client rate limit exceeded", map[string]any{apperr.MetaKind: "ratelimit"}).WithCause(err)
		}
		return rc, nil
	}
}

// CorrelationEnricher records the call ID under requestId on the final error
// so it matches the X-Request-ID header the RequestID stage sent.
func CorrelationEnricher() ErrorInterceptor {
	return func(ctx context.Context, err *apperr.Error) *apperr.Error {
		id := CallID(ctx)
		if id == "" {
			return err
		}
		if _, ok := err.Meta(apperr.MetaRequestID); ok {
			return err
		}
		return err.WithField(apperr.MetaRequestID, id)
	}
}

// LogErrors logs every final failure at the level its severity implies.
func LogErrors(l zerolog.Logger) ErrorInterceptor {
	return func(ctx context.Context, err *apperr.Error) *apperr.Error {
		l.WithLevel(err.LogLevel()).
			Str("call_id", CallID(ctx)).
			Object("error", err).
			Msg("http call failed")
		return err
	}
}
