package httpclient

import (
	"context"
	"net/http"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/result"
)

// Send executes rc and decodes the envelope data into T. A decode failure is
// an internal error carrying the transport status and runs through the error
// chain like any other final failure.
func Send[T any](ctx context.Context, c *Client, rc RequestConfig) Result[T] {
	var out T
	res := c.execute(ctx, rc, func(resp *Response) error {
		if err := resp.Decode(&out); err != nil {
			return apperr.Internal("Failed to decode response data", map[string]any{apperr.MetaKind: "decode"}).
				WithStatus(resp.Status).
				WithCause(err)
		}
		return nil
	})
	return result.Map(res, func(*Response) T { return out })
}

// Get issues GET path.
func Get[T any](ctx context.Context, c *Client, path string, rc *RequestConfig) Result[T] {
	return Send[T](ctx, c, withVerb(rc, http.MethodGet, path, nil))
}

// Post issues POST path with body.
func Post[T any](ctx context.Context, c *Client, path string, body any, rc *RequestConfig) Result[T] {
	return Send[T](ctx, c, withVerb(rc, http.MethodPost, path, body))
}

// Put issues PUT path with body.
func Put[T any](ctx context.Context, c *Client, path string, body any, rc *RequestConfig) Result[T] {
	return Send[T](ctx, c, withVerb(rc, http.MethodPut, path, body))
}

// Delete issues DELETE path.
func Delete[T any](ctx context.Context, c *Client, path string, rc *RequestConfig) Result[T] {
	return Send[T](ctx, c, withVerb(rc, http.MethodDelete, path, nil))
}

func withVerb(rc *RequestConfig, method, path string, body any) RequestConfig {
	var out RequestConfig
	if rc != nil {
		out = *rc
	}
	out.Method = method
	out.Path = path
	if body != nil {
		out.Body = body
	}
	return out
}
