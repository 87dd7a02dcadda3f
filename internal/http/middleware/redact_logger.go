// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger mounted by the
// router. It never logs bodies. Session tokens, UUIDs, emails and phone
// numbers are replaced wherever they appear in the query string or header
// values. Credential headers and credential-named query parameters are
// masked outright. It also stores the request-scoped logger read by
// LoggerFrom, so it must run before Recovery.
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// RedactOptions adds to the built-in masks. Names are case-insensitive.
type RedactOptions struct {
	// MaskHeaders are header names whose values are replaced entirely.
	MaskHeaders []string
	// MaskParams are query parameter names whose values are replaced entirely.
	MaskParams []string
}

// scrubRules run in order; the phone pattern is the loosest, so it runs last
// and never sees digit runs that belong to a token or UUID.
var scrubRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{64}\b`), "[REDACTED:token]"},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

type redactor struct {
	headers map[string]struct{}
	params  map[string]struct{}
}

func newRedactor(opts RedactOptions) redactor {
	r := redactor{
		headers: lowerSet("Authorization", "Cookie", "Set-Cookie", HeaderIdempotencyKey),
		params:  lowerSet("password", "token", "access_token"),
	}
	for _, h := range opts.MaskHeaders {
		addLower(r.headers, h)
	}
	for _, p := range opts.MaskParams {
		addLower(r.params, p)
	}
	return r
}

func lowerSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		addLower(m, n)
	}
	return m
}

func addLower(m map[string]struct{}, name string) {
	if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
		m[name] = struct{}{}
	}
}

func (redactor) scrub(s string) string {
	for _, r := range scrubRules {
		if s == "" {
			break
		}
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// query masks credential parameters by name and scrubs the rest. A query
// that does not parse is scrubbed as a single string.
func (r redactor) query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.scrub(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		masked := false
		if _, ok := r.params[strings.ToLower(k)]; ok {
			masked = true
		}
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(r.scrub(k))
			b.WriteByte('=')
			if masked {
				b.WriteString(redacted)
			} else {
				b.WriteString(r.scrub(v))
			}
		}
	}
	return b.String()
}

func (r redactor) headerDict(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := r.headers[strings.ToLower(k)]; ok {
			d.Str(k, redacted)
			continue
		}
		d.Str(k, r.scrub(strings.Join(vv, ", ")))
	}
	return d
}

// RedactingLogger logs one line per request at info, warn for 4xx and error
// for 5xx, with user, error code, scrubbed query and headers.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		query := truncate(red.query(c.Request.URL.RawQuery), maxQueryLogLength)
		headers := red.headerDict(c.Request.Header)

		reqID := RequestIDFrom(c)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		scoped := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &scoped)

		c.Next()

		status := c.Writer.Status()
		ev := statusEvent(&scoped, status)
		if code := lastErrorCode(c); code != "" {
			ev = ev.Str("error_code", code)
		}
		ev.Str("user_id", UserIDFrom(c)).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headers).
			Msg("http_request")
	}
}
