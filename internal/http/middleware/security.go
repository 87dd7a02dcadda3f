// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, the response hardening for the JSON
// API. No CSP is set because the API never serves HTML.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions selects the optional header groups.
//
// HSTS is sent only for HTTPS requests, and only when traffic is HTTPS end to
// end. HSTSMaxAge defaults to 180 days. ExposeHeaders lists response headers
// browser clients may read in addition to X-Request-ID.
type SecurityOptions struct {
	EnableHSTS    bool
	HSTSMaxAge    time.Duration
	NoStore       bool // Cache-Control: no-store plus legacy Pragma/Expires
	EnablePolicy  bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies
	ExposeHeaders []string
}

const (
	defaultHSTSMaxAge = 180 * 24 * time.Hour
	exposeHeader      = "Access-Control-Expose-Headers"
)

// SecurityHeaders always sets nosniff, frame denial and no-referrer. The
// optional groups follow opt. X-Request-ID, when already set, and
// ExposeHeaders are merged into Access-Control-Expose-Headers.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	fixed := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		fixed = append(fixed,
			[2]string{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			[2]string{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if opt.NoStore {
		fixed = append(fixed,
			[2]string{"Cache-Control", "no-store"},
			[2]string{"Pragma", "no-cache"},
			[2]string{"Expires", "0"},
		)
	}
	hsts := hstsValue(opt.HSTSMaxAge)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range fixed {
			h.Set(kv[0], kv[1])
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		expose := opt.ExposeHeaders
		if h.Get(requestIDHeader) != "" {
			expose = append([]string{requestIDHeader}, expose...)
		}
		if len(expose) > 0 {
			h.Set(exposeHeader, mergeHeaderList(h.Get(exposeHeader), expose))
		}
		c.Next()
	}
}

func hstsValue(maxAge time.Duration) string {
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	return "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"
}

// mergeHeaderList appends names missing from the comma-separated list cur,
// comparing case-insensitively.
func mergeHeaderList(cur string, names []string) string {
	seen := map[string]bool{}
	var out []string
	add := func(n string) {
		n = strings.TrimSpace(n)
		if n == "" || seen[strings.ToLower(n)] {
			return
		}
		seen[strings.ToLower(n)] = true
		out = append(out, n)
	}
	for _, p := range strings.Split(cur, ",") {
		add(p)
	}
	for _, n := range names {
		add(n)
	}
	return strings.Join(out, ", ")
}

// isHTTPS reports whether the request arrived over TLS, directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
