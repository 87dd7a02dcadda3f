package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/teamhub/internal/apperr"
)

type fakeAuth map[string]string

func (f fakeAuth) Authenticate(_ context.Context, token string) (string, error) {
	if uid, ok := f[token]; ok {
		return uid, nil
	}
	return "", apperr.Authentication("session is invalid or expired", nil)
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]string{
		"":               "",
		"Bearer":         "",
		"Bearer ":        "",
		"Basic abc":      "",
		"Bearer abc":     "abc",
		"bearer   abc  ": "abc",
		"BEARER tok-123": "tok-123",
	}
	for hdr, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			c.Request.Header.Set("Authorization", hdr)
		}
		if got := BearerToken(c); got != want {
			t.Errorf("BearerToken(%q) = %q; want %q", hdr, got, want)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireAuth(fakeAuth{"good": "u1"}))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, UserIDFrom(c)) })

	do := func(auth string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("Bearer good"); w.Code != http.StatusOK || w.Body.String() != "u1" {
		t.Fatalf("valid token: %d %q", w.Code, w.Body.String())
	}
	for _, hdr := range []string{"", "Bearer bad"} {
		w := do(hdr)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", hdr, w.Code)
		}
		var body ErrorEnvelope
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error.Code != "AUTHENTICATION_ERROR" {
			t.Fatalf("%q: unexpected body %s (%v)", hdr, w.Body.String(), err)
		}
	}
}
