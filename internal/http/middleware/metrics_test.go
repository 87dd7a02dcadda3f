package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/teamhub/internal/apperr"
)

func TestMetrics_RouteLabelsAndSizes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newHTTPMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.handler())
	r.POST("/teams/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.NoRoute(func(c *gin.Context) { AbortWithError(c, apperr.NotFound("route not found", nil)) })

	send := func(method, path, body string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}
	if code := send(http.MethodPost, "/teams/abc", `{"name":"x"}`); code != http.StatusOK {
		t.Fatalf("POST /teams/abc = %d", code)
	}
	if code := send(http.MethodGet, "/nope/1", ""); code != http.StatusNotFound {
		t.Fatalf("GET /nope/1 = %d", code)
	}
	send(http.MethodGet, "/nope/2", "")
	send(http.MethodGet, "/empty", "")

	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "/teams/:id", "200")); got != 1 {
		t.Fatalf("route-labelled counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", unmatchedRoute, "404")); got != 2 {
		t.Fatalf("unmatched counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}
	// One request body was observed; the 204 wrote nothing.
	if n := testutil.CollectAndCount(m.reqSize); n != 1 {
		t.Fatalf("request size series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(m.respSize); n != 2 {
		t.Fatalf("response size series = %d, want 2 (route + unmatched)", n)
	}
}

func TestMetrics_DefaultRegistryAndErrorCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/gone", func(c *gin.Context) { AbortWithError(c, apperr.NotFound("gone", nil)) })

	baseReq := testutil.ToFloat64(serverMetrics.requests.WithLabelValues("GET", "/gone", "404"))
	baseErr := testutil.ToFloat64(apiErrors.WithLabelValues("NOT_FOUND_ERROR"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/gone", nil))

	if got := testutil.ToFloat64(serverMetrics.requests.WithLabelValues("GET", "/gone", "404")); got != baseReq+1 {
		t.Fatalf("requests = %v, want %v", got, baseReq+1)
	}
	if got := testutil.ToFloat64(apiErrors.WithLabelValues("NOT_FOUND_ERROR")); got != baseErr+1 {
		t.Fatalf("api errors = %v, want %v", got, baseErr+1)
	}
}
