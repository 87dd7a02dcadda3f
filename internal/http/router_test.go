package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/teamhub/internal/config"
	"github.com/tbourn/teamhub/internal/http/middleware"
	"github.com/tbourn/teamhub/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api",
		AuthTokenTTL:   time.Hour,
		BcryptCost:     4,
		MaxBodyBytes:   1 << 20,
		RateRPS:        100,
		RateBurst:      10,
		IdempotencyTTL: time.Hour,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), cfg)
	return r
}

func serve(r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func envelopeCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env middleware.ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", w.Body.String(), err)
	}
	if env.Success || env.RequestID == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	return env.Error.Code
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, testConfig())

	// /health works
	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "Retry-After") {
		t.Fatalf("expected Retry-After exposed, got %q", got)
	}

	// /metrics is wired
	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404 envelope
	w = serve(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound || envelopeCode(t, w) != "NOT_FOUND_ERROR" {
		t.Fatalf("GET /nope expected 404 envelope, got %d %s", w.Code, w.Body.String())
	}

	// NoMethod → 405 envelope (POST /health)
	w = serve(r, http.MethodPost, "/health", "", nil)
	if w.Code != http.StatusMethodNotAllowed || envelopeCode(t, w) != "VALIDATION_ERROR" {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r := newRouter(t, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_AuthRequired(t *testing.T) {
	r := newRouter(t, testConfig())

	for _, path := range []string{"/api/teams", "/api/users", "/api/teams/" + uuid.NewString()} {
		w := serve(r, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized || envelopeCode(t, w) != "AUTHENTICATION_ERROR" {
			t.Fatalf("GET %s expected 401 envelope, got %d %s", path, w.Code, w.Body.String())
		}
	}

	w := serve(r, http.MethodGet, "/api/teams", "", map[string]string{"Authorization": "Bearer " + strings.Repeat("a", 64)})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token expected 401, got %d", w.Code)
	}
}

func TestRegisterRoutes_RegisterLoginCreateTeam(t *testing.T) {
	r := newRouter(t, testConfig())

	w := serve(r, http.MethodPost, "/api/users", `{"email":"ada@example.com","name":"Ada","password":"password1"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"password1"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil || login.Data.Token == "" {
		t.Fatalf("login body: %s (%v)", w.Body.String(), err)
	}
	auth := map[string]string{"Authorization": "Bearer " + login.Data.Token}

	key := uuid.NewString()
	hdr := map[string]string{"Authorization": auth["Authorization"], middleware.HeaderIdempotencyKey: key}
	w1 := serve(r, http.MethodPost, "/api/teams", `{"name":"Platform"}`, hdr)
	w2 := serve(r, http.MethodPost, "/api/teams", `{"name":"Platform"}`, hdr)
	if w1.Code != http.StatusCreated || w2.Code != http.StatusCreated {
		t.Fatalf("create/replay = %d/%d %s", w1.Code, w2.Code, w2.Body.String())
	}
	if w2.Header().Get(middleware.HeaderIdempotentReplay) != "true" {
		t.Fatalf("expected replay header on second create")
	}

	w = serve(r, http.MethodGet, "/api/teams", "", auth)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Platform") || w.Header().Get("ETag") == "" {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/api/auth/logout", "", auth)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/teams", "", auth); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token expected 401, got %d", w.Code)
	}
}

func TestRegisterRoutes_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 32
	r := newRouter(t, cfg)

	body := `{"email":"a@example.com","name":"` + strings.Repeat("n", 64) + `","password":"password1"}`
	w := serve(r, http.MethodPost, "/api/users", body, nil)
	if w.Code != http.StatusRequestEntityTooLarge || envelopeCode(t, w) != "VALIDATION_ERROR" {
		t.Fatalf("expected 413 envelope, got %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	r := newRouter(t, cfg)

	body := `{"email":"x@example.com","password":"password1"}`
	_ = serve(r, http.MethodPost, "/api/auth/login", body, nil)
	w := serve(r, http.MethodPost, "/api/auth/login", body, nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", w.Code, w.Header())
	}
	if envelopeCode(t, w) != "BUSINESS_RULE_ERROR" {
		t.Fatalf("unexpected rate limit envelope: %s", w.Body.String())
	}
}

func TestRegisterRoutes_Gzip_And_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, got headers %v", w.Header())
	}

	w = serve(r, http.MethodGet, "/swagger/index.html", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/index.html = %d", w.Code)
	}

	off := newRouter(t, testConfig())
	if w := serve(off, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled by default, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, bytes.NewReader(nil)))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// Smoke test that a request traverses the otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	r := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"X-Request-ID": "rid-smoke"})
	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid != "rid-smoke" {
		t.Fatalf("expected propagated X-Request-ID, got %q", rid)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}
}
