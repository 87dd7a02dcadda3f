// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, authentication, rate
// limiting, observability, and the outbound HTTP client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/teamhub/internal/httpclient"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "teamhub")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ClientConfig configures the outbound HTTP client used by teamctl and by
// any service-to-service calls.
type ClientConfig struct {
	BaseURL           string        // CLIENT_BASE_URL
	Timeout           time.Duration // CLIENT_TIMEOUT, per attempt
	MaxRetries        int           // CLIENT_MAX_RETRIES
	BaseDelay         time.Duration // CLIENT_BASE_DELAY
	Backoff           string        // CLIENT_BACKOFF: exponential|fixed
	MaxDelay          time.Duration // CLIENT_MAX_DELAY, 0 = uncapped
	CallDeadline      time.Duration // CLIENT_CALL_DEADLINE, 0 = none
	RetryableStatuses []int         // CLIENT_RETRYABLE_STATUSES (CSV)
}

// RetryStrategy converts the retry knobs into an httpclient.RetryStrategy.
func (c ClientConfig) RetryStrategy() httpclient.RetryStrategy {
	mode, ok := httpclient.ParseBackoffMode(c.Backoff)
	if !ok {
		mode = httpclient.BackoffExponential
	}
	return httpclient.RetryStrategy{
		MaxRetries:        c.MaxRetries,
		BaseDelay:         c.BaseDelay,
		Backoff:           mode,
		RetryableStatuses: httpclient.StatusSet(c.RetryableStatuses...),
		MaxDelay:          c.MaxDelay,
	}
}

// Options returns the httpclient options implied by c.
func (c ClientConfig) Options(log zerolog.Logger) []httpclient.Option {
	return []httpclient.Option{
		httpclient.WithTimeout(c.Timeout),
		httpclient.WithRetryStrategy(c.RetryStrategy()),
		httpclient.WithCallDeadline(c.CallDeadline),
		httpclient.WithLogger(log),
	}
}

// LoadClient reads only the CLIENT_* group. Command-line tools use it so they
// do not depend on server settings.
func LoadClient() (ClientConfig, error) {
	statuses, err := parseStatuses(getenv("CLIENT_RETRYABLE_STATUSES", ""))
	if err != nil {
		return ClientConfig{}, err
	}
	if statuses == nil {
		statuses = append([]int(nil), httpclient.DefaultRetryableStatuses...)
	}
	c := ClientConfig{
		BaseURL:           strings.TrimRight(getenv("CLIENT_BASE_URL", "http://localhost:8080"), "/"),
		Timeout:           getdur("CLIENT_TIMEOUT", httpclient.DefaultTimeout),
		MaxRetries:        getint("CLIENT_MAX_RETRIES", 3),
		BaseDelay:         getdur("CLIENT_BASE_DELAY", time.Second),
		Backoff:           strings.ToLower(getenv("CLIENT_BACKOFF", string(httpclient.BackoffExponential))),
		MaxDelay:          getdur("CLIENT_MAX_DELAY", 0),
		CallDeadline:      getdur("CLIENT_CALL_DEADLINE", 0),
		RetryableStatuses: statuses,
	}
	return c, c.validate()
}

func (c ClientConfig) validate() error {
	if c.BaseURL == "" {
		return errors.New("CLIENT_BASE_URL must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("CLIENT_TIMEOUT must be > 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("CLIENT_MAX_RETRIES must be >= 0")
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 || c.CallDeadline < 0 {
		return errors.New("CLIENT_BASE_DELAY, CLIENT_MAX_DELAY and CLIENT_CALL_DEADLINE must be >= 0")
	}
	if _, ok := httpclient.ParseBackoffMode(c.Backoff); !ok {
		return errors.New("CLIENT_BACKOFF must be one of: exponential, fixed")
	}
	return nil
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath       string        // SQLite path
	AuthTokenTTL time.Duration // lifetime of login sessions
	BcryptCost   int           // bcrypt work factor [4,31]
	MaxBodyBytes int64         // request body limit

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig

	// Outbound client
	Client ClientConfig
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// App
		DBPath:       getenv("DB_PATH", "teamhub.db"),
		AuthTokenTTL: getdur("AUTH_TOKEN_TTL", 24*time.Hour),
		BcryptCost:   getint("BCRYPT_COST", 10),
		MaxBodyBytes: int64(getint("MAX_BODY_BYTES", 1<<20)),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "teamhub"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	client, err := LoadClient()
	if err != nil {
		return cfg, err
	}
	cfg.Client = client

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	return cfg, cfg.validate()
}

// validate reports the first rule cfg breaks.
func (c Config) validate() error {
	rules := []struct {
		broken bool
		msg    string
	}{
		{!validLogLevel(c.LogLevel), "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{strings.TrimSpace(c.Port) == "", "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0, "timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{strings.TrimSpace(c.DBPath) == "", "DB_PATH must not be empty"},
		{c.AuthTokenTTL <= 0, "AUTH_TOKEN_TTL must be > 0"},
		{c.BcryptCost < 4 || c.BcryptCost > 31, "BCRYPT_COST must be between 4 and 31"},
		{c.MaxBodyBytes <= 0, "MAX_BODY_BYTES must be > 0"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, r := range rules {
		if r.broken {
			return errors.New(r.msg)
		}
	}
	return nil
}

func validLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error", "fatal", "panic":
		return true
	}
	return false
}

// lookup parses the value of k, falling back to def when k is unset, empty
// or unparsable.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getbool(k string, def bool) bool { return lookup(k, def, parseBool) }

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

// splitCSV trims each element and drops empty ones. It returns nil when
// nothing is left.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseStatuses parses a CSV of HTTP status codes. An empty string yields nil.
func parseStatuses(s string) ([]int, error) {
	var out []int
	for _, p := range splitCSV(s) {
		n, err := strconv.Atoi(p)
		if err != nil || n < 100 || n > 599 {
			return nil, fmt.Errorf("CLIENT_RETRYABLE_STATUSES: invalid status %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// normalizeBasePath returns a cleaned absolute path; blank input is root.
func normalizeBasePath(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}
