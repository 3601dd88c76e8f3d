package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhub/pawhub/internal/observability"
	"github.com/pawhub/pawhub/jobs"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", "access-secret-value")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-value")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.EmailVerificationTTL)
	assert.Equal(t, time.Hour, cfg.PasswordResetTTL)
	assert.Equal(t, 7, cfg.LoginMaxFailures)
	assert.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			AppEnv:           "development",
			AppPublicURL:     "http://localhost:8080",
			StoreDriver:      StoreDriverMemory,
			JWTAccessSecret:  "a",
			JWTRefreshSecret: "b",
			AccessTokenTTL:   15 * time.Minute,
			RefreshTokenTTL:  time.Hour,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "shared secret", mutate: func(c *Config) { c.JWTRefreshSecret = c.JWTAccessSecret }},
		{name: "unknown store", mutate: func(c *Config) { c.StoreDriver = "sqlite" }},
		{name: "memory in production", mutate: func(c *Config) {
			c.AppEnv = "production"
			c.JWTAccessSecret = string(bytes.Repeat([]byte("a"), 32))
			c.JWTRefreshSecret = string(bytes.Repeat([]byte("b"), 32))
		}},
		{name: "short production secrets", mutate: func(c *Config) {
			c.AppEnv = "production"
			c.StoreDriver = StoreDriverPostgres
		}},
		{name: "access outlives refresh", mutate: func(c *Config) { c.AccessTokenTTL = 2 * time.Hour }},
		{name: "relative public url", mutate: func(c *Config) { c.AppPublicURL = "/app" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "test", LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "test", line["env"])
}

func TestRouterHealthAndFallbacks(t *testing.T) {
	cfg := &Config{AppEnv: "development", GlobalRateLimit: 100}
	router := NewRouter(RouterParams{
		Logger:     slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Config:     cfg,
		JobHandler: jobs.NewHandler(nil, nil),
		Metrics:    observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pawhub_http_requests_total")
}

func TestGlobalRateLimit(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{GlobalRateLimit: 2}})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
