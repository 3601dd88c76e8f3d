package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhub/pawhub/internal/auth"
)

func TestReadiness(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	tests := []struct {
		name   string
		checks map[string]ReadinessCheck
		status int
		report readinessReport
	}{
		{
			name:   "no checks",
			status: http.StatusOK,
			report: readinessReport{Status: "ready", Checks: map[string]string{}},
		},
		{
			name: "all healthy",
			checks: map[string]ReadinessCheck{
				"store": PingCheck(auth.NewMemoryRepository()),
				"redis": func(context.Context) error { return nil },
			},
			status: http.StatusOK,
			report: readinessReport{Status: "ready", Checks: map[string]string{"store": "ok", "redis": "ok"}},
		},
		{
			name: "redis down",
			checks: map[string]ReadinessCheck{
				"store": PingCheck(struct{}{}),
				"redis": func(context.Context) error { return errors.New("dial tcp 127.0.0.1:6379: connection refused") },
			},
			status: http.StatusServiceUnavailable,
			report: readinessReport{Status: "unavailable", Checks: map[string]string{"store": "ok", "redis": "unavailable"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterParams{Logger: logger, Config: &Config{}, Readiness: tt.checks})
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tt.status, rr.Code)
			var report readinessReport
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
			assert.Equal(t, tt.report, report)
			assert.NotContains(t, rr.Body.String(), "connection refused")
		})
	}
	assert.Contains(t, logs.String(), "check=redis")
}
