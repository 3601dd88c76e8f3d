package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesWorkerMetrics(t *testing.T) {
	reg, m := NewRegistry()
	_ = m.Track("auth:purge_tokens").End(errors.New("db down"))
	m.EmailDelivered("verification", nil)
	m.AddPurgedTokens(2)

	h := Handler(reg)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, `pawhub_jobs_failures_total{job="auth:purge_tokens"} 1`)
	assert.Contains(t, body, `pawhub_jobs_total{job="auth:purge_tokens",status="failure"} 1`)
	assert.Contains(t, body, `pawhub_emails_delivered_total{status="success",template="verification"} 1`)
	assert.Contains(t, body, `pawhub_auth_tokens_purged_total 2`)
	assert.Contains(t, body, "go_goroutines")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
