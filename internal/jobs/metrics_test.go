package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("mail:send").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("mail:send").End(boom), boom)
	dropped := fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	assert.ErrorIs(t, m.Track("mail:send").End(dropped), asynq.SkipRetry)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", StatusDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("mail:send")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	err := errors.New("x")
	assert.Equal(t, err, m.Track("job").End(err))
	m.AddPurgedTokens(3)
	m.EmailDelivered("verification", nil)
}

func TestAddPurgedTokens(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddPurgedTokens(0)
	m.AddPurgedTokens(-2)
	m.AddPurgedTokens(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.purgedRows))
}

func TestEmailDelivered(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.EmailDelivered("verification", nil)
	m.EmailDelivered("password_reset", errors.New("smtp down"))
	m.EmailDelivered("", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("verification", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("password_reset", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("unknown", StatusSuccess)))
}
