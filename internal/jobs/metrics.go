package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pawhub"

// Run outcomes recorded in the status label of pawhub_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusDropped marks tasks rejected with asynq.SkipRetry. They are not
	// retried and do not count as failures.
	StatusDropped = "dropped"
)

// Metrics holds the worker's collectors.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	emails     *prometheus.CounterVec
	purgedRows prometheus.Counter
}

var (
	sharedOnce sync.Once
	shared     *Metrics
)

// NewMetrics registers the collectors on reg. A nil reg returns a process-wide
// instance registered on the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg != nil {
		return register(reg)
	}
	sharedOnce.Do(func() { shared = register(prometheus.DefaultRegisterer) })
	return shared
}

// Tracker times one task execution.
type Tracker struct {
	m       *Metrics
	task    string
	started time.Time
}

// Track starts timing a run of the given task type. Safe on a nil receiver.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{m: m, task: task, started: time.Now()}
}

// End records the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil || t.task == "" {
		return err
	}
	status := Status(err)
	if status == StatusFailure {
		t.m.failures.WithLabelValues(t.task).Inc()
	}
	t.m.runs.WithLabelValues(t.task, status).Inc()
	t.m.duration.WithLabelValues(t.task).Observe(time.Since(t.started).Seconds())
	return err
}

// Status classifies a handler result.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusDropped
	default:
		return StatusFailure
	}
}

// EmailDelivered counts a delivery attempt for one email template.
func (m *Metrics) EmailDelivered(template string, err error) {
	if m == nil {
		return
	}
	if template == "" {
		template = "unknown"
	}
	m.emails.WithLabelValues(template, Status(err)).Inc()
}

// AddPurgedTokens counts expired one-time tokens cleared by the purge job.
func (m *Metrics) AddPurgedTokens(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purgedRows.Add(float64(n))
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Task executions by task type and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failures_total",
			Help:      "Task executions that failed and will be retried.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Task execution time in seconds.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_delivered_total",
			Help:      "Transactional email delivery attempts by template and status.",
		}, []string{"template", "status"}),
		purgedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_tokens_purged_total",
			Help:      "Expired reset and verification tokens cleared by the purge job.",
		}),
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.emails, m.purgedRows)
	return m
}
