package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pawhub/pawhub/internal/jobs"
	"github.com/pawhub/pawhub/internal/platform/errutil"
)

// Deliverer hands a rendered email to a transport.
type Deliverer interface {
	Deliver(ctx context.Context, to, subject, body string) error
}

// SendEmailJob delivers queued transactional emails.
type SendEmailJob struct {
	Deliverer Deliverer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewSendEmailJob initialises the send-email handler.
func NewSendEmailJob(deliverer Deliverer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SendEmailJob {
	return &SendEmailJob{Deliverer: deliverer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Deliverer == nil {
		return errors.New("send email: handler not configured")
	}
	tracker := j.metrics().Track(TaskTypeSendEmail)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("send email: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.To) == "" {
		return fmt.Errorf("send email: missing recipient: %w", asynq.SkipRetry)
	}

	logger := j.logger().With(slog.String("template", payload.Template))
	err := j.Deliverer.Deliver(ctx, payload.To, payload.Subject, payload.Body)
	j.metrics().EmailDelivered(payload.Template, err)
	if err != nil {
		errutil.LogError(logger, "email delivery failed", err)
		return err
	}
	logger.Info("email delivered")
	return nil
}

func (j *SendEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeSendEmail))
	}
	return slog.Default().With(slog.String("job", TaskTypeSendEmail))
}

func (j *SendEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
