package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pawhub/pawhub/internal/jobs"
)

// TokenPurger clears expired one-time tokens and reports how many were cleared.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// PurgeTokensJob runs the periodic expired token cleanup.
type PurgeTokensJob struct {
	Purger  TokenPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPurgeTokensJob initialises the purge handler.
func NewPurgeTokensJob(purger TokenPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeTokensJob {
	return &PurgeTokensJob{
		Purger:  purger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *PurgeTokensJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("purge tokens: handler not configured")
	}

	start := j.now()
	tracker := j.metrics().Track(TaskTypePurgeTokens)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	cleared, err := j.Purger.PurgeExpiredTokens(ctx)
	if err != nil {
		resultErr = err
		logger.Error("purge failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurgedTokens(cleared)

	logger.Info("completed token purge",
		slog.Int64("cleared", cleared),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *PurgeTokensJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypePurgeTokens))
	}
	return slog.Default().With(slog.String("job", TaskTypePurgeTokens))
}

func (j *PurgeTokensJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *PurgeTokensJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
