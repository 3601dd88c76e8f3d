package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/pawhub/pawhub/internal/platform/errutil"
)

const (
	defaultConcurrency     = 5
	defaultShutdownTimeout = 10 * time.Second
)

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration schedules Task on a cron expression. An empty Spec
// disables the entry.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig configures NewWorker. Zero values fall back to defaults.
type WorkerConfig struct {
	RedisOpts       asynq.RedisClientOpt
	Logger          *slog.Logger
	Concurrency     int
	ShutdownTimeout time.Duration
	Handlers        []TaskHandler
	Cron            []CronRegistration
}

// Worker processes queued tasks and, when cron entries exist, enqueues the
// periodic ones.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker validates the handler set and builds the server and scheduler.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	mux, err := newServeMux(cfg.Handlers)
	if err != nil {
		return nil, err
	}
	scheduler, err := newScheduler(cfg.RedisOpts, logger, cfg.Cron)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{QueueDefault: 1},
		ShutdownTimeout: shutdownTimeout,
		IsFailure:       isFailure,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			reportFinalFailure(ctx, logger, task, err)
		}),
		Logger:   newAsynqLogger(logger),
		LogLevel: asynq.WarnLevel,
	})
	return &Worker{server: server, mux: mux, scheduler: scheduler, logger: logger}, nil
}

func newServeMux(handlers []TaskHandler) (*asynq.ServeMux, error) {
	mux := asynq.NewServeMux()
	for _, h := range handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, errors.New("worker: task handler requires a type and a handler")
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return mux, nil
}

func newScheduler(opts asynq.RedisClientOpt, logger *slog.Logger, entries []CronRegistration) (*asynq.Scheduler, error) {
	var active []CronRegistration
	for _, entry := range entries {
		if entry.Task == nil {
			return nil, errors.New("worker: cron entry requires a task")
		}
		if entry.Spec == "" {
			logger.Info("cron entry disabled", slog.String("task", entry.Task.Type()))
			continue
		}
		active = append(active, entry)
	}
	if len(active) == 0 {
		return nil, nil
	}

	scheduler := asynq.NewScheduler(opts, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(logger),
		LogLevel: asynq.WarnLevel,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				errutil.LogError(logger, "scheduled enqueue failed", err)
				return
			}
			logger.Debug("scheduled task enqueued", slog.String("task", info.Type), slog.String("id", info.ID))
		},
	})
	for _, entry := range active {
		if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, oops.Code("WORKER_CRON_INVALID").
				With("task", entry.Task.Type(), "spec", entry.Spec).
				Wrap(err)
		}
	}
	return scheduler, nil
}

// Run processes tasks until ctx is cancelled, then stops the scheduler before
// draining in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return oops.Code("WORKER_START_FAILED").Wrap(err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return oops.Code("WORKER_START_FAILED").With("component", "scheduler").Wrap(err)
		}
	}
	w.logger.Info("worker started", slog.Bool("scheduler", w.scheduler != nil))

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// isFailure keeps SkipRetry results out of asynq's failure statistics.
func isFailure(err error) bool {
	return !errors.Is(err, asynq.SkipRetry)
}

// reportFinalFailure logs tasks that will not run again: dropped ones and
// those that used up their retries. Intermediate attempts are logged by the
// handlers themselves.
func reportFinalFailure(ctx context.Context, logger *slog.Logger, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	dropped := errors.Is(err, asynq.SkipRetry)
	if !dropped && retried < maxRetry {
		return
	}
	taskLogger := logger.With(
		slog.String("task", task.Type()),
		slog.String("attempts", fmt.Sprintf("%d/%d", retried+1, maxRetry+1)),
	)
	if id, ok := asynq.GetTaskID(ctx); ok {
		taskLogger = taskLogger.With(slog.String("task_id", id))
	}
	if dropped {
		taskLogger.Warn("task dropped", slog.Any("error", err))
		return
	}
	errutil.LogError(taskLogger, "task exhausted retries", err)
}
