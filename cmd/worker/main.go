package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/pawhub/pawhub/internal/app"
	jobmetrics "github.com/pawhub/pawhub/internal/jobs"
	"github.com/pawhub/pawhub/internal/mail"
	"github.com/pawhub/pawhub/internal/platform/errutil"
	"github.com/pawhub/pawhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return err
	}
	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	repo, releaseRepo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		errutil.LogError(logger, "open user store", err)
		return err
	}
	defer releaseRepo()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	mailer, err := mail.NewQueueMailer(jobClient, app.MailConfig(cfg))
	if err != nil {
		return err
	}

	svc, err := app.NewAuthService(cfg, logger, app.AuthDeps{Repo: repo, Mailer: mailer})
	if err != nil {
		errutil.LogError(logger, "init auth service", err)
		return err
	}

	var deliverer jobs.Deliverer = mail.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		deliverer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	}

	registry, metrics := jobmetrics.NewRegistry()
	sendEmailJob := jobs.NewSendEmailJob(deliverer, logger, metrics)
	purgeJob := jobs.NewPurgeTokensJob(svc, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:       redisOpts,
		Logger:          logger,
		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: cfg.AppShutdownGrace,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: sendEmailJob.Handle},
			{Type: jobs.TaskTypePurgeTokens, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TokenPurgeCron, Task: jobs.NewPurgeTokensTask()},
		},
	})
	if err != nil {
		errutil.LogError(logger, "init worker", err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           jobmetrics.Handler(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("worker metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		errutil.LogError(logger, "worker run", err)
		return err
	}
	return nil
}
