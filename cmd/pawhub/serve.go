package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pawhub/pawhub/internal/app"
	"github.com/pawhub/pawhub/internal/auth"
	"github.com/pawhub/pawhub/internal/mail"
	"github.com/pawhub/pawhub/internal/observability"
	"github.com/pawhub/pawhub/internal/platform/cache"
	"github.com/pawhub/pawhub/internal/platform/errutil"
	"github.com/pawhub/pawhub/jobs"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.InTestMode() {
				cmd.Println("test mode detected, skipping server startup")
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	repo, releaseRepo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		errutil.LogError(logger, "open user store", err)
		return err
	}
	defer releaseRepo()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		errutil.LogError(logger, "connect redis", err)
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()

	mailer, err := mail.NewQueueMailer(jobClient, app.MailConfig(cfg))
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	svc, err := app.NewAuthService(cfg, logger, app.AuthDeps{
		Repo:     repo,
		Mailer:   mailer,
		Throttle: auth.NewRedisThrottle(redisClient, cfg.LoginMaxFailures, cfg.LoginLockout),
		Recorder: metrics,
	})
	if err != nil {
		errutil.LogError(logger, "init auth service", err)
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		AuthHandler: auth.NewHandler(logger, svc, auth.RateLimit{
			Requests: cfg.AuthRateLimit,
			Window:   cfg.AuthRateWindow,
		}),
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    metrics,
		Readiness: map[string]app.ReadinessCheck{
			"store": app.PingCheck(repo),
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.AppShutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		if err := svc.Drain(shutdownCtx); err != nil {
			logger.Warn("pending email dispatches abandoned", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		return err
	}
	logger.Info("http server stopped")
	return nil
}
