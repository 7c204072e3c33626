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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/bizgate/bizgate/internal/app"
	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/observability"
	"github.com/bizgate/bizgate/internal/platform/db"
	"github.com/bizgate/bizgate/internal/token"
	"github.com/bizgate/bizgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	tokens, err := token.NewService(cfg.TokenConfig())
	if err != nil {
		logger.Error("init token service", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(pool), tokens, logger)

	metrics := observability.NewWorkerMetrics()
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := newMetricsServer(cfg.WorkerMetricsAddr, metrics)
		go func() {
			logger.Info("worker metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	sweepJob := jobs.NewRefreshSweepJob(authService, logger, metrics.Jobs())
	sweepTask, err := jobs.NewRefreshSweepTask("cron")
	if err != nil {
		logger.Error("build refresh sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRefreshSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RefreshSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("refresh_sweep_cron", cfg.RefreshSweepCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func newMetricsServer(addr string, metrics *observability.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}
