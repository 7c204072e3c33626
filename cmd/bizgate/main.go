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
	"github.com/redis/go-redis/v9"

	"github.com/bizgate/bizgate/internal/app"
	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/customers"
	"github.com/bizgate/bizgate/internal/items"
	"github.com/bizgate/bizgate/internal/observability"
	"github.com/bizgate/bizgate/internal/orders"
	"github.com/bizgate/bizgate/internal/platform/cache"
	"github.com/bizgate/bizgate/internal/platform/db"
	"github.com/bizgate/bizgate/internal/platform/storage"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// The API keeps serving without Redis; rule lookups then go to Postgres.
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var objects storage.ObjectStore = storage.Disabled{}
	if cfg.MinioEndpoint != "" {
		store, err := storage.NewMinio(ctx, cfg.StorageConfig())
		if err != nil {
			logger.Error("connect object storage", slog.Any("error", err))
			os.Exit(1)
		}
		objects = store
	} else {
		logger.Warn("MINIO_ENDPOINT not set, image uploads disabled")
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer inspector.Close()
	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer jobClient.Close()

	container, err := app.NewContainer(cfg, logger, app.Dependencies{
		AuthRepo:     auth.NewRepository(dbpool),
		RuleRepo:     rbac.NewRepository(dbpool),
		CustomerRepo: customers.NewRepository(dbpool),
		ItemRepo:     items.NewRepository(dbpool),
		OrderRepo:    orders.NewRepository(dbpool),
		Redis:        redisClient,
		Objects:      objects,
		Inspector:    inspector,
		Sweeper:      jobClient,
		Metrics:      observability.NewMetrics(),
	})
	if err != nil {
		logger.Error("build application", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      container.Handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("prefix", cfg.APIPrefix))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
