package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/api"
	"github.com/Priya8975/subscription-event-pipeline/internal/config"
	"github.com/Priya8975/subscription-event-pipeline/internal/engine"
	"github.com/Priya8975/subscription-event-pipeline/internal/processor"
	"github.com/Priya8975/subscription-event-pipeline/internal/scheduler"
	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	ws "github.com/Priya8975/subscription-event-pipeline/internal/websocket"
	"github.com/Priya8975/subscription-event-pipeline/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	// WebSocket hub for the live dashboard feed
	hub := ws.NewHub(logger)
	go hub.Run()

	// Processing pipeline
	proc := processor.New(pgStore, hub, logger, cfg.MaxRetries)
	locker := engine.NewLocker(redisStore.Client(), logger)

	// Dead letter retry pipeline
	retrier := worker.NewRetrier(proc, pgStore, hub, logger)
	pool := worker.NewPool(cfg.NumRetryWorkers, retrier, logger)
	pool.Start(ctx)

	retrySweeper := scheduler.NewRetrySweeper(pgStore, pool, locker, logger, cfg.DLQSweepInterval, cfg.DLQBatchSize)
	go retrySweeper.Start(ctx)

	retentionSweeper := scheduler.NewRetentionSweeper(pgStore, locker, logger, cfg.RetentionSweepInterval, cfg.RetentionWindow())
	go retentionSweeper.Start(ctx)

	// Setup router
	router := api.NewRouter(pgStore, proc, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop background work: sweepers first, then drain the pool
	cancel()
	pool.Stop()

	logger.Info("server stopped")
}
