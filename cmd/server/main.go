package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crmkit/webhook-notifier/internal/api"
	"github.com/crmkit/webhook-notifier/internal/bus"
	"github.com/crmkit/webhook-notifier/internal/config"
	"github.com/crmkit/webhook-notifier/internal/engine"
	"github.com/crmkit/webhook-notifier/internal/store"
	ws "github.com/crmkit/webhook-notifier/internal/websocket"
	"github.com/crmkit/webhook-notifier/internal/worker"
	"github.com/crmkit/webhook-notifier/migrations"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis (attempt leases)
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to parse redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// WebSocket hub for the live delivery feed
	hub := ws.NewHub(logger)
	go hub.Run()

	// Delivery pipeline: executor -> pool <- engine (fan-out) + scheduler
	policy := worker.DefaultRetryPolicy()
	lock := engine.NewAttemptLock(redisClient, 30*time.Second, logger)
	executor := worker.NewExecutor(pgStore, pgStore, lock, policy, hub, logger)
	pool := worker.NewPool(cfg.NumWorkers, executor, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	pool.Start(workerCtx)

	scheduler := worker.NewScheduler(pgStore, pool, cfg.SweepInterval, cfg.SweepBatchSize, logger)
	go scheduler.Start(workerCtx)

	// Event bus + delivery engine
	eventBus := bus.New(logger)
	deliveryEngine := engine.New(pgStore, pgStore, pool, policy.MaxAttempts, logger)
	if err := deliveryEngine.Register(eventBus); err != nil {
		logger.Error("failed to register delivery engine", "error", err)
		os.Exit(1)
	}

	// Setup router
	router := api.NewRouter(pgStore, eventBus, hub)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	stopWorkers()
	pool.Stop()

	logger.Info("server stopped")
}
