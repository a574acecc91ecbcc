/**
 * @description
 * This is the main entry point for the bundl controller service.
 * It initializes and wires together all the components of the application:
 * configuration, database connection, token ledger client, event producer,
 * trigger lock, the authorization engine, the HTTP router, and the cron
 * scheduler that periodically triggers due bundles. Finally, it starts the
 * HTTP server and waits for a termination signal.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/BlockApex/bundl-controller-service/internal/api"
	"github.com/BlockApex/bundl-controller-service/internal/app"
	"github.com/BlockApex/bundl-controller-service/internal/config"
	"github.com/BlockApex/bundl-controller-service/internal/store"
	"github.com/BlockApex/bundl-controller-service/pkg/ledgerclient"
	"github.com/BlockApex/bundl-controller-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up channel to listen for OS signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Use simple protocol so the service works behind PgBouncer transaction pooling
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Token ledger client
	ledger := ledgerclient.NewClient(cfg.LedgerServiceURL, cfg.LedgerAPIKey)

	// Event producer; fall back to a no-op publisher so trigger execution
	// never depends on the broker being up.
	var events rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events will be dropped", "error", err)
			events = &rabbitmq.EventProducerFallback{}
		} else {
			events = producer
			defer producer.Close()
		}
	} else {
		events = &rabbitmq.EventProducerFallback{}
	}

	// Per-bundle trigger lock; only needed when multiple instances run
	var lock app.TriggerLock = app.NoopTriggerLock{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		lock = app.NewRedisTriggerLock(redis.NewClient(opts), "bundl:trigger_lock", 30*time.Second)
		logger.Info("redis trigger lock enabled")
	}

	// Initialize application layers
	repository := store.NewPostgresRepository(dbpool)
	gate := app.NewAuthorityGate(cfg.TriggerAuthorities)
	service := app.NewService(repository, ledger, gate, lock, events, logger)
	jobs := app.NewJobs(repository, service, cfg.SchedulerAuthority, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.TriggerScanSchedule)
	handler := api.NewHandler(service, jobs)
	router := api.NewRouter(handler, cfg.JWKSURL, cfg.InternalAPIKey)

	// Start the cron scheduler in the background
	scheduler.Start()
	logger.Info("scheduler started", "authority", cfg.SchedulerAuthority)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	// Stop the scheduler and wait for running jobs to finish
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped")

	// Create a context with a timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Attempt to gracefully shut down the server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
