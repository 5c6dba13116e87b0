// laserops-service is the HTTP API server for laser job dispatch.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"laserops/internal/api"
	"laserops/internal/config"
	"laserops/internal/health"
	"laserops/internal/job"
	"laserops/internal/machine"
	"laserops/internal/notify"
	"laserops/internal/observability"
	"laserops/internal/protocol"
	"laserops/internal/telemetry"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg := config.LoadServiceConfig()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise
	var (
		jobStore     job.Store
		machineStore machine.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, machine.Schema()); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, job.Schema()); err != nil {
			return err
		}
		jobStore = job.NewPostgresStore(db)
		machineStore = machine.NewPostgresStore(db)
		slog.Info("Connected to Postgres")
	} else {
		jobStore = job.NewMemoryStore()
		machineStore = machine.NewMemoryStore()
		slog.Warn("No POSTGRES_DSN configured, using in-memory stores")
	}

	// Lifecycle event notifier
	var notifier notify.Notifier = notify.Nop{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(notify.Config{
			URL:        cfg.WebhookURL,
			SigningKey: cfg.WebhookSigningKey,
		}, metrics)
	}

	// Protocol router serves both dispatch and machine probing
	router := protocol.NewRouter()
	registry := machine.NewRegistry(machineStore, router, notifier, metrics)

	jobService := job.NewService(jobStore, registry, router, notifier, metrics)

	healthChecker := health.NewChecker(jobStore)

	// Scheduled machine probing
	var probeCron *cron.Cron
	if cfg.ProbeSchedule != "" {
		probeCron = cron.New()
		if _, err := probeCron.AddFunc(cfg.ProbeSchedule, func() {
			registry.PingAll(context.Background())
		}); err != nil {
			return err
		}
		probeCron.Start()
		slog.Info("Machine probe loop started", "schedule", cfg.ProbeSchedule)
	}

	// Progress ingest over MQTT, with optional Influx archive
	var subscriber *telemetry.Subscriber
	if cfg.MQTTBroker != "" {
		var writer *telemetry.Writer
		if cfg.InfluxURL != "" {
			writer = telemetry.NewWriter(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
			defer writer.Close()
			if err := writer.Health(ctx); err != nil {
				slog.Warn("InfluxDB not reachable, archive writes may fail", "error", err)
			}
		}

		client, err := telemetry.NewClient(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword)
		if err != nil {
			return err
		}
		subscriber = telemetry.NewSubscriber(client, jobService, writer)
		if err := subscriber.Start(); err != nil {
			return err
		}
	}

	apiRouter := api.NewRouter(api.RouterConfig{
		JobService:      jobService,
		MachineRegistry: registry,
		Metrics:         metrics,
		HealthChecker:   healthChecker,
		APIKey:          cfg.APIKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      apiRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Stop ingest and the probe loop so no new work arrives
	if subscriber != nil {
		subscriber.Stop()
	}
	if probeCron != nil {
		cronCtx := probeCron.Stop()
		<-cronCtx.Done()
	}

	// Phase 3: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 4: Drain the event notifier
	slog.Info("Draining event notifier")
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifierCancel()
	if err := notifier.Close(notifierCtx); err != nil {
		slog.Warn("Notifier shutdown error", "error", err)
	}

	stats := notifier.Stats()
	slog.Info("Notifier stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}
