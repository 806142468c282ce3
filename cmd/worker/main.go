package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dunamismax/variantflow/internal/app"
	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/telemetry"
	"github.com/dunamismax/variantflow/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	cfg.Log.ServiceName = "variantflow-worker"
	logging.Init(cfg.Log)
	logger := logging.L()

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Log.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, a.Handler, a.Sinks)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create worker")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Worker.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Int("max_active_jobs", cfg.Worker.MaxActiveJobs).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Msg("starting worker")

	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	if err := srv.Run(); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown failed")
	}
	if err := a.Close(); err != nil {
		logger.Warn().Err(err).Msg("release pipeline resources failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
	logger.Info().Msg("worker stopped")
}
