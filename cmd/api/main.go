package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/variantflow/internal/api"
	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/dedupe"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/queue"
	"github.com/dunamismax/variantflow/internal/store"
	"github.com/dunamismax/variantflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	cfg.Log.ServiceName = "variantflow-api"
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

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), queue.Options{
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Timeout:  cfg.Queue.Timeout,
	})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("queue client close failed")
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	defer redisClient.Close()

	guard, err := dedupe.NewRedisGuard(redisClient, cfg.Dedupe.TTL, cfg.Dedupe.KeyPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create dedupe guard")
	}

	opts := api.Options{
		EventNameFilters: cfg.Kafka.EventNameFilters,
		AuthToken:        cfg.API.AuthToken,
		Guard:            guard,
	}
	if cfg.Database.DSN != "" {
		reports, err := store.NewPostgresReportStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open report store")
		}
		defer reports.Close()
		opts.Reports = reports
	}

	app := api.NewServer(logger, queueClient, opts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
}
