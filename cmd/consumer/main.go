package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/variantflow/internal/app"
	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/mq"
	"github.com/dunamismax/variantflow/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	cfg.Log.ServiceName = "variantflow-consumer"
	logging.Init(cfg.Log)
	l := logging.L()
	l.Info().Msg("consumer starting")

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:  cfg.Log.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, l)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to set up tracing")
	}

	a, err := app.New(context.Background(), cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to build pipeline")
	}

	consumer, err := mq.NewKafkaConsumer(mq.ConsumerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.ConsumerTopic,
		GroupID:          cfg.Kafka.ConsumerGroupID,
		EventNameFilters: cfg.Kafka.EventNameFilters,
	}, mq.TriggerHandlerFunc(func(ctx context.Context, ev domain.TriggerEvent) error {
		// Shutdown lets the current invocation finish. Failures are already
		// in the report and its sinks.
		a.Process(context.WithoutCancel(ctx), ev)
		return nil
	}))
	if err != nil {
		l.Fatal().Err(err).Msg("failed to init kafka consumer")
	}

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), l))

	if err := consumer.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start consumer")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.Info().Msg("shutting down: waiting for in-flight invocation to complete")
	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := consumer.Close(); err != nil {
			l.Warn().Err(err).Msg("consumer close failed")
		}
		if err := a.Close(); err != nil {
			l.Warn().Err(err).Msg("release pipeline resources failed")
		}
	}()

	select {
	case <-shutdownDone:
		l.Info().Msg("shutdown complete")
	case <-time.After(30 * time.Second):
		l.Warn().Msg("shutdown timed out after 30s")
	}

	tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tcancel()
	_ = shutdownTracing(tctx)
}
