// Package app builds the pipeline and its report sinks from configuration.
// Every runtime under cmd/ shares it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/mq"
	"github.com/dunamismax/variantflow/internal/pipeline"
	"github.com/dunamismax/variantflow/internal/report"
	"github.com/dunamismax/variantflow/internal/storage"
	"github.com/dunamismax/variantflow/internal/store"
	"github.com/dunamismax/variantflow/internal/webhook"
	"github.com/rs/zerolog"
)

type App struct {
	Handler *pipeline.Handler
	Sinks   *report.Fanout
	Reports store.ReportStore

	logger  zerolog.Logger
	closers []func() error
}

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

// New wires storage, the transformer, the variant table and every configured
// report sink. Close must be called to flush producers and release
// connections.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{logger: logger}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	if dst := cfg.Pipeline.DestinationBucket; dst != "" {
		if ensurer, ok := objects.(bucketEnsurer); ok {
			if err := ensurer.EnsureBucket(ctx, dst); err != nil {
				logger.Warn().Err(err).Str(logging.FieldBucket, dst).Msg("ensure destination bucket failed")
			}
		}
	}

	transformer, err := pipeline.NewTransformer(cfg.Pipeline.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("init transformer: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pipeline.Shutdown()
		return nil
	})

	table, err := cfg.Pipeline.VariantTable()
	if err != nil {
		return nil, fmt.Errorf("build variant table: %w", err)
	}

	a.Handler, err = pipeline.NewHandler(objects, transformer, table, cfg.Pipeline.KeyLayout(), pipeline.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init pipeline handler: %w", err)
	}

	if err := a.initSinks(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Int("classifications", table.Len()).
		Int("report_sinks", a.Sinks.Len()).
		Msg("pipeline ready")
	return a, nil
}

func (a *App) initSinks(ctx context.Context, cfg config.Config) error {
	a.Sinks = report.NewFanout(a.logger, cfg.Report.SinkTimeout)

	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresReportStore(ctx, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("init report store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.Reports = pg
	} else {
		a.Reports = store.NewMemoryReportStore()
	}
	a.Sinks.Add("store", report.SinkFunc(a.Reports.Save))

	if cfg.Webhook.URL != "" {
		client := webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		})
		a.Sinks.Add("webhook", webhook.NewNotifier(client, cfg.Webhook.URL))
	}

	if cfg.Kafka.ProducerTopic != "" {
		publisher, err := mq.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ProducerTopic)
		if err != nil {
			return fmt.Errorf("init kafka publisher: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		a.Sinks.Add("kafka", report.SinkFunc(publisher.PublishReport))
	}
	return nil
}

// Process runs one invocation and delivers its report to every sink.
func (a *App) Process(ctx context.Context, ev domain.TriggerEvent) domain.Report {
	r := a.Handler.Handle(ctx, ev)
	a.Sinks.Publish(ctx, r)
	return r
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
