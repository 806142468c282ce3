package main

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/dunamismax/variantflow/internal/app"
	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/trigger"
)

var pipelineApp *app.App

func init() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	cfg.Log.ServiceName = "variantflow-lambda"
	logging.Init(cfg.Log)

	pipelineApp, err = app.New(context.Background(), cfg, logging.L())
	if err != nil {
		l := logging.L()
		l.Fatal().Err(err).Msg("failed to build pipeline")
	}
}

func main() {
	lambda.Start(handler)
}

// handler processes the first record of an S3 notification. Skips succeed;
// a failed report is returned as the invocation error.
func handler(ctx context.Context, event events.S3Event) (domain.Report, error) {
	logger := logging.L()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With().Str("aws_request_id", lc.AwsRequestID).Logger()
	}
	ctx = logging.WithLogger(ctx, logger)

	ev, err := trigger.FromS3Event(event)
	if errors.Is(err, trigger.ErrNoRecords) {
		logger.Info().Msg("notification has no records")
		return domain.Report{Status: domain.StatusSkipped, Reason: err.Error()}, nil
	}
	if err != nil {
		return domain.Report{}, err
	}
	if len(event.Records) > 1 {
		logger.Warn().Int("records", len(event.Records)).Msg("only the first record is processed")
	}

	report := pipelineApp.Process(ctx, ev)
	if report.Failed() {
		return report, errors.New(report.Reason)
	}
	return report, nil
}
