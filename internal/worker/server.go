package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/pipeline"
	"github.com/dunamismax/variantflow/internal/queue"
	"github.com/dunamismax/variantflow/internal/storage"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger  zerolog.Logger
	server  *asynq.Server
	sem     chan struct{}
	handler invocationHandler
	sinks   reportPublisher
	metrics *metrics
	tracer  trace.Tracer
}

type invocationHandler interface {
	Handle(ctx context.Context, ev domain.TriggerEvent) domain.Report
}

// reportPublisher returns how many sinks failed. report.Fanout implements it.
type reportPublisher interface {
	Publish(ctx context.Context, report domain.Report) int
}

func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	handler invocationHandler,
	sinks reportPublisher,
) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("pipeline handler is required")
	}

	s := newServer(logger, workerCfg, handler, sinks)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn().
					Err(err).
					Str("task_type", task.Type()).
					Int("retry", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
	return s, nil
}

func newServer(logger zerolog.Logger, workerCfg config.WorkerConfig, handler invocationHandler, sinks reportPublisher) *Server {
	return &Server{
		logger:  logger,
		sem:     make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		handler: handler,
		sinks:   sinks,
		metrics: newMetrics(),
		tracer:  otel.Tracer("variantflow/worker"),
	}
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeObjectCreated, s.handleObjectCreated)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleObjectCreated(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseObjectCreatedPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.object_created", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("event.id", payload.EventID),
		attribute.String("object.bucket", payload.Event.Bucket),
		attribute.String("object.key", payload.Event.Key),
	)
	defer span.End()

	s.sem <- struct{}{}
	s.metrics.activeInvocations.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeInvocations.Dec()
	}()

	logger := s.logger.With().Str("event_id", payload.EventID).Logger()
	ctx = logging.WithLogger(ctx, logger)

	report := s.handler.Handle(ctx, payload.Event)
	s.metrics.observe(report)

	if s.sinks != nil {
		if failed := s.sinks.Publish(ctx, report); failed > 0 {
			s.metrics.reportFailuresTotal.Add(float64(failed))
		}
	}

	err = retryDecision(report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, report.Reason)
		return err
	}
	span.SetStatus(codes.Ok, report.Status)
	return nil
}

// retryDecision maps a terminal report to the asynq result. Failures that a
// retry cannot fix are marked SkipRetry; the rest are retried by asynq, which
// is safe because variant writes overwrite.
func retryDecision(report domain.Report) error {
	if !report.Failed() {
		return nil
	}

	err := report.Err
	if err == nil {
		err = errors.New(report.Reason)
	}

	switch {
	case errors.Is(err, pipeline.ErrUnknownClassification),
		storage.IsNotFound(err),
		onlyTransformFailures(err):
		return fmt.Errorf("%s: %w: %w", report.Reason, err, asynq.SkipRetry)
	default:
		return fmt.Errorf("invocation %s failed: %w", report.InvocationID, err)
	}
}

// onlyTransformFailures reports whether every joined failure is a resize
// error. Those come from the source bytes, which a retry would refetch
// unchanged.
func onlyTransformFailures(err error) bool {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return errors.Is(err, pipeline.ErrTransform)
	}
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, pipeline.ErrTransform) {
			return false
		}
	}
	return true
}
