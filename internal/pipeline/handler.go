package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/id"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ObjectStore is the blob storage the handler reads sources from and writes
// variants to. storage.MinioStore and storage.S3Store satisfy it.
type ObjectStore interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	Store(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Handler processes one object-created notification per Handle call. It keeps
// no per-invocation state, so a single Handler serves concurrent invocations.
type Handler struct {
	store       ObjectStore
	transformer Transformer
	table       domain.VariantTable
	layout      KeyLayout
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Handler)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) {
		if tracer != nil {
			h.tracer = tracer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(store ObjectStore, transformer Transformer, table domain.VariantTable, layout KeyLayout, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if transformer == nil {
		return nil, errors.New("transformer is required")
	}
	if table.Len() == 0 {
		return nil, errors.New("variant table is empty")
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("key layout: %w", err)
	}

	h := &Handler{
		store:       store,
		transformer: transformer,
		table:       table,
		layout:      layout,
		logger:      logging.L(),
		tracer:      otel.Tracer("variantflow/pipeline"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle runs one invocation to its terminal report. It returns only after
// every dispatched variant has recorded its outcome.
func (h *Handler) Handle(ctx context.Context, ev domain.TriggerEvent) domain.Report {
	report := domain.Report{
		InvocationID: invocationID(ev),
		Bucket:       ev.Bucket,
		Key:          ev.Key,
		StartedAt:    h.now().UTC(),
	}

	ctx, span := h.tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("invocation.id", report.InvocationID),
		attribute.String("object.bucket", ev.Bucket),
		attribute.String("object.key", ev.Key),
	))
	defer span.End()

	logger := h.logger.With().
		Str(logging.FieldInvocationID, report.InvocationID).
		Str(logging.FieldBucket, ev.Bucket).
		Str(logging.FieldKey, ev.Key).
		Logger()

	report = h.run(ctx, ev, report, logger)
	report.FinishedAt = h.now().UTC()

	span.SetAttributes(attribute.String("invocation.status", report.Status))
	switch report.Status {
	case domain.StatusFailed:
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, report.Reason)
		logger.Error().Err(report.Err).Str(logging.FieldStatus, report.Status).Dur("duration", report.Duration()).Msg("invocation failed")
	case domain.StatusSkipped:
		span.SetStatus(codes.Ok, "skipped")
		logger.Info().Str(logging.FieldStatus, report.Status).Str("reason", report.Reason).Msg("invocation skipped")
	default:
		span.SetStatus(codes.Ok, "succeeded")
		logger.Info().Str(logging.FieldStatus, report.Status).Int("variants", len(report.Variants)).Dur("duration", report.Duration()).Msg("invocation succeeded")
	}
	return report
}

func (h *Handler) run(ctx context.Context, ev domain.TriggerEvent, report domain.Report, logger zerolog.Logger) domain.Report {
	if err := ev.Validate(); err != nil {
		return skip(report, "invalid trigger: "+err.Error())
	}
	if !ev.IsObjectCreated() {
		return skip(report, fmt.Sprintf("event %q is not an object creation", ev.EventName))
	}

	src, reason := h.layout.Parse(ev.Key)
	if reason != "" {
		return skip(report, reason)
	}
	report.Classification = src.Classification
	logger = logger.With().Str(logging.FieldClassification, src.Classification).Logger()

	spec, err := h.table.Lookup(src.Classification)
	if err != nil {
		return fail(report, err)
	}

	source, err := h.store.Fetch(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return fail(report, fmt.Errorf("%w %s/%s: %w", ErrFetch, ev.Bucket, ev.Key, err))
	}
	report.SourceBytes = len(source)
	logger.Debug().Int("bytes", len(source)).Int("variants", len(spec.Dimensions)).Msg("fetched source")

	bucket := h.layout.OutputBucket(ev.Bucket)
	tasks := make([]resizeTask, len(spec.Dimensions))
	for i, d := range spec.Dimensions {
		tasks[i] = resizeTask{
			source:    source,
			spec:      spec,
			dimension: d,
			bucket:    bucket,
			key:       h.layout.OutputKey(src, spec, d),
		}
	}

	barrier, err := NewBarrier(len(tasks), logger)
	if err != nil {
		return fail(report, err)
	}
	done := make(chan Aggregate, 1)
	if err := barrier.OnComplete(func(agg Aggregate) { done <- agg }); err != nil {
		return fail(report, err)
	}

	results := make([]domain.VariantResult, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := task.run(ctx, h.transformer, h.store, h.tracer, logger)
			results[i] = result

			outcome := Success()
			if err != nil {
				outcome = Failure(err)
			}
			if rerr := barrier.Record(outcome); rerr != nil {
				logger.Error().Err(rerr).Msg("record variant outcome")
			}
		}()
	}

	agg := <-done
	// Record is the last thing each task does; waiting makes results safe to read.
	wg.Wait()

	report.Variants = results
	if !agg.Failed() {
		report.Status = domain.StatusSucceeded
		return report
	}

	report.Status = domain.StatusFailed
	report.Err = errors.Join(agg.Failures...)
	report.Reason = agg.First.Error()
	if len(agg.Failures) > 1 {
		report.Reason = fmt.Sprintf("%d of %d variants failed; first: %v", len(agg.Failures), agg.Total, agg.First)
	}
	return report
}

func skip(r domain.Report, reason string) domain.Report {
	r.Status = domain.StatusSkipped
	r.Reason = reason
	return r
}

func fail(r domain.Report, err error) domain.Report {
	r.Status = domain.StatusFailed
	r.Reason = err.Error()
	r.Err = err
	return r
}

func invocationID(ev domain.TriggerEvent) string {
	if ev.Sequencer != "" {
		return id.FromEvent(ev.Bucket, ev.Key, ev.Sequencer)
	}
	return id.New()
}
