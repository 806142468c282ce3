package pipeline

import (
	"context"
	"fmt"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/storage"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// resizeTask renders and uploads one variant. Source is shared read-only
// between sibling tasks.
type resizeTask struct {
	source    []byte
	spec      domain.VariantSpec
	dimension domain.Dimension
	bucket    string
	key       string
}

func (t resizeTask) run(ctx context.Context, transformer Transformer, store ObjectStore, tracer trace.Tracer, logger zerolog.Logger) (domain.VariantResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.variant", trace.WithAttributes(
		attribute.String("variant.dimension", t.dimension.String()),
		attribute.String("variant.bucket", t.bucket),
		attribute.String("variant.key", t.key),
	))
	defer span.End()

	result := domain.VariantResult{
		Width:  t.dimension.Width,
		Height: t.dimension.Height,
		Bucket: t.bucket,
		Key:    t.key,
	}
	logger = logger.With().Str(logging.FieldDimension, t.dimension.String()).Logger()

	data, err := transformer.Resize(ctx, t.source, t.spec.Policy, t.dimension)
	if err != nil {
		// No upload for a variant that failed to render.
		verr := &VariantError{Dimension: t.dimension, Stage: StageResize, Err: err}
		return t.fail(span, result, verr)
	}
	logger.Debug().Int("bytes", len(data)).Msg("resized")

	if err := store.Store(ctx, t.bucket, t.key, data, storage.ContentTypeJPEG); err != nil {
		verr := &VariantError{
			Dimension: t.dimension,
			Stage:     StageStore,
			Key:       t.key,
			Err:       fmt.Errorf("%w: %w", ErrStore, err),
		}
		return t.fail(span, result, verr)
	}
	logger.Info().Str("variant_key", t.key).Int("bytes", len(data)).Msg("stored")

	result.Bytes = len(data)
	span.SetStatus(codes.Ok, "stored")
	return result, nil
}

func (t resizeTask) fail(span trace.Span, result domain.VariantResult, err error) (domain.VariantResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "variant failed")
	result.Error = err.Error()
	return result, err
}
