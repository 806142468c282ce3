package store

import (
	"context"

	"github.com/dunamismax/variantflow/internal/domain"
)

// ReportStore keeps the terminal report of each invocation. Saving a report
// for an existing invocation id replaces it.
type ReportStore interface {
	Save(ctx context.Context, report domain.Report) error
	Get(ctx context.Context, invocationID string) (domain.Report, bool, error)
	ListByKey(ctx context.Context, bucket, key string, limit int) ([]domain.Report, error)
}
