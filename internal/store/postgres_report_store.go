package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dunamismax/variantflow/internal/domain"
	_ "github.com/lib/pq"
)

const reportSchemaSQL = `
CREATE TABLE IF NOT EXISTS variant_reports (
	invocation_id TEXT PRIMARY KEY,
	bucket TEXT NOT NULL,
	object_key TEXT NOT NULL,
	classification TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	source_bytes BIGINT NOT NULL DEFAULT 0,
	variants JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS variant_reports_object_idx ON variant_reports (bucket, object_key, finished_at DESC);
`

const reportColumns = `invocation_id, bucket, object_key, classification, status, reason, source_bytes, variants, started_at, finished_at`

type PostgresReportStore struct {
	db *sql.DB
}

func NewPostgresReportStore(ctx context.Context, dsn string) (*PostgresReportStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresReportStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresReportStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, reportSchemaSQL); err != nil {
		return fmt.Errorf("ensure variant_reports schema: %w", err)
	}
	return nil
}

func (s *PostgresReportStore) Close() error {
	return s.db.Close()
}

func (s *PostgresReportStore) Save(ctx context.Context, report domain.Report) error {
	variantsJSON, err := marshalVariants(report.Variants)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO variant_reports (`+reportColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (invocation_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			classification = EXCLUDED.classification,
			source_bytes = EXCLUDED.source_bytes,
			variants = EXCLUDED.variants,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		report.InvocationID,
		report.Bucket,
		report.Key,
		report.Classification,
		report.Status,
		report.Reason,
		report.SourceBytes,
		variantsJSON,
		report.StartedAt,
		report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}

	return nil
}

func (s *PostgresReportStore) Get(ctx context.Context, invocationID string) (domain.Report, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reportColumns+`
		 FROM variant_reports
		 WHERE invocation_id = $1`,
		invocationID,
	)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, fmt.Errorf("query report: %w", err)
	}
	return report, true, nil
}

func (s *PostgresReportStore) ListByKey(ctx context.Context, bucket, key string, limit int) ([]domain.Report, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reportColumns+`
		 FROM variant_reports
		 WHERE bucket = $1 AND object_key = $2
		 ORDER BY finished_at DESC
		 LIMIT $3`,
		bucket,
		key,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (domain.Report, error) {
	var (
		report       domain.Report
		variantsJSON []byte
	)
	if err := row.Scan(
		&report.InvocationID,
		&report.Bucket,
		&report.Key,
		&report.Classification,
		&report.Status,
		&report.Reason,
		&report.SourceBytes,
		&variantsJSON,
		&report.StartedAt,
		&report.FinishedAt,
	); err != nil {
		return domain.Report{}, err
	}

	if err := json.Unmarshal(variantsJSON, &report.Variants); err != nil {
		return domain.Report{}, fmt.Errorf("unmarshal report variants: %w", err)
	}
	return report, nil
}

func marshalVariants(variants []domain.VariantResult) ([]byte, error) {
	if variants == nil {
		variants = []domain.VariantResult{}
	}
	data, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("marshal report variants: %w", err)
	}
	return data, nil
}
