package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/pipeline"
	"github.com/dunamismax/variantflow/internal/queue"
	"github.com/dunamismax/variantflow/internal/storage"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	report domain.Report
	got    []domain.TriggerEvent
}

func (h *stubHandler) Handle(_ context.Context, ev domain.TriggerEvent) domain.Report {
	h.got = append(h.got, ev)
	r := h.report
	r.Bucket, r.Key = ev.Bucket, ev.Key
	return r
}

type captureSinks struct {
	reports []domain.Report
	failed  int
}

func (c *captureSinks) Publish(_ context.Context, r domain.Report) int {
	c.reports = append(c.reports, r)
	return c.failed
}

func objectCreatedTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := queue.NewObjectCreatedTask(queue.ObjectCreatedPayload{
		EventID: "evt-1",
		Event:   domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.png"},
	})
	require.NoError(t, err)
	return task
}

func TestHandleObjectCreatedRunsPipelineAndPublishes(t *testing.T) {
	start := time.Now()
	h := &stubHandler{report: domain.Report{
		InvocationID:   "inv-1",
		Classification: "avatars",
		Status:         domain.StatusSucceeded,
		SourceBytes:    1000,
		StartedAt:      start,
		FinishedAt:     start.Add(40 * time.Millisecond),
		Variants: []domain.VariantResult{
			{Width: 24, Height: 24, Bytes: 300},
			{Width: 48, Height: 48, Bytes: 400},
		},
	}}
	sinks := &captureSinks{failed: 1}
	s := newServer(zerolog.Nop(), config.WorkerConfig{MaxActiveJobs: 1}, h, sinks)

	require.NoError(t, s.handleObjectCreated(context.Background(), objectCreatedTask(t)))

	require.Len(t, h.got, 1)
	assert.Equal(t, "uploaded/avatars/u1/me.png", h.got[0].Key)
	require.Len(t, sinks.reports, 1)
	assert.Equal(t, "inv-1", sinks.reports[0].InvocationID)

	assert.Equal(t, 1.0, gatheredValue(t, s.metrics, "variantflow_worker_invocations_total", "status", domain.StatusSucceeded))
	assert.Equal(t, 2.0, gatheredValue(t, s.metrics, "variantflow_worker_variants_total", "outcome", "stored"))
	assert.Equal(t, 700.0, gatheredValue(t, s.metrics, "variantflow_worker_variant_bytes_total", "", ""))
	assert.Equal(t, 1.0, gatheredValue(t, s.metrics, "variantflow_worker_report_delivery_failures_total", "", ""))
	assert.Equal(t, 0.0, gatheredValue(t, s.metrics, "variantflow_worker_active_invocations", "", ""))
}

func TestHandleObjectCreatedRejectsBadPayload(t *testing.T) {
	s := newServer(zerolog.Nop(), config.WorkerConfig{}, &stubHandler{}, nil)

	err := s.handleObjectCreated(context.Background(), asynq.NewTask(queue.TypeObjectCreated, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleObjectCreatedRetriesTransientFailures(t *testing.T) {
	h := &stubHandler{report: domain.Report{
		Status: domain.StatusFailed,
		Reason: "variant 24x24 store: timeout",
		Err:    errors.Join(&pipeline.VariantError{Dimension: domain.Square(24), Stage: pipeline.StageStore, Err: pipeline.ErrStore}),
	}}
	s := newServer(zerolog.Nop(), config.WorkerConfig{}, h, nil)

	err := s.handleObjectCreated(context.Background(), objectCreatedTask(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestRetryDecision(t *testing.T) {
	transform := &pipeline.VariantError{Dimension: domain.Square(24), Stage: pipeline.StageResize, Err: pipeline.ErrTransform}
	store := &pipeline.VariantError{Dimension: domain.Square(48), Stage: pipeline.StageStore, Err: pipeline.ErrStore}

	tests := []struct {
		name      string
		report    domain.Report
		wantErr   bool
		skipRetry bool
	}{
		{"succeeded", domain.Report{Status: domain.StatusSucceeded}, false, false},
		{"skipped", domain.Report{Status: domain.StatusSkipped, Reason: "bmp"}, false, false},
		{"unknown classification", domain.Report{Status: domain.StatusFailed, Err: fmt.Errorf("%w: %q", pipeline.ErrUnknownClassification, "x")}, true, true},
		{"source missing", domain.Report{Status: domain.StatusFailed, Err: fmt.Errorf("%w b/k: %w", pipeline.ErrFetch, storage.ErrNotFound)}, true, true},
		{"transient fetch", domain.Report{Status: domain.StatusFailed, Err: fmt.Errorf("%w b/k: %w", pipeline.ErrFetch, storage.ErrTransient)}, true, false},
		{"only resize failures", domain.Report{Status: domain.StatusFailed, Err: errors.Join(transform, transform)}, true, true},
		{"mixed failures", domain.Report{Status: domain.StatusFailed, Err: errors.Join(transform, store)}, true, false},
		{"reason only", domain.Report{Status: domain.StatusFailed, Reason: "boom"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := retryDecision(tt.report)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

// gatheredValue returns the counter or gauge value of the series in family
// name that carries label=value, or the first series when label is empty.
func gatheredValue(t *testing.T, m *metrics, name, label, value string) float64 {
	t.Helper()
	families, err := m.registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" && !hasLabel(metric.GetLabel(), label, value) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func hasLabel[L interface {
	GetName() string
	GetValue() string
}](pairs []L, name, value string) bool {
	for _, p := range pairs {
		if p.GetName() == name && p.GetValue() == value {
			return true
		}
	}
	return false
}
