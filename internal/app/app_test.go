package app

import (
	"context"
	"testing"

	"github.com/dunamismax/variantflow/internal/config"
	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)
	cfg.Storage.Type = storage.TypeMinio
	return cfg
}

func TestNewWiresDefaultSinks(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	require.NotNil(t, a.Handler)
	assert.Equal(t, 1, a.Sinks.Len())
	assert.NotNil(t, a.Reports)
}

func TestNewWithWebhookSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Webhook.URL = "http://127.0.0.1:1/hook"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, 2, a.Sinks.Len())
}

func TestProcessStoresSkippedReport(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	r := a.Process(context.Background(), domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.bmp"})
	assert.Equal(t, domain.StatusSkipped, r.Status)

	saved, ok, err := a.Reports.Get(context.Background(), r.InvocationID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.Reason, saved.Reason)
}

func TestNewRejectsUnknownStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "gcs"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
