package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(attempts int) Config {
	return Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}
}

func TestSendAddsSigningHeaders(t *testing.T) {
	var (
		gotSig  string
		gotTS   string
		gotEvt  string
		gotBody []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(testConfig(1))
	err := client.Send(context.Background(), srv.URL, EventSucceeded, map[string]any{"invocation_id": "inv-1"})
	require.NoError(t, err)

	require.NotEmpty(t, gotTS)
	assert.Equal(t, EventSucceeded, gotEvt)

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(gotTS + "."))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewClient(testConfig(3)).Send(context.Background(), srv.URL, EventFailed, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(testConfig(2)).Send(context.Background(), srv.URL, EventFailed, map[string]any{})
	assert.ErrorContains(t, err, "status=500")
}

func TestNotifierPublishesReport(t *testing.T) {
	var (
		gotEvt      string
		gotDelivery string
		got         domain.Report
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvt = r.Header.Get(HeaderEvent)
		gotDelivery = r.Header.Get(HeaderDelivery)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(NewClient(testConfig(1)), srv.URL)
	report := domain.Report{
		InvocationID: "inv-9",
		Bucket:       "media",
		Key:          "uploaded/avatars/u1/me.png",
		Status:       domain.StatusFailed,
		Reason:       "variant 64x64 store: boom",
	}
	require.NoError(t, n.Publish(context.Background(), report))

	assert.Equal(t, EventFailed, gotEvt)
	assert.Equal(t, "inv-9", gotDelivery)
	assert.Equal(t, report.Reason, got.Reason)
	assert.Equal(t, report.Key, got.Key)
}

func TestNotifierWithoutEndpointIsNoop(t *testing.T) {
	n := NewNotifier(NewClient(testConfig(1)), " ")
	assert.NoError(t, n.Publish(context.Background(), domain.Report{Status: domain.StatusSucceeded}))
}

func TestEventName(t *testing.T) {
	assert.Equal(t, EventSucceeded, EventName(domain.StatusSucceeded))
	assert.Equal(t, EventSkipped, EventName(domain.StatusSkipped))
	assert.Equal(t, EventFailed, EventName(domain.StatusFailed))
}
