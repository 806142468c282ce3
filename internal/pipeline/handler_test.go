package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	source    []byte
	fetchErr  error
	storeErrs map[string]error
	fetches   int
	attempts  []string
	objects   map[string][]byte
	types     map[string]string
}

func newFakeStore(source []byte) *fakeStore {
	return &fakeStore{
		source:    source,
		storeErrs: map[string]error{},
		objects:   map[string][]byte{},
		types:     map[string]string{},
	}
}

func (f *fakeStore) Fetch(_ context.Context, _, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.source, nil
}

func (f *fakeStore) Store(_ context.Context, bucket, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, bucket+"/"+key)
	if err := f.storeErrs[key]; err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	f.types[bucket+"/"+key] = contentType
	return nil
}

func (f *fakeStore) storedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fakeTransformer returns "WxH" as the rendered bytes and fails the listed
// dimensions.
type fakeTransformer struct {
	fail map[domain.Dimension]error
}

func (f fakeTransformer) Resize(_ context.Context, _ []byte, _ string, dim domain.Dimension) ([]byte, error) {
	if err := f.fail[dim]; err != nil {
		return nil, err
	}
	return []byte(dim.String()), nil
}

func newTestHandler(t *testing.T, store ObjectStore, tr Transformer, layout KeyLayout) *Handler {
	t.Helper()
	if layout.UploadMarker == "" {
		layout = KeyLayout{UploadMarker: "uploaded", OutputPrefix: "generated"}
	}
	h, err := NewHandler(store, tr, domain.DefaultVariantTable(), layout, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return h
}

func TestHandleAvatarUploadWritesEveryVariant(t *testing.T) {
	store := newFakeStore([]byte("png"))
	h := newTestHandler(t, store, fakeTransformer{}, KeyLayout{})

	report := h.Handle(context.Background(), domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.png"})

	require.Equal(t, domain.StatusSucceeded, report.Status, report.Reason)
	assert.Equal(t, "avatars", report.Classification)
	assert.Equal(t, 3, report.SourceBytes)
	assert.Equal(t, []string{
		"media/generated/u1/128x128.jpg",
		"media/generated/u1/24x24.jpg",
		"media/generated/u1/48x48.jpg",
		"media/generated/u1/64x64.jpg",
		"media/generated/u1/96x96.jpg",
	}, store.storedKeys())
	assert.Equal(t, []byte("48x48"), store.objects["media/generated/u1/48x48.jpg"])
	assert.Equal(t, storage.ContentTypeJPEG, store.types["media/generated/u1/24x24.jpg"])

	require.Len(t, report.Variants, 5)
	assert.Equal(t, "generated/u1/24x24.jpg", report.Variants[0].Key)
	for _, v := range report.Variants {
		assert.True(t, v.Succeeded())
	}
	assert.NotEmpty(t, report.InvocationID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestHandleSquareNamingAndDestinationBucket(t *testing.T) {
	store := newFakeStore([]byte("img"))
	layout := KeyLayout{UploadMarker: "uploaded", OutputPrefix: "generated", DestinationBucket: "thumbs"}
	h := newTestHandler(t, store, fakeTransformer{}, layout)

	report := h.Handle(context.Background(), domain.TriggerEvent{Bucket: "media", Key: "uploaded/content/post/42/hero.jpeg"})

	require.Equal(t, domain.StatusSucceeded, report.Status, report.Reason)
	assert.Len(t, store.storedKeys(), 6)
	assert.Contains(t, store.objects, "thumbs/generated/post/42/640.jpeg")
}

func TestHandleSingleVariantFailure(t *testing.T) {
	store := newFakeStore([]byte("png"))
	store.storeErrs["generated/u1/64x64.jpg"] = errors.New("connection reset")
	h := newTestHandler(t, store, fakeTransformer{}, KeyLayout{})

	report := h.Handle(context.Background(), domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.png"})

	require.Equal(t, domain.StatusFailed, report.Status)
	assert.Contains(t, report.Reason, "64x64")
	assert.Contains(t, report.Reason, "connection reset")
	assert.ErrorIs(t, report.Err, ErrStore)

	var verr *VariantError
	require.ErrorAs(t, report.Err, &verr)
	assert.Equal(t, domain.Square(64), verr.Dimension)
	assert.Equal(t, StageStore, verr.Stage)

	// siblings still ran to completion
	assert.Len(t, store.attempts, 5)
	assert.Len(t, store.storedKeys(), 4)
}

func TestHandleResizeFailureSkipsThatUpload(t *testing.T) {
	store := newFakeStore([]byte("png"))
	tr := fakeTransformer{fail: map[domain.Dimension]error{
		domain.Square(24):  fmt.Errorf("%w: corrupt", ErrTransform),
		domain.Square(128): fmt.Errorf("%w: corrupt", ErrTransform),
	}}
	h := newTestHandler(t, store, tr, KeyLayout{})

	report := h.Handle(context.Background(), domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.png"})

	require.Equal(t, domain.StatusFailed, report.Status)
	assert.Contains(t, report.Reason, "2 of 5 variants failed")
	assert.ErrorIs(t, report.Err, ErrTransform)
	assert.Len(t, store.attempts, 3)
	assert.NotContains(t, store.attempts, "media/generated/u1/24x24.jpg")

	failed := 0
	for _, v := range report.Variants {
		if !v.Succeeded() {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
}

func TestHandleUnknownClassificationDoesNotFetch(t *testing.T) {
	store := newFakeStore([]byte("png"))
	h := newTestHandler(t, store, fakeTransformer{}, KeyLayout{})

	report := h.Handle(context.Background(), domain.TriggerEvent{Bucket: "media", Key: "uploaded/unknown_type/u1/me.png"})

	assert.Equal(t, domain.StatusFailed, report.Status)
	assert.ErrorIs(t, report.Err, ErrUnknownClassification)
	assert.Contains(t, report.Reason, "unknown_type")
	assert.Equal(t, 0, store.fetches)
	assert.Empty(t, store.attempts)
}

func TestHandleFetchFailure(t *testing.T) {
	store := newFakeStore(nil)
	store.fetchErr = fmt.Errorf("get object: %w", storage.ErrNotFound)
	h := newTestHandler(t, store, fakeTransformer{}, KeyLayout{})

	report := h.Handle(context.Background(), domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.png"})

	assert.Equal(t, domain.StatusFailed, report.Status)
	assert.ErrorIs(t, report.Err, ErrFetch)
	assert.ErrorIs(t, report.Err, storage.ErrNotFound)
	assert.Contains(t, report.Reason, "media/uploaded/avatars/u1/me.png")
	assert.Empty(t, store.attempts)
}

func TestHandleSkips(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.TriggerEvent
	}{
		{"bmp extension", domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.bmp"}},
		{"wrong marker", domain.TriggerEvent{Bucket: "media", Key: "generated/avatars/u1/me.png"}},
		{"missing bucket", domain.TriggerEvent{Key: "uploaded/avatars/u1/me.png"}},
		{"missing key", domain.TriggerEvent{Bucket: "media"}},
		{"object removed", domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.png", EventName: "s3:ObjectRemoved:Delete"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore([]byte("png"))
			h := newTestHandler(t, store, fakeTransformer{}, KeyLayout{})

			report := h.Handle(context.Background(), tt.ev)
			assert.Equal(t, domain.StatusSkipped, report.Status)
			assert.NotEmpty(t, report.Reason)
			assert.NoError(t, report.Err)
			assert.Equal(t, 0, store.fetches)
			assert.Empty(t, store.attempts)
		})
	}
}

func TestHandleDerivesStableInvocationIDFromSequencer(t *testing.T) {
	store := newFakeStore([]byte("png"))
	h := newTestHandler(t, store, fakeTransformer{}, KeyLayout{})
	ev := domain.TriggerEvent{Bucket: "media", Key: "uploaded/avatars/u1/me.gif", Sequencer: "0055AED6DCD90281E5"}

	first := h.Handle(context.Background(), ev)
	second := h.Handle(context.Background(), ev)
	assert.Equal(t, first.InvocationID, second.InvocationID)
}

func TestNewHandlerValidatesDependencies(t *testing.T) {
	layout := KeyLayout{UploadMarker: "uploaded", OutputPrefix: "generated"}
	table := domain.DefaultVariantTable()

	_, err := NewHandler(nil, fakeTransformer{}, table, layout)
	assert.Error(t, err)
	_, err = NewHandler(newFakeStore(nil), nil, table, layout)
	assert.Error(t, err)
	_, err = NewHandler(newFakeStore(nil), fakeTransformer{}, domain.VariantTable{}, layout)
	assert.Error(t, err)
	_, err = NewHandler(newFakeStore(nil), fakeTransformer{}, table, KeyLayout{UploadMarker: "uploaded", OutputPrefix: "uploaded"})
	assert.Error(t, err)
}
