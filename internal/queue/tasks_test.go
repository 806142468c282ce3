package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectCreatedTaskCarriesEvent(t *testing.T) {
	payload := ObjectCreatedPayload{
		EventID: "evt-1",
		Event: domain.TriggerEvent{
			Bucket:    "media",
			Key:       "uploaded/avatars/u1/me.png",
			EventName: "s3:ObjectCreated:Put",
			Sequencer: "1829E1BC3E51F2E4",
		},
		ReceivedAt: time.Now().UTC(),
	}

	task, err := NewObjectCreatedTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeObjectCreated, task.Type())

	parsed, err := ParseObjectCreatedPayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload.Event.Bucket, parsed.Event.Bucket)
	assert.Equal(t, payload.Event.Key, parsed.Event.Key)
	assert.Equal(t, "evt-1", parsed.EventID)
}
