package trigger

import (
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minioNotification = `{
  "EventName": "s3:ObjectCreated:Put",
  "Key": "media/uploaded/avatars/u1/my+photo%281%29.png",
  "Records": [{
    "eventVersion": "2.0",
    "eventSource": "minio:s3",
    "eventTime": "2025-03-01T10:11:12.000Z",
    "eventName": "s3:ObjectCreated:Put",
    "s3": {
      "bucket": {"name": "media"},
      "object": {
        "key": "uploaded%2Favatars%2Fu1%2Fmy+photo%281%29.png",
        "size": 2048,
        "contentType": "image/png",
        "sequencer": "1829E1BC3E51F2E4"
      }
    }
  }]
}`

func TestParseMinioNotification(t *testing.T) {
	ev, err := Parse([]byte(minioNotification))
	require.NoError(t, err)

	assert.Equal(t, "media", ev.Bucket)
	assert.Equal(t, "uploaded/avatars/u1/my photo(1).png", ev.Key)
	assert.Equal(t, "s3:ObjectCreated:Put", ev.EventName)
	assert.Equal(t, "1829E1BC3E51F2E4", ev.Sequencer)
	assert.Equal(t, int64(2048), ev.Size)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 11, 12, 0, time.UTC), ev.EventTime.UTC())
	assert.True(t, ev.IsObjectCreated())
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]byte(`{"Records": []}`))
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = Parse([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([]byte(`{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":"bad%zzkey"}}}]}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFromS3EventUsesFirstRecord(t *testing.T) {
	ev := events.S3Event{Records: []events.S3EventRecord{
		{EventName: "ObjectCreated:Put", S3: events.S3Entity{Bucket: events.S3Bucket{Name: "a"}, Object: events.S3Object{Key: "uploaded/avatars/u/x.jpg"}}},
		{EventName: "ObjectCreated:Put", S3: events.S3Entity{Bucket: events.S3Bucket{Name: "b"}, Object: events.S3Object{Key: "uploaded/avatars/u/y.jpg"}}},
	}}

	got, err := FromS3Event(ev)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Bucket)
	assert.Equal(t, "uploaded/avatars/u/x.jpg", got.Key)
}

func TestFromRecordKeepsMissingFieldsForValidation(t *testing.T) {
	got, err := FromRecord(events.S3EventRecord{})
	require.NoError(t, err)
	assert.Error(t, got.Validate())
}

func TestMatchesEventName(t *testing.T) {
	allowed := []string{"s3:ObjectCreated:Put", "s3:ObjectCreated:CompleteMultipartUpload"}
	assert.True(t, MatchesEventName("s3:ObjectCreated:Put", allowed))
	assert.False(t, MatchesEventName("s3:ObjectRemoved:Delete", allowed))
	assert.True(t, MatchesEventName("anything", nil))
}
