// Package trigger turns S3 and MinIO bucket notifications into the
// domain.TriggerEvent the pipeline consumes.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dunamismax/variantflow/internal/domain"
)

var (
	ErrNoRecords = errors.New("notification has no records")
	ErrMalformed = errors.New("malformed notification")
)

// Parse decodes a notification body. AWS and MinIO share the Records
// envelope, so both are read through events.S3Event.
func Parse(body []byte) (domain.TriggerEvent, error) {
	var ev events.S3Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.TriggerEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromS3Event(ev)
}

// FromS3Event takes the first record. Notifications for object creation
// carry exactly one.
func FromS3Event(ev events.S3Event) (domain.TriggerEvent, error) {
	if len(ev.Records) == 0 {
		return domain.TriggerEvent{}, ErrNoRecords
	}
	return FromRecord(ev.Records[0])
}

func FromRecord(rec events.S3EventRecord) (domain.TriggerEvent, error) {
	// Keys arrive form-encoded: spaces as '+', other bytes percent-escaped.
	key, err := url.QueryUnescape(rec.S3.Object.Key)
	if err != nil {
		return domain.TriggerEvent{}, fmt.Errorf("%w: decode key %q: %v", ErrMalformed, rec.S3.Object.Key, err)
	}

	return domain.TriggerEvent{
		Bucket:    rec.S3.Bucket.Name,
		Key:       key,
		EventName: rec.EventName,
		Sequencer: rec.S3.Object.Sequencer,
		Size:      rec.S3.Object.Size,
		EventTime: rec.EventTime,
	}, nil
}

// MatchesEventName reports whether name is in allowed. An empty allow list
// accepts every name.
func MatchesEventName(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}
