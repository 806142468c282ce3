package domain

import (
	"errors"
	"strings"
	"time"
)

// TriggerEvent identifies the object whose creation started an invocation.
// Key is already URL-decoded.
type TriggerEvent struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	EventName string    `json:"event_name,omitempty"`
	Sequencer string    `json:"sequencer,omitempty"`
	Size      int64     `json:"size,omitempty"`
	EventTime time.Time `json:"event_time,omitempty"`
}

func (e TriggerEvent) Validate() error {
	if strings.TrimSpace(e.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("object key is required")
	}
	return nil
}

// IsObjectCreated reports whether the notification announces a new object.
// AWS sends "ObjectCreated:Put", MinIO sends "s3:ObjectCreated:Put"; an empty
// name comes from producers that only forward creations.
func (e TriggerEvent) IsObjectCreated() bool {
	if e.EventName == "" {
		return true
	}
	return strings.Contains(e.EventName, "ObjectCreated")
}
