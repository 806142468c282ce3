package id

import "github.com/google/uuid"

// New returns a random invocation id.
func New() string {
	return uuid.NewString()
}

// FromEvent derives a stable id for a storage notification, so duplicate
// deliveries of the same event map to the same id.
func FromEvent(bucket, key, sequencer string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(bucket+"/"+key+"#"+sequencer)).String()
}
