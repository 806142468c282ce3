package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the bucket or object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrTransient covers network and service faults. Retrying may succeed.
	ErrTransient = errors.New("transient storage error")
)

// Error carries the failed operation and object coordinates. Kind is one of
// the sentinels above and is matched by errors.Is.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s/%s: %v: %v", e.Op, e.Bucket, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s bucket %s: %v: %v", e.Op, e.Bucket, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func notFound(op, bucket, key string, err error) error {
	return &Error{Op: op, Bucket: bucket, Key: key, Kind: ErrNotFound, Err: err}
}

func transient(op, bucket, key string, err error) error {
	return &Error{Op: op, Bucket: bucket, Key: key, Kind: ErrTransient, Err: err}
}
