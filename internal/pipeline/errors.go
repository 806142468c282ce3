package pipeline

import (
	"errors"
	"fmt"

	"github.com/dunamismax/variantflow/internal/domain"
)

var (
	ErrUnknownClassification = domain.ErrUnknownClassification
	ErrFetch                 = errors.New("fetch source object")
	ErrTransform             = errors.New("transform failed")
	ErrStore                 = errors.New("store variant")

	// ErrBarrierProtocol marks programmer errors in barrier usage.
	ErrBarrierProtocol   = errors.New("barrier protocol violation")
	ErrInvalidCount      = fmt.Errorf("%w: expected count must be positive", ErrBarrierProtocol)
	ErrAlreadyRegistered = fmt.Errorf("%w: completion handler already registered", ErrBarrierProtocol)
	ErrOutcomeOverflow   = fmt.Errorf("%w: more outcomes recorded than expected", ErrBarrierProtocol)
)

const (
	StageResize = "resize"
	StageStore  = "store"
)

// VariantError is the failure outcome of one variant. It names the
// dimension, the stage that failed and, for store failures, the target key.
type VariantError struct {
	Dimension domain.Dimension
	Stage     string
	Key       string
	Err       error
}

func (e *VariantError) Error() string {
	if e.Stage == StageStore && e.Key != "" {
		return fmt.Sprintf("variant %s %s %s: %v", e.Dimension, e.Stage, e.Key, e.Err)
	}
	return fmt.Sprintf("variant %s %s: %v", e.Dimension, e.Stage, e.Err)
}

func (e *VariantError) Unwrap() error {
	return e.Err
}
