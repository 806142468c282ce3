package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Outcome is the result of one dispatched task. A nil Err is success.
type Outcome struct {
	Err error
}

func Success() Outcome {
	return Outcome{}
}

func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("task failed without a reason")
	}
	return Outcome{Err: err}
}

// Aggregate is the final state handed to the completion handler. First is the
// earliest recorded failure; later failures are kept in Failures but never
// replace it.
type Aggregate struct {
	Total    int
	Failures []error
	First    error
}

func (a Aggregate) Failed() bool {
	return len(a.Failures) > 0
}

// Barrier counts down a fixed number of task outcomes and runs a single
// completion handler exactly once, when the last outcome arrives or when the
// handler is registered after that, whichever comes second.
type Barrier struct {
	mu       sync.Mutex
	expected int
	pending  int
	failures []error
	handler  func(Aggregate)
	fired    bool
	logger   zerolog.Logger
}

func NewBarrier(expected int, logger zerolog.Logger) (*Barrier, error) {
	if expected <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, expected)
	}
	return &Barrier{
		expected: expected,
		pending:  expected,
		logger:   logger,
	}, nil
}

// Record consumes one outcome. Calling it more than the expected count is
// rejected with ErrOutcomeOverflow and leaves the state untouched.
func (b *Barrier) Record(o Outcome) error {
	b.mu.Lock()
	if b.pending == 0 {
		b.mu.Unlock()
		b.logger.Error().Int("expected", b.expected).Msg("outcome recorded after barrier completed")
		return fmt.Errorf("%w: expected %d", ErrOutcomeOverflow, b.expected)
	}

	b.pending--
	laterFailure := false
	if o.Err != nil {
		laterFailure = len(b.failures) > 0
		b.failures = append(b.failures, o.Err)
	}

	fire := b.pending == 0 && b.handler != nil && !b.fired
	if fire {
		b.fired = true
	}
	handler := b.handler
	agg := b.aggregateLocked()
	b.mu.Unlock()

	if laterFailure {
		b.logger.Warn().Err(o.Err).Msg("additional task failure")
	}
	if fire {
		handler(agg)
	}
	return nil
}

// OnComplete registers the one completion handler. If every outcome is
// already in, h runs synchronously before OnComplete returns.
func (b *Barrier) OnComplete(h func(Aggregate)) error {
	if h == nil {
		return errors.New("completion handler is required")
	}

	b.mu.Lock()
	if b.handler != nil {
		b.mu.Unlock()
		return ErrAlreadyRegistered
	}
	b.handler = h

	fire := b.pending == 0 && !b.fired
	if fire {
		b.fired = true
	}
	agg := b.aggregateLocked()
	b.mu.Unlock()

	if fire {
		h(agg)
	}
	return nil
}

func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

func (b *Barrier) aggregateLocked() Aggregate {
	agg := Aggregate{Total: b.expected}
	if len(b.failures) > 0 {
		agg.Failures = make([]error, len(b.failures))
		copy(agg.Failures, b.failures)
		agg.First = b.failures[0]
	}
	return agg
}
