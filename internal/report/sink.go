// Package report fans terminal invocation reports out to their consumers.
// Delivery is best effort: a failing sink is logged and never changes the
// report it was given.
package report

import (
	"context"
	"time"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/rs/zerolog"
)

type Sink interface {
	Publish(ctx context.Context, report domain.Report) error
}

type SinkFunc func(ctx context.Context, report domain.Report) error

func (f SinkFunc) Publish(ctx context.Context, report domain.Report) error {
	return f(ctx, report)
}

type named struct {
	name string
	sink Sink
}

// Fanout publishes every report to each registered sink in order.
type Fanout struct {
	sinks   []named
	timeout time.Duration
	logger  zerolog.Logger
}

func NewFanout(logger zerolog.Logger, timeout time.Duration) *Fanout {
	return &Fanout{logger: logger, timeout: timeout}
}

// Add registers sink under name. A nil sink is ignored so optional sinks can
// be added unconditionally.
func (f *Fanout) Add(name string, sink Sink) *Fanout {
	if sink != nil {
		f.sinks = append(f.sinks, named{name: name, sink: sink})
	}
	return f
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish returns the number of sinks that failed.
func (f *Fanout) Publish(ctx context.Context, r domain.Report) int {
	failed := 0
	for _, s := range f.sinks {
		sctx, cancel := f.sinkContext(ctx)
		err := s.sink.Publish(sctx, r)
		cancel()
		if err != nil {
			failed++
			f.logger.Warn().
				Err(err).
				Str("sink", s.name).
				Str(logging.FieldInvocationID, r.InvocationID).
				Str(logging.FieldStatus, r.Status).
				Msg("report delivery failed")
		}
	}
	return failed
}

func (f *Fanout) sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// Reports are delivered even when the invocation context is done.
	ctx = context.WithoutCancel(ctx)
	if f.timeout > 0 {
		return context.WithTimeout(ctx, f.timeout)
	}
	return ctx, func() {}
}
