package api

import (
	"context"

	"github.com/rs/zerolog"
)

// Deduper drops repeated deliveries of one notification. dedupe.RedisGuard
// implements it.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// claim reports whether eventID should be queued. Without a guard, or when
// the guard errors, the event is treated as fresh.
func (s *Server) claim(ctx context.Context, eventID string) (bool, error) {
	if s.guard == nil {
		return true, nil
	}
	fresh, err := s.guard.Claim(ctx, eventID)
	if err != nil {
		return true, err
	}
	if !fresh {
		s.metrics.duplicatesDropped.Inc()
	}
	return fresh, nil
}

func (s *Server) release(ctx context.Context, eventID string, logger zerolog.Logger) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(context.WithoutCancel(ctx), eventID); err != nil {
		logger.Warn().Err(err).Msg("release dedupe claim failed")
	}
}
