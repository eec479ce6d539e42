package circuit

import (
	"context"
	"errors"
	"log/slog"

	"coldchain/pkg/platform/events"
)

// ErrOpen is returned instead of calling a sink whose breaker is open.
var ErrOpen = errors.New("circuit open")

// Sink guards a downstream event sink with a breaker so an unreachable broker
// fails fast instead of stalling the publisher on every event.
type Sink struct {
	breaker *Breaker
	next    events.Sink
	logger  *slog.Logger
}

func Guard(b *Breaker, next events.Sink, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{breaker: b, next: next, logger: logger}
}

func (s *Sink) Publish(ctx context.Context, event events.Event) error {
	if !s.breaker.Allow() {
		return ErrOpen
	}
	if err := s.next.Publish(ctx, event); err != nil {
		if s.breaker.RecordFailure().Opened {
			s.logger.WarnContext(ctx, "event sink circuit opened", "sink", s.breaker.Name(), "error", err)
		}
		return err
	}
	if s.breaker.RecordSuccess().Closed {
		s.logger.InfoContext(ctx, "event sink circuit closed", "sink", s.breaker.Name())
	}
	return nil
}
