// Package logsink writes events to a structured logger. It is the sink of last
// resort when no broker is configured.
package logsink

import (
	"context"
	"log/slog"

	"coldchain/pkg/platform/events"
)

type Sink struct {
	logger *slog.Logger
	level  slog.Level
}

func New(logger *slog.Logger, level slog.Level) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger, level: level}
}

func (s *Sink) Publish(ctx context.Context, event events.Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("kind", string(event.Kind)),
		slog.String("aggregate_type", event.AggregateType),
		slog.String("aggregate_id", event.AggregateID),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if len(event.Attributes) > 0 {
		group := make([]any, 0, len(event.Attributes)*2)
		for k, v := range event.Attributes {
			group = append(group, k, v)
		}
		attrs = append(attrs, slog.Group("attributes", group...))
	}
	s.logger.LogAttrs(ctx, s.level, "ledger event", attrs...)
	return nil
}
