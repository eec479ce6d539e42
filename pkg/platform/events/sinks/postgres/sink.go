// Package postgres keeps a durable, queryable log of ledger events.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"coldchain/pkg/platform/events"
	txcontext "coldchain/pkg/platform/tx"
)

// Schema creates the event log table.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id             UUID PRIMARY KEY,
	kind           TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	occurred_at    TIMESTAMPTZ NOT NULL,
	attributes     JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS ledger_events_aggregate_idx
	ON ledger_events (aggregate_type, aggregate_id, occurred_at);
`

type Sink struct {
	db *sql.DB
}

func New(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Migrate applies Schema.
func (s *Sink) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger_events: %w", err)
	}
	return nil
}

// Publish inserts the event. Redelivery of the same event ID is a no-op.
func (s *Sink) Publish(ctx context.Context, event events.Event) error {
	attrs := event.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal event attributes: %w", err)
	}
	query := `
		INSERT INTO ledger_events (id, kind, aggregate_type, aggregate_id, occurred_at, attributes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = txcontext.Or(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		string(event.Kind),
		event.AggregateType,
		event.AggregateID,
		event.OccurredAt,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// ListByAggregate returns the events about one aggregate, oldest first.
func (s *Sink) ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]events.Event, error) {
	query := `
		SELECT id, kind, aggregate_type, aggregate_id, occurred_at, attributes
		FROM ledger_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			event events.Event
			kind  string
			raw   []byte
		)
		if err := rows.Scan(&event.ID, &kind, &event.AggregateType, &event.AggregateID, &event.OccurredAt, &raw); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		event.Kind = events.Kind(kind)
		if err := json.Unmarshal(raw, &event.Attributes); err != nil {
			return nil, fmt.Errorf("decode ledger event attributes: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return out, nil
}
