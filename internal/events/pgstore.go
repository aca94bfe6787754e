package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGStore persists events into the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

const insertEventSQL = `
INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`

// InsertEvent implements Store.
func (s *PGStore) InsertEvent(ctx context.Context, event Event) error {
	if s == nil || s.Pool == nil {
		return errors.New("events: pg store not configured")
	}
	_, err := s.Pool.Exec(ctx, insertEventSQL,
		event.ID, event.Topic, event.AggregateID, event.Payload, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("events: insert event: %w", err)
	}
	return nil
}

// LogNotifier writes emitted events to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID.String()).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}
