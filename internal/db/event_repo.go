package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"herald/internal/types"
)

// EventRepository provides data access for the events table.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository backed by the given
// database connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Save persists an event. If the event carries no ID, one is assigned before
// insert so the pipeline owns a stable identity from the first write onward.
func (r *EventRepository) Save(ctx context.Context, e *types.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e.Data)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to encode event data", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO events (id, event_type, source, data, created_at, processed)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID,
		string(e.Type),
		e.Source,
		payload,
		e.CreatedAt,
		e.Processed,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to save event", err)
	}
	return nil
}

// MarkProcessed flips the processed flag for an event. The transition is
// one-way; callers only invoke it once every derived delivery attempt has
// reached a terminal state.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET processed = TRUE WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to mark event processed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEvent, "event not found", nil)
	}
	return nil
}

// ListRecent returns the most recently created events, newest first.
// Used by the introspection API only.
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, event_type, source, data, created_at, processed
		 FROM events
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to list events", err)
	}
	defer rows.Close()

	var results []*types.Event
	for rows.Next() {
		var (
			e         types.Event
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &e.Source, &payload, &e.CreatedAt, &e.Processed); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to scan event row", err)
		}
		e.Type = types.EventType(eventType)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Data); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to decode event data", err)
			}
		}
		results = append(results, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "error iterating event rows", err)
	}

	return results, nil
}
