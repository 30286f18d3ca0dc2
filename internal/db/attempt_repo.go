package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"herald/internal/types"
)

// AttemptRepository provides data access for the delivery_attempts table.
type AttemptRepository struct {
	db DBTX
}

// NewAttemptRepository creates a new AttemptRepository backed by the given
// database connection (pool or transaction).
func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Save persists a delivery attempt. Attempts are written once in their
// terminal state; there is no update path.
func (r *AttemptRepository) Save(ctx context.Context, a *types.DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO delivery_attempts
		 (id, definition_id, event_id, channel_name, recipient, subject,
		  content, content_hash, status, detail, created_at, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID,
		a.DefinitionID,
		a.EventID,
		a.ChannelName,
		a.Recipient,
		a.Subject,
		a.Content,
		a.ContentHash,
		string(a.Status),
		nilIfEmpty(a.Detail),
		a.CreatedAt,
		a.SentAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to save delivery attempt", err)
	}
	return nil
}

// ListByEvent returns every delivery attempt recorded for an event, in
// insertion order. The pipeline writes attempts in deterministic definition
// then channel order, so this ordering is stable for callers and tests.
func (r *AttemptRepository) ListByEvent(ctx context.Context, eventID string) ([]*types.DeliveryAttempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, definition_id, event_id, channel_name, recipient, subject,
		        content, content_hash, status, detail, created_at, sent_at
		 FROM delivery_attempts
		 WHERE event_id = $1
		 ORDER BY created_at, id`,
		eventID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to list delivery attempts", err)
	}
	defer rows.Close()

	var results []*types.DeliveryAttempt
	for rows.Next() {
		var (
			a      types.DeliveryAttempt
			status string
			detail *string
		)
		if err := rows.Scan(&a.ID, &a.DefinitionID, &a.EventID, &a.ChannelName,
			&a.Recipient, &a.Subject, &a.Content, &a.ContentHash,
			&status, &detail, &a.CreatedAt, &a.SentAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to scan delivery attempt row", err)
		}
		a.Status = types.AttemptStatus(status)
		if detail != nil {
			a.Detail = *detail
		}
		results = append(results, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "error iterating delivery attempt rows", err)
	}

	return results, nil
}

// nilIfEmpty maps empty strings to NULL.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
