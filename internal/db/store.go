package db

import (
	"context"
	"time"

	"herald/internal/types"
)

// Store aggregates the repositories into the single persistence surface the
// pipeline, the dedup policy, and the scheduled event sources consume. Each
// consumer depends on a narrow interface; Store satisfies all of them.
type Store struct {
	Events   *EventRepository
	Attempts *AttemptRepository
	Dedup    *DedupRepository
	Queries  *QueryRepository
}

// NewStore builds a Store over the given connection (pool or transaction).
func NewStore(db DBTX) *Store {
	return &Store{
		Events:   NewEventRepository(db),
		Attempts: NewAttemptRepository(db),
		Dedup:    NewDedupRepository(db),
		Queries:  NewQueryRepository(db),
	}
}

// SaveEvent persists an event, assigning an ID if absent.
func (s *Store) SaveEvent(ctx context.Context, e *types.Event) error {
	return s.Events.Save(ctx, e)
}

// MarkEventProcessed flips the processed flag for an event.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) error {
	return s.Events.MarkProcessed(ctx, eventID)
}

// SaveDeliveryAttempt persists a terminal delivery attempt.
func (s *Store) SaveDeliveryAttempt(ctx context.Context, a *types.DeliveryAttempt) error {
	return s.Attempts.Save(ctx, a)
}

// QueryDedupRecords returns dedup records for a hash created since the given time.
func (s *Store) QueryDedupRecords(ctx context.Context, contentHash string, since time.Time) ([]types.DeduplicationRecord, error) {
	return s.Dedup.QueryRecords(ctx, contentHash, since)
}

// InsertDedupRecord records a fingerprint as sent.
func (s *Store) InsertDedupRecord(ctx context.Context, contentHash string) error {
	return s.Dedup.InsertRecord(ctx, contentHash)
}

// DeleteDedupRecordsBefore prunes dedup records older than the cutoff and
// returns the number removed.
func (s *Store) DeleteDedupRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.Dedup.DeleteBefore(ctx, cutoff)
}

// ListRecentEvents returns the most recent events, newest first.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	return s.Events.ListRecent(ctx, limit)
}

// ListAttemptsByEvent returns the delivery attempts recorded for an event.
func (s *Store) ListAttemptsByEvent(ctx context.Context, eventID string) ([]*types.DeliveryAttempt, error) {
	return s.Attempts.ListByEvent(ctx, eventID)
}

// ExecuteParameterizedQuery runs a scheduled source's bound query.
func (s *Store) ExecuteParameterizedQuery(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	return s.Queries.Execute(ctx, query, params)
}
