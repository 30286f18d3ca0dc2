package db

import (
	"context"
	"time"

	"herald/internal/types"
)

// DedupRepository provides data access for the dedup_records table.
//
// The table carries a uniqueness constraint on content_hash. Inserting an
// already-recorded fingerprint refreshes its created_at instead of failing,
// which restarts the suppression window from the latest confirmed send.
type DedupRepository struct {
	db DBTX
}

// NewDedupRepository creates a new DedupRepository backed by the given
// database connection (pool or transaction).
func NewDedupRepository(db DBTX) *DedupRepository {
	return &DedupRepository{db: db}
}

// QueryRecords returns dedup records matching the content hash created at or
// after the given time, newest first.
func (r *DedupRepository) QueryRecords(ctx context.Context, contentHash string, since time.Time) ([]types.DeduplicationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT content_hash, created_at
		 FROM dedup_records
		 WHERE content_hash = $1 AND created_at >= $2
		 ORDER BY created_at DESC`,
		contentHash,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to query dedup records", err)
	}
	defer rows.Close()

	var results []types.DeduplicationRecord
	for rows.Next() {
		var rec types.DeduplicationRecord
		if err := rows.Scan(&rec.ContentHash, &rec.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to scan dedup record", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "error iterating dedup records", err)
	}

	return results, nil
}

// InsertRecord records a fingerprint as sent. The upsert form keeps one row
// per content_hash and restarts the window on conflict; each write is
// individually atomic under the table's uniqueness constraint.
func (r *DedupRepository) InsertRecord(ctx context.Context, contentHash string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO dedup_records (content_hash, created_at)
		 VALUES ($1, NOW())
		 ON CONFLICT (content_hash) DO UPDATE SET created_at = EXCLUDED.created_at`,
		contentHash,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "failed to insert dedup record", err)
	}
	return nil
}

// DeleteBefore hard-deletes dedup records older than the cutoff time. Used by
// the scheduler's maintenance registration. Returns the count of deleted rows.
func (r *DedupRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM dedup_records WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalStore, "failed to delete old dedup records", err)
	}
	return tag.RowsAffected(), nil
}
