package dedup

import (
	"context"
	"time"

	"herald/internal/types"
)

// Compile-time assertion that TimeWindowPolicy implements Policy.
var _ Policy = (*TimeWindowPolicy)(nil)

// RecordStore is the narrow persistence interface the time-window policy
// needs from the store.
type RecordStore interface {
	// QueryDedupRecords returns records for the hash created at or after
	// the given time.
	QueryDedupRecords(ctx context.Context, contentHash string, since time.Time) ([]types.DeduplicationRecord, error)

	// InsertDedupRecord records a fingerprint as sent.
	InsertDedupRecord(ctx context.Context, contentHash string) error
}

// TimeWindowPolicy suppresses a fingerprint for a trailing window W after a
// confirmed send: ShouldSend is false whenever a record with the same hash
// exists with created_at >= now - W.
type TimeWindowPolicy struct {
	store  RecordStore
	window time.Duration
	clock  types.Clock
}

// NewTimeWindowPolicy creates a time-window policy with the given window
// duration.
func NewTimeWindowPolicy(store RecordStore, window time.Duration) *TimeWindowPolicy {
	return &TimeWindowPolicy{
		store:  store,
		window: window,
		clock:  types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (p *TimeWindowPolicy) SetClock(clock types.Clock) { p.clock = clock }

// Name implements Policy.
func (p *TimeWindowPolicy) Name() string { return "time_window" }

// Window returns the configured suppression window.
func (p *TimeWindowPolicy) Window() time.Duration { return p.window }

// ShouldSend reports whether no record for the fingerprint exists inside the
// active window. Pure query; it never writes.
func (p *TimeWindowPolicy) ShouldSend(ctx context.Context, fingerprint string) (bool, error) {
	since := p.clock.Now().Add(-p.window)
	records, err := p.store.QueryDedupRecords(ctx, fingerprint, since)
	if err != nil {
		return false, err
	}
	return len(records) == 0, nil
}

// Record marks the fingerprint as sent. Called only after a confirmed
// dispatch; a suppression record must never exist for a send that did not
// happen.
func (p *TimeWindowPolicy) Record(ctx context.Context, fingerprint string) error {
	return p.store.InsertDedupRecord(ctx, fingerprint)
}
