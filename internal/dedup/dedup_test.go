package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// memoryRecordStore keeps dedup records in a map keyed by content hash, with
// insert refreshing the timestamp like the real upsert does.
type memoryRecordStore struct {
	mu      sync.Mutex
	records map[string]time.Time
	now     func() time.Time
	err     error
}

func newMemoryRecordStore(now func() time.Time) *memoryRecordStore {
	return &memoryRecordStore{records: make(map[string]time.Time), now: now}
}

func (s *memoryRecordStore) QueryDedupRecords(_ context.Context, hash string, since time.Time) ([]types.DeduplicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	created, ok := s.records[hash]
	if !ok || created.Before(since) {
		return nil, nil
	}
	return []types.DeduplicationRecord{{ContentHash: hash, CreatedAt: created}}, nil
}

func (s *memoryRecordStore) InsertDedupRecord(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records[hash] = s.now()
	return nil
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("subject", "body", "email", "a@example.com")
	b := Fingerprint("subject", "body", "email", "a@example.com")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_FieldSensitivity(t *testing.T) {
	base := Fingerprint("subject", "body", "email", "a@example.com")

	assert.NotEqual(t, base, Fingerprint("subject2", "body", "email", "a@example.com"))
	assert.NotEqual(t, base, Fingerprint("subject", "body2", "email", "a@example.com"))
	assert.NotEqual(t, base, Fingerprint("subject", "body", "slack", "a@example.com"))
	assert.NotEqual(t, base, Fingerprint("subject", "body", "email", "b@example.com"))
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// Moving bytes across the field boundary must change the digest.
	assert.NotEqual(t,
		Fingerprint("ab", "c", "email", "r"),
		Fingerprint("a", "bc", "email", "r"))
}

func TestTimeWindowPolicy_Gate(t *testing.T) {
	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := start
	store := newMemoryRecordStore(func() time.Time { return now })

	p := NewTimeWindowPolicy(store, time.Hour)
	p.SetClock(fixedClock{now: start})

	fp := Fingerprint("s", "b", "email", "r")
	ctx := context.Background()

	ok, err := p.ShouldSend(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok, "unseen fingerprint should send")

	require.NoError(t, p.Record(ctx, fp))

	ok, err = p.ShouldSend(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok, "recorded fingerprint inside window must be suppressed")

	// Just inside the window boundary.
	p.SetClock(fixedClock{now: start.Add(59 * time.Minute)})
	ok, err = p.ShouldSend(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)

	// Past the window the fingerprint clears again.
	p.SetClock(fixedClock{now: start.Add(61 * time.Minute)})
	ok, err = p.ShouldSend(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTimeWindowPolicy_RecordRefreshesWindow(t *testing.T) {
	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := start
	store := newMemoryRecordStore(func() time.Time { return now })

	p := NewTimeWindowPolicy(store, time.Hour)
	fp := Fingerprint("s", "b", "email", "r")
	ctx := context.Background()

	require.NoError(t, p.Record(ctx, fp))

	// A later re-send restarts the suppression window from the second send.
	now = start.Add(2 * time.Hour)
	require.NoError(t, p.Record(ctx, fp))

	p.SetClock(fixedClock{now: start.Add(2*time.Hour + 30*time.Minute)})
	ok, err := p.ShouldSend(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimeWindowPolicy_StoreError(t *testing.T) {
	store := newMemoryRecordStore(time.Now)
	store.err = errors.New("connection refused")

	p := NewTimeWindowPolicy(store, time.Hour)

	_, err := p.ShouldSend(context.Background(), "fp")
	assert.Error(t, err)
	assert.Error(t, p.Record(context.Background(), "fp"))
}

func TestManager(t *testing.T) {
	m := NewManager()
	p := NewTimeWindowPolicy(newMemoryRecordStore(time.Now), time.Hour)

	require.NoError(t, m.Register(p))
	assert.True(t, m.Has("time_window"))
	assert.Equal(t, []string{"time_window"}, m.Names())

	got, err := m.Resolve("time_window")
	require.NoError(t, err)
	assert.Same(t, p, got)

	err = m.Register(p)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConfigDuplicatePolicy, appErr.Code)

	_, err = m.Resolve("absent")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundDedupPolicy, appErr.Code)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
	unlockA()
}
