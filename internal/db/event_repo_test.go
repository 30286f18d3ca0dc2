package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Rows for event list queries ---

type eventRowData struct {
	id        string
	eventType string
	source    string
	payload   []byte
	createdAt time.Time
	processed bool
}

type eventMockRows struct {
	data    []eventRowData
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func (r *eventMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *eventMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	*dest[0].(*string) = row.id
	*dest[1].(*string) = row.eventType
	*dest[2].(*string) = row.source
	*dest[3].(*[]byte) = row.payload
	*dest[4].(*time.Time) = row.createdAt
	*dest[5].(*bool) = row.processed
	return nil
}

func (r *eventMockRows) Close()                                        { r.closed = true }
func (r *eventMockRows) Err() error                                    { return r.errVal }
func (r *eventMockRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *eventMockRows) FieldDescriptions() []pgconn.FieldDescription  { return nil }
func (r *eventMockRows) RawValues() [][]byte                           { return nil }
func (r *eventMockRows) Values() ([]any, error)                        { return nil, nil }
func (r *eventMockRows) Conn() *pgx.Conn                               { return nil }

// --- EventRepository tests ---

func TestEventRepository_Save_Success(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	event := &types.Event{
		ID:     "evt-1",
		Type:   types.EventRealtime,
		Source: "user_signup",
		Data:   map[string]any{"user_email": "alice@example.com"},
	}

	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Save(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, event.CreatedAt.IsZero(), "Save must backfill created_at")
	dbtx.AssertExpectations(t)
}

func TestEventRepository_Save_AssignsID(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	event := &types.Event{Type: types.EventScheduled, Source: "daily_stats"}
	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Save(context.Background(), event))
	assert.NotEmpty(t, event.ID)
}

func TestEventRepository_Save_DBError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Save(context.Background(), &types.Event{Source: "user_signup"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalStore, appErr.Code)
}

func TestEventRepository_MarkProcessed_Success(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"evt-1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.MarkProcessed(context.Background(), "evt-1"))
	dbtx.AssertExpectations(t)
}

func TestEventRepository_MarkProcessed_NotFound(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	dbtx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkProcessed(context.Background(), "evt-missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundEvent, appErr.Code)
}

func TestEventRepository_ListRecent_Success(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	now := time.Now().UTC()
	rows := &eventMockRows{
		idx: -1,
		data: []eventRowData{
			{id: "evt-2", eventType: "scheduled", source: "daily_stats", payload: []byte(`{"count":3}`), createdAt: now, processed: false},
			{id: "evt-1", eventType: "realtime", source: "user_signup", payload: []byte(`{"user_email":"a@b.c"}`), createdAt: now.Add(-time.Hour), processed: true},
		},
	}
	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{10}).
		Return(rows, nil)

	events, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "evt-2", events[0].ID)
	assert.Equal(t, types.EventScheduled, events[0].Type)
	assert.Equal(t, float64(3), events[0].Data["count"])
	assert.Equal(t, "evt-1", events[1].ID)
	assert.True(t, events[1].Processed)
	assert.True(t, rows.closed)
}

func TestEventRepository_ListRecent_DefaultsLimit(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{50}).
		Return(&eventMockRows{idx: -1}, nil)

	events, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	dbtx.AssertExpectations(t)
}

func TestEventRepository_ListRecent_ScanError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewEventRepository(dbtx)

	rows := &eventMockRows{
		idx:     -1,
		data:    []eventRowData{{id: "evt-1"}},
		scanErr: errors.New("bad column"),
	}
	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	_, err := repo.ListRecent(context.Background(), 5)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalStore, appErr.Code)
}
