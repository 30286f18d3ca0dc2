package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

type mockQueryExecutor struct {
	rows      []map[string]any
	err       error
	gotQuery  string
	gotParams []any
}

func (m *mockQueryExecutor) ExecuteParameterizedQuery(_ context.Context, query string, params []any) ([]map[string]any, error) {
	m.gotQuery = query
	m.gotParams = params
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

func TestRealtimeSource_Produce(t *testing.T) {
	src := NewRealtimeSource("user_signup")
	assert.Equal(t, "user_signup", src.ID())

	payloads := []map[string]any{
		{"user_id": "u-1", "recipient": "a@example.com"},
		{"user_id": "u-2", "recipient": "b@example.com"},
	}

	got, err := src.Produce(context.Background(), TriggerContext{Payloads: payloads})
	require.NoError(t, err)
	assert.Equal(t, payloads, got)
}

func TestRealtimeSource_Produce_EmptyPayload(t *testing.T) {
	src := NewRealtimeSource("user_signup")

	_, err := src.Produce(context.Background(), TriggerContext{
		Payloads: []map[string]any{
			{"user_id": "u-1"},
			{},
		},
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationEmptyEvent, appErr.Code)
}

func TestRealtimeSource_Produce_NoPayloads(t *testing.T) {
	src := NewRealtimeSource("user_signup")

	got, err := src.Produce(context.Background(), TriggerContext{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScheduledSource_Produce(t *testing.T) {
	store := &mockQueryExecutor{
		rows: []map[string]any{
			{"signups": int64(12), "day": "2026-08-25"},
			{"signups": int64(7), "day": "2026-08-24"},
		},
	}
	src := NewScheduledSource("daily_stats",
		"SELECT count(*) AS signups, day FROM signups WHERE day >= $1", []any{"2026-08-24"}, store)
	assert.Equal(t, "daily_stats", src.ID())

	got, err := src.Produce(context.Background(), TriggerContext{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(12), got[0]["signups"])
	assert.Equal(t, []any{"2026-08-24"}, store.gotParams)
}

func TestScheduledSource_Produce_TriggerParamsOverride(t *testing.T) {
	store := &mockQueryExecutor{rows: []map[string]any{}}
	src := NewScheduledSource("daily_stats", "SELECT 1 WHERE $1", []any{"configured"}, store)

	_, err := src.Produce(context.Background(), TriggerContext{Params: []any{"override"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"override"}, store.gotParams)
}

func TestScheduledSource_Produce_QueryError(t *testing.T) {
	store := &mockQueryExecutor{err: errors.New("connection refused")}
	src := NewScheduledSource("daily_stats", "SELECT 1", nil, store)

	_, err := src.Produce(context.Background(), TriggerContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily_stats")
}
