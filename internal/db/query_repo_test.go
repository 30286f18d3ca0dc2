package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

// queryMockRows implements pgx.Rows for Execute, which maps rows through
// FieldDescriptions and Values rather than Scan.
type queryMockRows struct {
	fields  []pgconn.FieldDescription
	data    [][]any
	idx     int
	closed  bool
	valErr  error
	errVal  error
}

func (r *queryMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *queryMockRows) Values() ([]any, error) {
	if r.valErr != nil {
		return nil, r.valErr
	}
	return r.data[r.idx], nil
}

func (r *queryMockRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *queryMockRows) Scan(dest ...any) error                       { return nil }
func (r *queryMockRows) Close()                                       { r.closed = true }
func (r *queryMockRows) Err() error                                   { return r.errVal }
func (r *queryMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *queryMockRows) RawValues() [][]byte                          { return nil }
func (r *queryMockRows) Conn() *pgx.Conn                              { return nil }

func TestQueryRepository_Execute_MapsRowsToColumns(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewQueryRepository(dbtx)

	rows := &queryMockRows{
		idx: -1,
		fields: []pgconn.FieldDescription{
			{Name: "source"},
			{Name: "count"},
		},
		data: [][]any{
			{"user_signup", int64(42)},
			{"password_reset", int64(7)},
		},
	}
	dbtx.On("Query", mock.Anything, "SELECT source, COUNT(*) FROM events WHERE source = $1 GROUP BY source", []any{"user_signup"}).
		Return(rows, nil)

	results, err := repo.Execute(context.Background(),
		"SELECT source, COUNT(*) FROM events WHERE source = $1 GROUP BY source",
		[]any{"user_signup"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "user_signup", results[0]["source"])
	assert.Equal(t, int64(42), results[0]["count"])
	assert.Equal(t, int64(7), results[1]["count"])
	assert.True(t, rows.closed)
}

func TestQueryRepository_Execute_NoRows(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewQueryRepository(dbtx)

	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&queryMockRows{idx: -1}, nil)

	results, err := repo.Execute(context.Background(), "SELECT 1 WHERE FALSE", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryRepository_Execute_QueryError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewQueryRepository(dbtx)

	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New(`relation "missing" does not exist`))

	_, err := repo.Execute(context.Background(), "SELECT * FROM missing", nil)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalStore, appErr.Code)
}

func TestQueryRepository_Execute_ValuesError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewQueryRepository(dbtx)

	rows := &queryMockRows{
		idx:    -1,
		fields: []pgconn.FieldDescription{{Name: "id"}},
		data:   [][]any{{"x"}},
		valErr: errors.New("decode failure"),
	}
	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	_, err := repo.Execute(context.Background(), "SELECT id FROM events", nil)
	require.Error(t, err)
}
