package db

import (
	"context"

	"herald/internal/types"
)

// QueryRepository executes the parameterized queries configured on scheduled
// event sources. Parameters are always bound through pgx placeholders
// ($1..$n), never concatenated into the query text, which keeps scheduled
// source configuration injection-safe.
type QueryRepository struct {
	db DBTX
}

// NewQueryRepository creates a new QueryRepository backed by the given
// database connection (pool or transaction).
func NewQueryRepository(db DBTX) *QueryRepository {
	return &QueryRepository{db: db}
}

// Execute runs the query with the given bound parameters and maps each result
// row to a column-name -> value dictionary, preserving row order.
func (r *QueryRepository) Execute(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	rows, err := r.db.Query(ctx, query, params...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to execute scheduled query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var results []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore, "failed to read scheduled query row", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "error iterating scheduled query rows", err)
	}

	return results, nil
}
