// Package events implements the event source layer: the produce contract
// shared by real-time and scheduled sources, and both concrete variants.
package events

import (
	"context"
	"fmt"

	"herald/internal/types"
)

// TriggerContext carries the caller-supplied inputs of one produce call.
// Real-time sources consume Payloads; scheduled sources consume Params.
type TriggerContext struct {
	// Payloads is the pre-supplied list of event dictionaries for a
	// real-time trigger (e.g. from an API call).
	Payloads []map[string]any

	// Params overrides the scheduled source's configured query parameters
	// for this trigger. Nil keeps the configured ones.
	Params []any
}

// EventSource produces a finite sequence of raw event dictionaries for one
// trigger.
type EventSource interface {
	// ID returns the event-source id definitions match against.
	ID() string

	// Produce returns the raw event dictionaries for this trigger.
	Produce(ctx context.Context, trigger TriggerContext) ([]map[string]any, error)
}

// Compile-time assertions.
var (
	_ EventSource = (*RealtimeSource)(nil)
	_ EventSource = (*ScheduledSource)(nil)
)

// RealtimeSource is the stateless pass-through variant: it validates and
// returns the caller-supplied payloads unchanged. The sequence is finite and
// restartable because the source holds no state of its own.
type RealtimeSource struct {
	id string
}

// NewRealtimeSource creates a real-time source with the given id.
func NewRealtimeSource(id string) *RealtimeSource {
	return &RealtimeSource{id: id}
}

// ID implements EventSource.
func (s *RealtimeSource) ID() string { return s.id }

// Produce validates that every payload is a non-empty mapping and returns the
// list unchanged.
func (s *RealtimeSource) Produce(_ context.Context, trigger TriggerContext) ([]map[string]any, error) {
	for i, payload := range trigger.Payloads {
		if len(payload) == 0 {
			return nil, types.NewAppError(types.ErrCodeValidationEmptyEvent,
				fmt.Sprintf("event payload %d is empty", i), nil)
		}
	}
	return trigger.Payloads, nil
}

// QueryExecutor is the narrow persistence interface a scheduled source needs:
// the store's parameterized query-execution capability.
type QueryExecutor interface {
	ExecuteParameterizedQuery(ctx context.Context, query string, params []any) ([]map[string]any, error)
}

// ScheduledSource executes a configured parameterized query on each trigger
// and maps every result row to an event dictionary. Parameters are bound
// through placeholders, never concatenated into the query text.
type ScheduledSource struct {
	id     string
	query  string
	params []any
	store  QueryExecutor
}

// NewScheduledSource creates a scheduled source over the store's query
// executor.
func NewScheduledSource(id, query string, params []any, store QueryExecutor) *ScheduledSource {
	return &ScheduledSource{
		id:     id,
		query:  query,
		params: params,
		store:  store,
	}
}

// ID implements EventSource.
func (s *ScheduledSource) ID() string { return s.id }

// Produce executes the query and returns one event dictionary per result row,
// in row order. Trigger params, when supplied, replace the configured ones
// for this invocation only.
func (s *ScheduledSource) Produce(ctx context.Context, trigger TriggerContext) ([]map[string]any, error) {
	params := s.params
	if trigger.Params != nil {
		params = trigger.Params
	}

	rows, err := s.store.ExecuteParameterizedQuery(ctx, s.query, params)
	if err != nil {
		return nil, fmt.Errorf("scheduled source %s: %w", s.id, err)
	}
	return rows, nil
}
