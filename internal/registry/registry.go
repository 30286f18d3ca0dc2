// Package registry implements the notification registry: the declarative,
// immutable mapping from notification id to its definition. It is the single
// source of truth for which events produce which notifications, queried by id
// and by event-source id.
package registry

import (
	"fmt"

	"herald/internal/types"
)

// ReferenceChecker answers whether the ids a definition references actually
// resolve. The template renderer, channel registry, and dedup manager each
// satisfy the relevant method.
type ReferenceChecker struct {
	Templates interface{ Has(id string) bool }
	Channels  interface{ Has(name string) bool }
	Policies  interface{ Has(name string) bool }
}

// NotificationRegistry holds the registered definitions. All registration
// happens at process start; after that the registry is read-only, so lookups
// need no locking. To change a definition, unregister and re-register.
type NotificationRegistry struct {
	defs   map[string]types.NotificationDefinition
	order  []string
	checks ReferenceChecker
}

// New creates an empty registry whose registrations are validated against the
// given reference checker.
func New(checks ReferenceChecker) *NotificationRegistry {
	return &NotificationRegistry{
		defs:   make(map[string]types.NotificationDefinition),
		checks: checks,
	}
}

// Register validates and stores a definition. Malformed registry
// configuration (duplicate id, unknown channel/template/policy reference) is
// fatal: the process must refuse to start with the definition active.
func (r *NotificationRegistry) Register(def types.NotificationDefinition) error {
	if _, exists := r.defs[def.ID]; exists {
		return types.NewAppError(types.ErrCodeConfigDuplicateDefinition,
			fmt.Sprintf("definition %q registered twice", def.ID), nil)
	}

	if !r.checks.Templates.Has(def.TemplateID) {
		return types.NewAppError(types.ErrCodeConfigUnknownReference,
			fmt.Sprintf("definition %q references unknown template %q", def.ID, def.TemplateID), nil)
	}
	for _, name := range def.Channels {
		if !r.checks.Channels.Has(name) {
			return types.NewAppError(types.ErrCodeConfigUnknownReference,
				fmt.Sprintf("definition %q references unknown channel %q", def.ID, name), nil)
		}
	}
	if def.DedupPolicyID != "" && !r.checks.Policies.Has(def.DedupPolicyID) {
		return types.NewAppError(types.ErrCodeConfigUnknownReference,
			fmt.Sprintf("definition %q references unknown dedup policy %q", def.ID, def.DedupPolicyID), nil)
	}

	r.defs[def.ID] = def
	r.order = append(r.order, def.ID)
	return nil
}

// Unregister removes a definition. Only meaningful before the pipeline starts
// accepting events; definitions are never mutated in place.
func (r *NotificationRegistry) Unregister(id string) error {
	if _, exists := r.defs[id]; !exists {
		return types.NewAppError(types.ErrCodeNotFoundDefinition,
			fmt.Sprintf("definition %q not found", id), nil)
	}
	delete(r.defs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the definition registered under the given id.
func (r *NotificationRegistry) Get(id string) (types.NotificationDefinition, error) {
	def, ok := r.defs[id]
	if !ok {
		return types.NotificationDefinition{}, types.NewAppError(types.ErrCodeNotFoundDefinition,
			fmt.Sprintf("definition %q not found", id), nil)
	}
	return def, nil
}

// FindByEventSource returns all enabled definitions whose event source id
// matches, in registration order. The deterministic order is what makes
// fan-out and therefore attempt ordering reproducible.
func (r *NotificationRegistry) FindByEventSource(eventSourceID string) []types.NotificationDefinition {
	var out []types.NotificationDefinition
	for _, id := range r.order {
		def := r.defs[id]
		if def.Enabled && def.EventSourceID == eventSourceID {
			out = append(out, def)
		}
	}
	return out
}

// ListAll returns every definition, enabled or not, in registration order.
// Used for introspection and registry display.
func (r *NotificationRegistry) ListAll() []types.NotificationDefinition {
	out := make([]types.NotificationDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}
