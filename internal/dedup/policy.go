// Package dedup implements deduplication gating for the notification
// pipeline: a policy contract, a name -> policy manager resolved at startup,
// the time-window policy, and the per-fingerprint serialization that makes the
// check-then-record sequence safe under concurrent identical events.
package dedup

import (
	"context"
	"fmt"

	"herald/internal/types"
)

// Policy decides whether a fingerprint may be sent and records confirmed
// sends. ShouldSend is a side-effect-free query; Record is the durable side
// effect, invoked only after a confirmed dispatch.
type Policy interface {
	// Name returns the registry name of this policy.
	Name() string

	// ShouldSend reports whether the fingerprint is clear to dispatch.
	ShouldSend(ctx context.Context, fingerprint string) (bool, error)

	// Record marks the fingerprint as sent, starting its suppression window.
	Record(ctx context.Context, fingerprint string) error
}

// Manager maps policy names to policies. Registration happens once at
// startup; resolution is read-only thereafter.
type Manager struct {
	policies map[string]Policy
	order    []string
}

// NewManager creates an empty policy manager.
func NewManager() *Manager {
	return &Manager{policies: make(map[string]Policy)}
}

// Register stores a policy under its name. Duplicate names are configuration
// errors.
func (m *Manager) Register(p Policy) error {
	if _, exists := m.policies[p.Name()]; exists {
		return types.NewAppError(types.ErrCodeConfigDuplicatePolicy,
			fmt.Sprintf("dedup policy %q registered twice", p.Name()), nil)
	}
	m.policies[p.Name()] = p
	m.order = append(m.order, p.Name())
	return nil
}

// Resolve returns the policy registered under the given name.
func (m *Manager) Resolve(name string) (Policy, error) {
	p, ok := m.policies[name]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundDedupPolicy,
			fmt.Sprintf("dedup policy %q not found", name), nil)
	}
	return p, nil
}

// Has reports whether a policy name resolves. Used by the notification
// registry to validate definitions at registration time.
func (m *Manager) Has(name string) bool {
	_, ok := m.policies[name]
	return ok
}

// Names returns the registered policy names in registration order.
func (m *Manager) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
