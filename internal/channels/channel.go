// Package channels implements the pluggable delivery channel layer: the
// channel contract, a name -> factory registry resolved at startup, and the
// built-in channel implementations (file-backed email, console slack, HTTP
// webhook).
package channels

import (
	"context"
	"fmt"

	"herald/internal/types"
)

// Channel is the delivery contract every transport implements.
//
// Send must not return an error for ordinary delivery failures; it reports a
// failed DeliveryResult instead. Errors are reserved for programmer mistakes,
// which ValidateConfig catches once at registration time.
type Channel interface {
	// Name returns the registry name of this channel.
	Name() string

	// ResolveRecipient extracts this channel's recipient from event data
	// (e.g. the email channel reads "recipient", slack reads
	// "slack_channel"). A missing recipient fails the pairing before any
	// dispatch happens.
	ResolveRecipient(data map[string]any) (string, error)

	// Send dispatches one rendered message. Metadata carries pipeline
	// context such as the event and definition ids for artifact naming.
	Send(ctx context.Context, recipient, subject, body string, metadata map[string]any) types.DeliveryResult

	// ValidateConfig checks the channel's configuration. Invoked once when
	// the channel is registered; a failure is fatal at startup.
	ValidateConfig() error
}

// Factory constructs a channel instance. Configuration is captured by the
// closure at wiring time, so the registry stays configuration-agnostic.
type Factory func() (Channel, error)

// Registry maps channel names to constructed channel instances. Registration
// happens once at startup; resolution is read-only thereafter, so the registry
// needs no locking.
type Registry struct {
	channels map[string]Channel
	order    []string
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register constructs the channel via its factory, validates its
// configuration, and stores it under the given name. Duplicate names and
// validation failures are configuration errors.
func (r *Registry) Register(name string, factory Factory) error {
	if _, exists := r.channels[name]; exists {
		return types.NewAppError(types.ErrCodeConfigDuplicateChannel,
			fmt.Sprintf("channel %q registered twice", name), nil)
	}

	ch, err := factory()
	if err != nil {
		return types.NewAppError(types.ErrCodeConfigInvalidChannel,
			fmt.Sprintf("channel %q: construction failed", name), err)
	}
	if err := ch.ValidateConfig(); err != nil {
		return types.NewAppError(types.ErrCodeConfigInvalidChannel,
			fmt.Sprintf("channel %q: invalid configuration", name), err)
	}

	r.channels[name] = ch
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the channel registered under the given name.
func (r *Registry) Resolve(name string) (Channel, error) {
	ch, ok := r.channels[name]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundChannel,
			fmt.Sprintf("channel %q not found", name), nil)
	}
	return ch, nil
}

// Has reports whether a channel name resolves. Used by the notification
// registry to validate definitions at registration time.
func (r *Registry) Has(name string) bool {
	_, ok := r.channels[name]
	return ok
}

// Names returns the registered channel names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
