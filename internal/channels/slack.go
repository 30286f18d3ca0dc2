package channels

import (
	"context"
	"fmt"
	"io"
	"os"

	"herald/internal/types"
)

// Compile-time assertion that SlackChannel implements Channel.
var _ Channel = (*SlackChannel)(nil)

// SlackChannel is the console-backed slack transport. It is a terminal mock:
// each delivery writes one human-readable block to the configured writer
// (stdout by default) and always reports sent barring a write fault.
type SlackChannel struct {
	defaultChannel string
	out            io.Writer
	clock          types.Clock
}

// SlackConfig holds the parameters for constructing a SlackChannel.
type SlackConfig struct {
	// DefaultChannel is used when event data carries no slack_channel.
	DefaultChannel string
	// Out overrides the destination writer; nil means stdout.
	Out io.Writer
}

// NewSlackChannel creates a console-backed slack channel.
func NewSlackChannel(cfg SlackConfig) *SlackChannel {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &SlackChannel{
		defaultChannel: cfg.DefaultChannel,
		out:            out,
		clock:          types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (c *SlackChannel) SetClock(clock types.Clock) { c.clock = clock }

// Name implements Channel.
func (c *SlackChannel) Name() string { return "slack" }

// ResolveRecipient reads the destination channel from the event data's
// "slack_channel" key, falling back to the configured default.
func (c *SlackChannel) ResolveRecipient(data map[string]any) (string, error) {
	if ch, _ := data["slack_channel"].(string); ch != "" {
		return ch, nil
	}
	if c.defaultChannel != "" {
		return c.defaultChannel, nil
	}
	return "", fmt.Errorf("event data has no slack_channel and no default is configured")
}

// Send writes the message as a console block.
func (c *SlackChannel) Send(_ context.Context, recipient, subject, body string, _ map[string]any) types.DeliveryResult {
	block := fmt.Sprintf("[SLACK %s]\nChannel: %s\nSubject: %s\nMessage: %s\n",
		c.clock.Now().Format("2006-01-02 15:04:05"), recipient, subject, body)

	if _, err := fmt.Fprint(c.out, block); err != nil {
		return types.DeliveryResult{
			Status: types.DeliveryFailed,
			Detail: fmt.Sprintf("writing slack message: %v", err),
		}
	}

	return types.DeliveryResult{Status: types.DeliverySent}
}

// ValidateConfig checks the writer is present. The default channel may be
// empty; in that case every event must carry its own slack_channel.
func (c *SlackChannel) ValidateConfig() error {
	if c.out == nil {
		return fmt.Errorf("slack channel: no output writer configured")
	}
	return nil
}
