package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"herald/internal/types"
)

// Compile-time assertion that EmailChannel implements Channel.
var _ Channel = (*EmailChannel)(nil)

// EmailChannel is the file-backed email transport. It is a terminal mock:
// each delivery writes one artifact into the output directory, named
// deterministically from the event id and send timestamp, and always reports
// sent barring an I/O fault.
type EmailChannel struct {
	outputDir string
	fromAddr  string
	clock     types.Clock
}

// EmailConfig holds the parameters for constructing an EmailChannel.
type EmailConfig struct {
	OutputDir string
	FromAddr  string
}

// NewEmailChannel creates a file-backed email channel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{
		outputDir: cfg.OutputDir,
		fromAddr:  cfg.FromAddr,
		clock:     types.RealClock{},
	}
}

// SetClock overrides the clock for testing.
func (c *EmailChannel) SetClock(clock types.Clock) { c.clock = clock }

// Name implements Channel.
func (c *EmailChannel) Name() string { return "email" }

// ResolveRecipient reads the destination address from the event data's
// "recipient" key.
func (c *EmailChannel) ResolveRecipient(data map[string]any) (string, error) {
	addr, _ := data["recipient"].(string)
	if addr == "" {
		return "", fmt.Errorf("event data has no recipient")
	}
	return addr, nil
}

// Send writes the message as an email artifact. I/O faults come back as a
// failed DeliveryResult, never as a panic or error.
func (c *EmailChannel) Send(_ context.Context, recipient, subject, body string, metadata map[string]any) types.DeliveryResult {
	now := c.clock.Now()
	eventID, _ := metadata["event_id"].(string)
	if eventID == "" {
		eventID = "unknown"
	}

	filename := fmt.Sprintf("%s_%s.txt", eventID, now.Format("20060102_150405"))
	path := filepath.Join(c.outputDir, filename)

	content := fmt.Sprintf("To: %s\nFrom: %s\nSubject: %s\nDate: %s\n\n%s\n",
		recipient, c.fromAddr, subject, now.Format(time.RFC3339), body)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return types.DeliveryResult{
			Status: types.DeliveryFailed,
			Detail: fmt.Sprintf("writing email artifact: %v", err),
		}
	}

	return types.DeliveryResult{
		Status: types.DeliverySent,
		Detail: path,
	}
}

// ValidateConfig ensures the output directory exists and is writable.
func (c *EmailChannel) ValidateConfig() error {
	if c.outputDir == "" {
		return fmt.Errorf("email channel: output directory not configured")
	}
	if c.fromAddr == "" {
		return fmt.Errorf("email channel: from address not configured")
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return fmt.Errorf("email channel: creating output directory: %w", err)
	}
	return nil
}
