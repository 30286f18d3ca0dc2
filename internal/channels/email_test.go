package channels

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/types"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestEmailChannel_Send(t *testing.T) {
	dir := t.TempDir()
	ch := NewEmailChannel(EmailConfig{OutputDir: dir, FromAddr: "noreply@herald.local"})
	ch.SetClock(fixedClock{now: time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)})

	result := ch.Send(context.Background(), "a@example.com", "Welcome, Dana!",
		"Hi Dana, your account u-42 is ready.", map[string]any{"event_id": "evt-1"})

	require.Equal(t, types.DeliverySent, result.Status)

	wantPath := filepath.Join(dir, "evt-1_20260826_093000.txt")
	assert.Equal(t, wantPath, result.Detail)

	content, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "To: a@example.com")
	assert.Contains(t, string(content), "From: noreply@herald.local")
	assert.Contains(t, string(content), "Subject: Welcome, Dana!")
	assert.Contains(t, string(content), "Hi Dana, your account u-42 is ready.")
}

func TestEmailChannel_Send_UnknownEventID(t *testing.T) {
	dir := t.TempDir()
	ch := NewEmailChannel(EmailConfig{OutputDir: dir, FromAddr: "noreply@herald.local"})
	ch.SetClock(fixedClock{now: time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)})

	result := ch.Send(context.Background(), "a@example.com", "s", "b", nil)

	require.Equal(t, types.DeliverySent, result.Status)
	assert.Equal(t, filepath.Join(dir, "unknown_20260826_093000.txt"), result.Detail)
}

func TestEmailChannel_Send_WriteFailure(t *testing.T) {
	ch := NewEmailChannel(EmailConfig{
		OutputDir: filepath.Join(t.TempDir(), "does", "not", "exist"),
		FromAddr:  "noreply@herald.local",
	})

	result := ch.Send(context.Background(), "a@example.com", "s", "b",
		map[string]any{"event_id": "evt-1"})

	assert.Equal(t, types.DeliveryFailed, result.Status)
	assert.Contains(t, result.Detail, "writing email artifact")
}

func TestEmailChannel_ResolveRecipient(t *testing.T) {
	ch := NewEmailChannel(EmailConfig{OutputDir: t.TempDir(), FromAddr: "x@y"})

	got, err := ch.ResolveRecipient(map[string]any{"recipient": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got)

	_, err = ch.ResolveRecipient(map[string]any{"user_id": "u-1"})
	assert.Error(t, err)

	_, err = ch.ResolveRecipient(map[string]any{"recipient": 42})
	assert.Error(t, err)
}

func TestEmailChannel_ValidateConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	ch := NewEmailChannel(EmailConfig{OutputDir: dir, FromAddr: "x@y"})
	require.NoError(t, ch.ValidateConfig())

	// The directory is created on validation.
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Error(t, NewEmailChannel(EmailConfig{FromAddr: "x@y"}).ValidateConfig())
	assert.Error(t, NewEmailChannel(EmailConfig{OutputDir: dir}).ValidateConfig())
}
