package types

import (
	"time"
)

// EventType distinguishes how an event entered the pipeline.
type EventType string

const (
	// EventRealtime marks events supplied directly by an API caller.
	EventRealtime EventType = "realtime"

	// EventScheduled marks events produced by a cron-triggered source.
	EventScheduled EventType = "scheduled"
)

// Event is a unit of input data that may trigger notifications. Events are
// immutable once created except for the Processed transition, which flips to
// true exactly once when every (definition, channel) pairing derived from the
// event has reached a terminal delivery state.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	Processed bool           `json:"processed"`
}

// NotificationDefinition is a registry entry binding an event source to a
// template, an ordered set of channels, and an optional dedup policy.
// Definitions are immutable at runtime: loaded once at process start and
// read-only thereafter.
//
// Invariants enforced at registration time: TemplateID must resolve to a known
// template, every name in Channels must resolve to a registered channel, and
// DedupPolicyID, if present, must resolve to a registered policy.
type NotificationDefinition struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Channels      []string `json:"channels" yaml:"channels"`
	TemplateID    string   `json:"template_id" yaml:"template_id"`
	EventSourceID string   `json:"event_source_id" yaml:"event_source_id"`
	DedupPolicyID string   `json:"dedup_policy_id,omitempty" yaml:"dedup_policy_id"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
}

// RenderedMessage is the output of template rendering. Ephemeral; never
// persisted independently of the delivery attempt that carries its content.
type RenderedMessage struct {
	Subject string
	Body    string
}

// AttemptStatus enumerates the terminal and transient states of a delivery
// attempt.
type AttemptStatus string

const (
	AttemptPending          AttemptStatus = "pending"
	AttemptSent             AttemptStatus = "sent"
	AttemptFailed           AttemptStatus = "failed"
	AttemptSkippedDuplicate AttemptStatus = "skipped_duplicate"
)

// DeliveryAttempt records one channel dispatch outcome for one
// (definition, channel, event) combination. Immutable once terminal.
type DeliveryAttempt struct {
	ID           string        `json:"id"`
	DefinitionID string        `json:"notification_definition_id"`
	EventID      string        `json:"event_id"`
	ChannelName  string        `json:"channel_name"`
	Recipient    string        `json:"recipient"`
	Subject      string        `json:"subject"`
	Content      string        `json:"content"`
	ContentHash  string        `json:"content_hash"`
	Status       AttemptStatus `json:"status"`
	Detail       string        `json:"detail,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
}

// DeduplicationRecord marks a fingerprint as sent. Keyed by content hash only,
// with no foreign key to a specific event: dedup is content/time scoped, so two
// different events producing identical rendered content within the window
// collide by design.
type DeduplicationRecord struct {
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeliveryStatus is the coarse outcome a channel reports for a single send.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryResult is returned by Channel.Send. Ordinary delivery failures are
// expressed as a failed result, not an error; errors are reserved for
// programmer mistakes caught at configuration time.
type DeliveryResult struct {
	Status DeliveryStatus `json:"status"`
	Detail string         `json:"detail,omitempty"`
}

// Template declares a renderable message: a subject line, a body in
// text/template syntax, and the variable names the body requires. The declared
// variables drive missing-variable detection before execution.
type Template struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Subject   string   `json:"subject" yaml:"subject"`
	Body      string   `json:"body" yaml:"body"`
	Variables []string `json:"variables" yaml:"variables"`
}

// IngestReceipt summarizes the outcome of one ingested event for the caller.
type IngestReceipt struct {
	EventID  string            `json:"event_id"`
	Attempts []DeliveryAttempt `json:"attempts"`
}
