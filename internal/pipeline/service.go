// Package pipeline orchestrates event ingestion: persistence, registry
// matching, template rendering, dedup gating, and channel fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"herald/internal/channels"
	"herald/internal/dedup"
	"herald/internal/events"
	"herald/internal/types"
)

// Store is the minimal persistence surface the pipeline needs. db.Store
// satisfies it.
type Store interface {
	SaveEvent(ctx context.Context, e *types.Event) error
	MarkEventProcessed(ctx context.Context, eventID string) error
	SaveDeliveryAttempt(ctx context.Context, a *types.DeliveryAttempt) error
}

// DefinitionFinder resolves the notification definitions an event source maps
// to. The notification registry satisfies it.
type DefinitionFinder interface {
	FindByEventSource(eventSourceID string) []types.NotificationDefinition
}

// Renderer produces the message for a template and event data.
type Renderer interface {
	Render(id string, vars map[string]any) (types.RenderedMessage, error)
}

// ChannelResolver looks up a registered channel by name.
type ChannelResolver interface {
	Resolve(name string) (channels.Channel, error)
}

// PolicyResolver looks up a registered dedup policy by name.
type PolicyResolver interface {
	Resolve(name string) (dedup.Policy, error)
}

// Config holds the dependencies for creating a Service.
type Config struct {
	Store        Store
	Definitions  DefinitionFinder
	Renderer     Renderer
	Channels     ChannelResolver
	Policies     PolicyResolver
	MaxBatchSize int
	Logger       types.Logger
}

// Service is the delivery pipeline. One Ingest call carries one event from
// persistence to terminal delivery attempts for every matched
// (definition, channel) pairing.
type Service struct {
	store        Store
	definitions  DefinitionFinder
	renderer     Renderer
	channels     ChannelResolver
	policies     PolicyResolver
	locks        *dedup.KeyedMutex
	realtime     *events.RealtimeSource
	maxBatchSize int
	logger       types.Logger
	clock        types.Clock
}

// NewService creates the pipeline service. MaxBatchSize defaults to 100.
func NewService(cfg Config) *Service {
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Service{
		store:        cfg.Store,
		definitions:  cfg.Definitions,
		renderer:     cfg.Renderer,
		channels:     cfg.Channels,
		policies:     cfg.Policies,
		locks:        dedup.NewKeyedMutex(),
		realtime:     events.NewRealtimeSource("realtime"),
		maxBatchSize: maxBatch,
		logger:       logger,
		clock:        types.RealClock{},
	}
}

// SetClock replaces the clock. Used by tests.
func (s *Service) SetClock(clock types.Clock) {
	s.clock = clock
}

// IngestRealtime validates a batch of caller-supplied payloads and ingests
// each as a realtime event. Every payload must be a non-empty mapping with a
// string "source" field naming the event source.
//
// Validation failures reject the whole batch before anything is persisted.
// After that point events are independent: one event's failure does not stop
// the rest, and the joined error is returned alongside the receipts that
// succeeded.
func (s *Service) IngestRealtime(ctx context.Context, payloads []map[string]any) ([]*types.IngestReceipt, error) {
	if len(payloads) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationEmptyEvent,
			"event batch is empty", nil)
	}
	if len(payloads) > s.maxBatchSize {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationBatchSize,
			fmt.Sprintf("batch of %d exceeds maximum of %d", len(payloads), s.maxBatchSize),
			nil, map[string]any{"max_batch_size": s.maxBatchSize})
	}
	validated, err := s.realtime.Produce(ctx, events.TriggerContext{Payloads: payloads})
	if err != nil {
		return nil, err
	}
	for i, payload := range validated {
		if _, ok := payload["source"].(string); !ok {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
				fmt.Sprintf("event payload %d is missing the source field", i),
				nil, map[string]any{"field": "source"})
		}
	}

	receipts := make([]*types.IngestReceipt, 0, len(validated))
	var errs []error
	for _, payload := range validated {
		event := &types.Event{
			Type:   types.EventRealtime,
			Source: payload["source"].(string),
			Data:   payload,
		}
		receipt, err := s.Ingest(ctx, event)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		receipts = append(receipts, receipt)
	}
	return receipts, errors.Join(errs...)
}

// Ingest carries one event through the pipeline:
//
//  1. Persist the event.
//  2. Match it to enabled definitions by event source id. No match marks the
//     event processed immediately.
//  3. For every (definition, channel) pairing, resolve the recipient, render
//     the template, apply the dedup gate, and dispatch. Each pairing reaches
//     exactly one terminal attempt; a failure in one never stops the others.
//  4. Mark the event processed.
func (s *Service) Ingest(ctx context.Context, event *types.Event) (*types.IngestReceipt, error) {
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore,
			"persisting event", err)
	}
	EventsIngestedTotal.WithLabelValues(string(event.Type), event.Source).Inc()

	receipt := &types.IngestReceipt{EventID: event.ID}

	defs := s.definitions.FindByEventSource(event.Source)
	if len(defs) == 0 {
		s.logger.Info("no definitions matched event",
			"event_id", event.ID,
			"source", event.Source,
		)
		if err := s.store.MarkEventProcessed(ctx, event.ID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore,
				"marking event processed", err)
		}
		return receipt, nil
	}

	for _, def := range defs {
		for _, channelName := range def.Channels {
			attempt := s.deliver(ctx, event, def, channelName)
			s.persistAttempt(ctx, attempt)
			receipt.Attempts = append(receipt.Attempts, *attempt)
		}
	}

	if err := s.store.MarkEventProcessed(ctx, event.ID); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore,
			"marking event processed", err)
	}
	return receipt, nil
}

// deliver produces the single terminal attempt for one (definition, channel)
// pairing. It never returns an error: every failure mode is folded into the
// attempt's status and detail.
func (s *Service) deliver(ctx context.Context, event *types.Event, def types.NotificationDefinition, channelName string) *types.DeliveryAttempt {
	attempt := &types.DeliveryAttempt{
		ID:           uuid.NewString(),
		DefinitionID: def.ID,
		EventID:      event.ID,
		ChannelName:  channelName,
		Status:       types.AttemptPending,
		CreatedAt:    s.clock.Now(),
	}

	channel, err := s.channels.Resolve(channelName)
	if err != nil {
		return s.fail(attempt, fmt.Sprintf("resolving channel: %v", err))
	}

	recipient, err := channel.ResolveRecipient(event.Data)
	if err != nil {
		return s.fail(attempt, fmt.Sprintf("resolving recipient: %v", err))
	}
	attempt.Recipient = recipient

	msg, err := s.renderer.Render(def.TemplateID, event.Data)
	if err != nil {
		RenderFailuresTotal.WithLabelValues(def.TemplateID).Inc()
		return s.fail(attempt, fmt.Sprintf("rendering template %s: %v", def.TemplateID, err))
	}
	attempt.Subject = msg.Subject
	attempt.Content = msg.Body
	attempt.ContentHash = dedup.Fingerprint(msg.Subject, msg.Body, channelName, recipient)

	if def.DedupPolicyID == "" {
		return s.dispatch(ctx, attempt, channel, event, msg)
	}

	policy, err := s.policies.Resolve(def.DedupPolicyID)
	if err != nil {
		return s.fail(attempt, fmt.Sprintf("resolving dedup policy: %v", err))
	}

	// The per-fingerprint lock spans check, send, and record so that two
	// concurrent ingests of identical content cannot both pass the gate.
	unlock := s.locks.Lock(attempt.ContentHash)
	defer unlock()

	ok, err := policy.ShouldSend(ctx, attempt.ContentHash)
	if err != nil {
		return s.fail(attempt, fmt.Sprintf("dedup check: %v", err))
	}
	if !ok {
		DedupSuppressedTotal.WithLabelValues(policy.Name()).Inc()
		DeliveryAttemptsTotal.WithLabelValues(channelName, string(types.AttemptSkippedDuplicate)).Inc()
		attempt.Status = types.AttemptSkippedDuplicate
		attempt.Detail = fmt.Sprintf("suppressed by %s policy", policy.Name())
		s.logger.Info("delivery suppressed as duplicate",
			"event_id", event.ID,
			"definition_id", def.ID,
			"channel", channelName,
			"content_hash", attempt.ContentHash,
		)
		return attempt
	}

	s.dispatch(ctx, attempt, channel, event, msg)
	if attempt.Status != types.AttemptSent {
		return attempt
	}

	// Recorded only after a confirmed send, so a failed dispatch never
	// suppresses a later retry of the same content.
	if err := policy.Record(ctx, attempt.ContentHash); err != nil {
		s.logger.Error("recording dedup fingerprint failed",
			"event_id", event.ID,
			"content_hash", attempt.ContentHash,
			"error", err,
		)
	}
	return attempt
}

// dispatch invokes the channel and finalizes the attempt as sent or failed.
func (s *Service) dispatch(ctx context.Context, attempt *types.DeliveryAttempt, channel channels.Channel, event *types.Event, msg types.RenderedMessage) *types.DeliveryAttempt {
	metadata := map[string]any{
		"event_id":      event.ID,
		"definition_id": attempt.DefinitionID,
	}

	started := s.clock.Now()
	result := channel.Send(ctx, attempt.Recipient, msg.Subject, msg.Body, metadata)
	DeliveryDuration.WithLabelValues(attempt.ChannelName).Observe(time.Since(started).Seconds())

	if result.Status != types.DeliverySent {
		return s.fail(attempt, result.Detail)
	}

	sentAt := s.clock.Now()
	attempt.Status = types.AttemptSent
	attempt.Detail = result.Detail
	attempt.SentAt = &sentAt
	DeliveryAttemptsTotal.WithLabelValues(attempt.ChannelName, string(types.AttemptSent)).Inc()
	s.logger.Info("delivery sent",
		"event_id", event.ID,
		"definition_id", attempt.DefinitionID,
		"channel", attempt.ChannelName,
		"recipient", attempt.Recipient,
	)
	return attempt
}

func (s *Service) fail(attempt *types.DeliveryAttempt, detail string) *types.DeliveryAttempt {
	attempt.Status = types.AttemptFailed
	attempt.Detail = detail
	DeliveryAttemptsTotal.WithLabelValues(attempt.ChannelName, string(types.AttemptFailed)).Inc()
	s.logger.Warn("delivery failed",
		"event_id", attempt.EventID,
		"definition_id", attempt.DefinitionID,
		"channel", attempt.ChannelName,
		"detail", detail,
	)
	return attempt
}

// persistAttempt saves a terminal attempt. A store failure here is logged and
// swallowed: the delivery already happened, and losing the audit row must not
// fail the whole ingest.
func (s *Service) persistAttempt(ctx context.Context, attempt *types.DeliveryAttempt) {
	if err := s.store.SaveDeliveryAttempt(ctx, attempt); err != nil {
		s.logger.Error("persisting delivery attempt failed",
			"attempt_id", attempt.ID,
			"event_id", attempt.EventID,
			"error", err,
		)
	}
}
