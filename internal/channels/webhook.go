package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"herald/internal/types"
)

// Compile-time assertion that WebhookChannel implements Channel.
var _ Channel = (*WebhookChannel)(nil)

// maxResponseBodyRead limits how much of a response body is read for error
// detail.
const maxResponseBodyRead = 1024

// webhookPayload is the JSON body POSTed to the destination URL.
type webhookPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	EventID string `json:"event_id,omitempty"`
}

// WebhookChannel delivers messages as JSON over HTTP POST. Outbound calls are
// routed through a circuit breaker so a dead endpoint fails fast instead of
// holding pipeline workers on timeouts.
type WebhookChannel struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// WebhookConfig holds the parameters for constructing a WebhookChannel.
type WebhookConfig struct {
	Timeout time.Duration
	// Client overrides the HTTP client; nil means a default client bound
	// by Timeout. Used by tests to inject an httptest client.
	Client *http.Client
}

// NewWebhookChannel creates an HTTP webhook channel.
func NewWebhookChannel(cfg WebhookConfig) *WebhookChannel {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "webhook-channel",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &WebhookChannel{client: client, breaker: cb}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return "webhook" }

// ResolveRecipient reads the destination URL from the event data's
// "webhook_url" key.
func (c *WebhookChannel) ResolveRecipient(data map[string]any) (string, error) {
	raw, _ := data["webhook_url"].(string)
	if raw == "" {
		return "", fmt.Errorf("event data has no webhook_url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("webhook_url %q is not an absolute http(s) URL", raw)
	}
	return raw, nil
}

// Send POSTs the rendered message to the recipient URL. Transport failures,
// non-2xx responses, and an open breaker all come back as failed results.
func (c *WebhookChannel) Send(ctx context.Context, recipient, subject, body string, metadata map[string]any) types.DeliveryResult {
	eventID, _ := metadata["event_id"].(string)
	payload, err := json.Marshal(webhookPayload{Subject: subject, Body: body, EventID: eventID})
	if err != nil {
		return types.DeliveryResult{Status: types.DeliveryFailed, Detail: fmt.Sprintf("encoding payload: %v", err)}
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= 500 {
			// Count server errors against the breaker.
			snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyRead))
			res.Body.Close()
			return nil, fmt.Errorf("endpoint returned %d: %s", res.StatusCode, snippet)
		}
		return res, nil
	})
	if err != nil {
		return types.DeliveryResult{Status: types.DeliveryFailed, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return types.DeliveryResult{
			Status: types.DeliveryFailed,
			Detail: fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, snippet),
		}
	}

	return types.DeliveryResult{Status: types.DeliverySent, Detail: fmt.Sprintf("%d", resp.StatusCode)}
}

// ValidateConfig checks the HTTP client is usable.
func (c *WebhookChannel) ValidateConfig() error {
	if c.client == nil {
		return fmt.Errorf("webhook channel: no http client configured")
	}
	return nil
}
