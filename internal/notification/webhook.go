package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"binarysignal/internal/model"
)

// Webhook event kinds, sent in the "event" field and the X-Event header.
const (
	EventSignal = "signal"
	EventAlert  = "alert"
)

// WebhookEvent is the JSON document POSTed for every alert. Signal is the
// broadcast signal for EventSignal and omitted otherwise.
type WebhookEvent struct {
	Event   string        `json:"event"`
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Signal  *model.Signal `json:"signal,omitempty"`
	TS      string        `json:"ts"`
}

// NewWebhookEvent wraps alert for delivery at now.
func NewWebhookEvent(alert Alert, now time.Time) WebhookEvent {
	ev := WebhookEvent{
		Event:   EventAlert,
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		Signal:  alert.Signal,
		TS:      now.UTC().Format(model.ISOLayout),
	}
	if alert.Signal != nil {
		ev.Event = EventSignal
	}
	return ev
}

// WebhookNotifier POSTs alerts as WebhookEvent JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	ev := NewWebhookEvent(alert, w.now())
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event", ev.Event)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send %s: %w", ev.Event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s rejected with status %d", ev.Event, resp.StatusCode)
	}

	log.Printf("[webhook] sent %s %q", ev.Event, ev.Title)
	return nil
}
