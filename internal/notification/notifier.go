// Package notification pushes broadcast signals and operational alerts to
// channels outside the WebSocket surface (Telegram, generic webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"binarysignal/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Signal is set when the alert
// announces a broadcast signal.
type Alert struct {
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Signal  *model.Signal `json:"signal,omitempty"`
}

// SignalAlert builds the alert announcing s.
func SignalAlert(s model.Signal) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s %d%%", s.Pair, s.Direction, s.Confidence),
		Message: fmt.Sprintf("entry %g at %s, expires %d (%s candle)",
			s.Entry, s.EntryTimeISO, s.ExpiryTS, s.CandleSize),
		Signal: &s,
	}
}

// FeedAlert builds the alert raised when the candle feed circuit changes state.
func FeedAlert(from, to string) Alert {
	level := AlertInfo
	if to == "OPEN" {
		level = AlertCritical
	}
	return Alert{
		Level:   level,
		Title:   "Candle feed " + to,
		Message: fmt.Sprintf("feed circuit moved %s -> %s", from, to),
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every configured backend. One failing backend
// does not stop delivery to the others.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
