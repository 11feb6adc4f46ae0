package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"binarysignal/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts to a chat through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for chatID using a @BotFather token.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// sendMessageResponse is the subset of the Bot API reply used for errors.
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      telegramText(alert),
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: encode: %w", err)
	}

	endpoint := t.apiBase + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var reply sendMessageResponse
		if json.NewDecoder(resp.Body).Decode(&reply) == nil && reply.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, reply.Description)
		}
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent %s", alert.Title)
	return nil
}

var levelEmoji = map[AlertLevel]string{
	AlertInfo:     "ℹ️",
	AlertWarning:  "⚠️",
	AlertCritical: "🚨",
}

// telegramText renders alert as MarkdownV2. Signals get a compact card with
// the entry and expiry in code spans so they can be copied.
func telegramText(alert Alert) string {
	var b strings.Builder
	if s := alert.Signal; s != nil {
		arrow := "⬆️"
		if s.Direction == model.DirectionPut {
			arrow = "⬇️"
		}
		fmt.Fprintf(&b, "%s *%s %s*\n\n", arrow, escapeMarkdown(s.Pair), s.Direction)
		fmt.Fprintf(&b, "confidence %d%%\n", s.Confidence)
		fmt.Fprintf(&b, "entry `%s`\n", escapeMarkdown(fmt.Sprintf("%g", s.Entry)))
		fmt.Fprintf(&b, "expiry `%s`", escapeMarkdown(time.Unix(s.ExpiryTS, 0).UTC().Format("15:04:05")))
		return b.String()
	}

	emoji, ok := levelEmoji[alert.Level]
	if !ok {
		emoji = levelEmoji[AlertInfo]
	}
	fmt.Fprintf(&b, "%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	return b.String()
}

const markdownSpecials = "_*[]()~`>#+-=|{}.!"

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
