package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"binarysignal/internal/model"
)

var testSignal = model.Signal{
	Status:       model.StatusOK,
	ID:           "1772447400000-1",
	Pair:         "EUR/USD",
	Direction:    model.DirectionCall,
	Confidence:   72,
	Entry:        1.09012,
	EntryTS:      1772447400,
	EntryTimeISO: "2026-03-02T10:30:00.000Z",
	ExpiryTS:     1772447460,
	CandleSize:   model.CandleNormal,
}

func TestSignalAlert(t *testing.T) {
	a := SignalAlert(testSignal)
	if a.Title != "EUR/USD CALL 72%" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Signal == nil || a.Signal.ID != testSignal.ID {
		t.Errorf("expected signal attached, got %+v", a.Signal)
	}
	if !strings.Contains(a.Message, "1.09012") {
		t.Errorf("message missing entry: %q", a.Message)
	}
}

func TestFeedAlert_Level(t *testing.T) {
	if got := FeedAlert("CLOSED", "OPEN").Level; got != AlertCritical {
		t.Errorf("opening circuit should be critical, got %s", got)
	}
	if got := FeedAlert("HALF_OPEN", "CLOSED").Level; got != AlertInfo {
		t.Errorf("closing circuit should be info, got %s", got)
	}
}

func TestWebhookNotifier_PostsSignal(t *testing.T) {
	var got map[string]json.RawMessage
	var event string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		event = r.Header.Get("X-Event")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC) }
	if err := n.Send(context.Background(), SignalAlert(testSignal)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != EventSignal || string(got["event"]) != `"signal"` {
		t.Errorf("event header %q, body %s", event, got["event"])
	}
	if string(got["ts"]) != `"2026-03-02T10:30:00.000Z"` {
		t.Errorf("ts = %s", got["ts"])
	}

	var sig model.Signal
	if err := json.Unmarshal(got["signal"], &sig); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if sig != testSignal {
		t.Errorf("signal mismatch: %+v", sig)
	}
	if _, ok := got["ts"]; !ok {
		t.Error("expected ts field")
	}
}

func TestNewWebhookEvent_Alert(t *testing.T) {
	ev := NewWebhookEvent(FeedAlert("CLOSED", "OPEN"), time.Unix(0, 0))
	if ev.Event != EventAlert || ev.Level != AlertCritical || ev.Signal != nil {
		t.Errorf("unexpected event: %+v", ev)
	}
	b, _ := json.Marshal(ev)
	if strings.Contains(string(b), `"signal"`) {
		t.Errorf("feed alert should omit signal: %s", b)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Level: AlertInfo, Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var body struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	if err := n.Send(context.Background(), SignalAlert(testSignal)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if body.ChatID != "42" || body.ParseMode != "MarkdownV2" {
		t.Errorf("unexpected body: %+v", body)
	}
	if !strings.Contains(body.Text, `EUR/USD CALL`) || !strings.Contains(body.Text, `1\.09012`) {
		t.Errorf("text = %q", body.Text)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a.b-c_d!"); got != `a\.b\-c\_d\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Send(context.Context, Alert) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	a, b := &failingNotifier{}, &failingNotifier{}
	err := Multi{a, NewLogNotifier(), b}.Send(context.Background(), Alert{Title: "t"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected every backend called once, got %d and %d", a.calls, b.calls)
	}
	if err := (Multi{}).Send(context.Background(), Alert{}); err != nil {
		t.Errorf("empty Multi should succeed, got %v", err)
	}
}

func TestTelegramNotifier_ErrorDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	err := n.Send(context.Background(), FeedAlert("CLOSED", "OPEN"))
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("expected API description in error, got %v", err)
	}
}

func TestTelegramText_LevelFallback(t *testing.T) {
	text := telegramText(Alert{Level: "DEBUG", Title: "feed", Message: "ok."})
	if !strings.HasPrefix(text, "ℹ️ *feed*") || !strings.HasSuffix(text, `ok\.`) {
		t.Errorf("text = %q", text)
	}
}
