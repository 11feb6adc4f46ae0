package signalengine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"binarysignal/internal/feed"
	"binarysignal/internal/marketdata/sim"
	"binarysignal/internal/model"
	"binarysignal/internal/strategy"
)

var frozen = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return frozen }

// fakeFeed serves fixed windows per pair and fails for pairs in errs.
type fakeFeed struct {
	mu      sync.Mutex
	windows map[string][]model.Candle
	errs    map[string]error
	calls   []string
	counts  []int
}

func (f *fakeFeed) FetchCandles(ctx context.Context, pair string, count int) ([]model.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pair)
	f.counts = append(f.counts, count)
	f.mu.Unlock()
	if err := f.errs[pair]; err != nil {
		return nil, err
	}
	return f.windows[pair], nil
}

type recordingObserver struct {
	mu       sync.Mutex
	fetches  int
	outcomes map[string]int
}

func (o *recordingObserver) ObserveFetch(time.Duration, error) {
	o.mu.Lock()
	o.fetches++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveOutcome(kind string, _ Outcome) {
	o.mu.Lock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[kind]++
	o.mu.Unlock()
}

type panicScorer struct{}

func (panicScorer) Evaluate(string, []model.Candle, model.Mode) model.ScoreResult {
	panic("boom")
}

func flatWindow(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Time: frozen.Unix() - int64(n-i), Open: 1.09, High: 1.09, Low: 1.09, Close: 1.09, Volume: 500}
	}
	return out
}

func trendWindow(n int, start, step float64, lastVolume int64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := start + float64(i)*step
		out[i] = model.Candle{Time: frozen.Unix() - int64(n-i), Open: c - step, High: c, Low: c - step, Close: c, Volume: 500}
	}
	out[n-1].Volume = lastVolume
	return out
}

// Scores under the default scorer config:
//
//	spikeUp  → 60 CALL
//	calmUp   → 54 CALL
//	flat     → hold "insufficient signal layers"
func spikeUp() []model.Candle { return trendWindow(60, 1.0, 0.0001, 5000) }
func calmUp() []model.Candle  { return trendWindow(60, 1.0, 0.0001, 500) }

func newEngine(cfg Config, feed model.CandleFeed, opts ...Option) *Engine {
	scorer := strategy.NewScorer(strategy.DefaultConfig(), strategy.WithClock(clock))
	return New(cfg, feed, scorer, append([]Option{WithClock(clock)}, opts...)...)
}

func TestComputeSignal_AdapterError(t *testing.T) {
	errFeed := errors.New("feed down")
	feed := &fakeFeed{errs: map[string]error{"EUR/USD": errFeed}}
	out := newEngine(DefaultConfig(), feed).ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)

	if out.OK() || out.Hold == nil {
		t.Fatalf("expected hold, got %+v", out)
	}
	if out.Hold.Reason != ReasonAdapterError {
		t.Errorf("reason: got %q, want %q", out.Hold.Reason, ReasonAdapterError)
	}
	if out.Hold.Pair != "EUR/USD" {
		t.Errorf("pair: got %q", out.Hold.Pair)
	}
	if !errors.Is(out.Err, errFeed) {
		t.Errorf("expected wrapped feed error, got %v", out.Err)
	}
	if strings.Contains(string(out.Message().JSON()), "feed down") {
		t.Error("adapter error cause leaked into the wire message")
	}
}

func TestComputeSignal_NotEnoughCandles(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": flatWindow(59)}}
	out := newEngine(DefaultConfig(), feed).ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)
	if out.Hold == nil || out.Hold.Reason != ReasonNotEnoughCandles {
		t.Fatalf("expected %q hold, got %+v", ReasonNotEnoughCandles, out)
	}
	if out.Err != nil {
		t.Errorf("data shortage is not a fault, got err %v", out.Err)
	}
}

func TestComputeSignal_RequestsWindowSize(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": spikeUp()}}
	newEngine(DefaultConfig(), feed).ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)
	if len(feed.counts) != 1 || feed.counts[0] != 200 {
		t.Errorf("expected one fetch of 200 candles, got %v", feed.counts)
	}
}

func TestComputeSignal_ScorerHoldPropagatesVerbatim(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": flatWindow(60)}}
	out := newEngine(DefaultConfig(), feed).ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)
	if out.Hold == nil || out.Hold.Reason != strategy.ReasonInsufficientLayers {
		t.Fatalf("expected scorer hold, got %+v", out)
	}
}

func TestComputeSignal_PassesGate(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": spikeUp()}}
	out := newEngine(DefaultConfig(), feed).ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)

	if !out.OK() {
		t.Fatalf("expected signal, got hold %+v", out.Hold)
	}
	sig := out.Signal
	if sig.Pair != "EUR/USD" || sig.Direction != model.DirectionCall || sig.Confidence != 60 {
		t.Errorf("unexpected signal: %+v", sig)
	}
	if sig.ExpiryTS != frozen.Unix()+60 {
		t.Errorf("expiry_ts: got %d, want %d", sig.ExpiryTS, frozen.Unix()+60)
	}
	if sig.ID == "" {
		t.Error("expected non-empty id")
	}
	if sig.Status != model.StatusOK {
		t.Errorf("status: got %q", sig.Status)
	}
	if out.Hold != nil {
		t.Error("ok outcome must not carry a hold")
	}
}

func TestComputeSignal_BelowGate(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": calmUp()}}
	out := newEngine(DefaultConfig(), feed).ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)
	if out.Hold == nil {
		t.Fatalf("expected hold, got %+v", out.Signal)
	}
	if out.Hold.Reason != "confidence too low:54" {
		t.Errorf("reason: got %q, want %q", out.Hold.Reason, "confidence too low:54")
	}
}

func TestComputeSignal_BoostedModeLiftsOverGate(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": calmUp()}}
	out := newEngine(DefaultConfig(), feed).ComputeSignal(context.Background(), "EUR/USD", model.ModeBoosted)
	if !out.OK() {
		t.Fatalf("expected boosted signal, got %+v", out.Hold)
	}
	if out.Signal.Confidence != 60 {
		t.Errorf("confidence: got %d, want 60", out.Signal.Confidence)
	}
}

func TestBoost_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBroadcastConfidence = 0
	for name, window := range map[string][]model.Candle{"spike": spikeUp(), "calm": calmUp()} {
		feed := &fakeFeed{windows: map[string][]model.Candle{"P": window}}
		e := newEngine(cfg, feed)
		normal := e.ComputeSignal(context.Background(), "P", model.ModeNormal)
		boosted := e.ComputeSignal(context.Background(), "P", model.ModeBoosted)
		if !normal.OK() || !boosted.OK() {
			t.Fatalf("%s: expected both ok", name)
		}
		if boosted.Signal.Confidence < normal.Signal.Confidence || boosted.Signal.Confidence > 99 {
			t.Errorf("%s: boosted %d vs normal %d", name, boosted.Signal.Confidence, normal.Signal.Confidence)
		}
	}
}

func TestApplyBoost_Caps(t *testing.T) {
	tests := []struct{ conf, delta, want int }{
		{95, 6, 99},
		{93, 6, 99},
		{54, 6, 60},
		{99, 0, 99},
		{60, 0, 60},
	}
	for _, tt := range tests {
		if got := applyBoost(tt.conf, tt.delta); got != tt.want {
			t.Errorf("applyBoost(%d,%d) = %d, want %d", tt.conf, tt.delta, got, tt.want)
		}
	}
}

func TestForceSignal_BypassesGateOnly(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": calmUp()}}
	e := newEngine(DefaultConfig(), feed)
	out := e.ForceSignal(context.Background(), "EUR/USD", model.ModeNormal)
	if !out.OK() {
		t.Fatalf("expected forced signal, got %+v", out.Hold)
	}
	if out.Signal.Confidence != 54 {
		t.Errorf("confidence: got %d, want 54", out.Signal.Confidence)
	}
}

func TestForceSignal_CannotForceScorerHold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBroadcastConfidence = 0
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": flatWindow(200)}}
	e := newEngine(cfg, feed)
	for _, mode := range []model.Mode{model.ModeNormal, model.ModeBoosted} {
		out := e.ForceSignal(context.Background(), "EUR/USD", mode)
		if out.OK() {
			t.Fatalf("mode %s: forced a signal out of a layerless window", mode)
		}
		if out.Hold.Reason != strategy.ReasonInsufficientLayers {
			t.Errorf("reason: got %q", out.Hold.Reason)
		}
	}
}

func TestForceSignal_AdapterError(t *testing.T) {
	feed := &fakeFeed{errs: map[string]error{"EUR/USD": errors.New("nope")}}
	out := newEngine(DefaultConfig(), feed).ForceSignal(context.Background(), "EUR/USD", model.ModeNormal)
	if out.OK() || out.Hold.Reason != ReasonAdapterError {
		t.Fatalf("expected adapter-error hold, got %+v", out)
	}
}

func TestSignalIDsUnique(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": spikeUp()}}
	e := newEngine(DefaultConfig(), feed)

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				out := e.ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)
				if !out.OK() {
					t.Error("expected signal")
					return
				}
				mu.Lock()
				if seen[out.Signal.ID] {
					t.Errorf("duplicate id %s", out.Signal.ID)
				}
				seen[out.Signal.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 400 {
		t.Errorf("expected 400 unique ids, got %d", len(seen))
	}
}

func TestComputeSignal_DisconnectedCallersKeepFeedUsable(t *testing.T) {
	guard := feed.NewGuard(sim.New(sim.WithSeed(1)), feed.GuardConfig{}, nil)
	e := New(DefaultConfig(), guard, nil, WithClock(clock))

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		out := e.ComputeSignal(gone, "EUR/USD", model.ModeNormal)
		if out.Hold == nil || out.Hold.Reason != ReasonAdapterError {
			t.Fatalf("cancelled request: expected adapter-error hold, got %+v", out)
		}
	}

	out := e.ForceSignal(context.Background(), "GBP/USD", model.ModeNormal)
	if out.Hold != nil && out.Hold.Reason == ReasonAdapterError {
		t.Fatalf("live request after disconnects got %+v (err=%v)", out.Hold, out.Err)
	}
	if guard.State() != feed.StateClosed {
		t.Errorf("breaker state = %v, want CLOSED", guard.State())
	}
}

func TestComputeSignal_ScorerPanicBecomesHold(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": spikeUp()}}
	e := New(DefaultConfig(), feed, panicScorer{}, WithClock(clock))
	out := e.ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)
	if out.Hold == nil || out.Hold.Reason != ReasonEvaluationError {
		t.Fatalf("expected evaluation-error hold, got %+v", out)
	}
	if out.Err == nil {
		t.Error("expected panic cause in Err")
	}
}

func TestObserverSeesEveryEvaluation(t *testing.T) {
	obs := &recordingObserver{}
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": spikeUp()}}
	e := newEngine(DefaultConfig(), feed, WithObserver(obs))
	e.ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal)
	e.ForceSignal(context.Background(), "EUR/USD", model.ModeNormal)

	if obs.fetches != 2 {
		t.Errorf("fetches: got %d, want 2", obs.fetches)
	}
	if obs.outcomes[KindCompute] != 1 || obs.outcomes[KindForce] != 1 {
		t.Errorf("outcomes: got %v", obs.outcomes)
	}
}

func TestOutcomeMessage(t *testing.T) {
	feed := &fakeFeed{windows: map[string][]model.Candle{"EUR/USD": spikeUp(), "GBP/USD": flatWindow(60)}}
	e := newEngine(DefaultConfig(), feed)

	ok := e.ComputeSignal(context.Background(), "EUR/USD", model.ModeNormal).Message()
	if ok.Type != model.MsgSignal {
		t.Errorf("ok message type: got %q", ok.Type)
	}
	held := e.ComputeSignal(context.Background(), "GBP/USD", model.ModeNormal).Message()
	if held.Type != model.MsgHold {
		t.Errorf("hold message type: got %q", held.Type)
	}
}
