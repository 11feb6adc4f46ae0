// Package signalengine wraps the scorer with feed access, confidence boosting,
// the broadcast gate and expiry stamping.
//
// Every evaluation is an independent request/response: nothing is cached or
// shared between evaluations, so concurrent calls for the same pair are each
// correct on their own. Faults never escape as errors; they resolve to a
// HoldRecord with the cause attached to the Outcome for the caller to log.
package signalengine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"binarysignal/internal/logger"
	"binarysignal/internal/model"
	"binarysignal/internal/strategy"
)

// Hold reasons produced by the engine. Scorer reasons pass through verbatim.
const (
	ReasonNotEnoughCandles = "not-enough-candles"
	ReasonAdapterError     = "adapter-error"
	ReasonEvaluationError  = "evaluation-error"
	ReasonNoSuitableMarket = "No suitable market now"

	confidenceTooLowPrefix = "confidence too low:"
	maxConfidence          = 99
)

// Evaluation kinds, used for metrics labels.
const (
	KindCompute = "compute"
	KindForce   = "force"
)

// Scorer turns a candle window into a ScoreResult.
type Scorer interface {
	Evaluate(pair string, candles []model.Candle, mode model.Mode) model.ScoreResult
}

// Observer receives evaluation telemetry. All methods must be cheap and
// safe for concurrent use.
type Observer interface {
	ObserveFetch(d time.Duration, err error)
	ObserveOutcome(kind string, o Outcome)
}

// Outcome is the result of one evaluation: exactly one of Signal and Hold is set.
// Err carries the underlying fault for adapter or evaluation errors; it is
// never part of the broadcast surface.
type Outcome struct {
	Signal *model.Signal
	Hold   *model.HoldRecord
	Err    error
}

// OK reports whether the outcome carries a broadcastable signal.
func (o Outcome) OK() bool { return o.Signal != nil }

// Message converts the outcome into its wire envelope.
func (o Outcome) Message() model.Message {
	if o.Signal != nil {
		return model.SignalMessage(*o.Signal)
	}
	if o.Hold != nil {
		return model.HoldMessage(*o.Hold)
	}
	return model.HoldMessage(model.HoldRecord{Reason: ReasonEvaluationError})
}

func hold(pair, reason string, err error) Outcome {
	return Outcome{Hold: &model.HoldRecord{Pair: pair, Reason: reason}, Err: err}
}

// Engine orchestrates one evaluation per call.
type Engine struct {
	cfg      Config
	feed     model.CandleFeed
	scorer   Scorer
	now      func() time.Time
	seq      atomic.Uint64
	log      *slog.Logger
	observer Observer
	onFault  FaultFunc
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for ids and expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithObserver attaches evaluation telemetry.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithFaultHandler sets the callback used by AutoPick to report
// per-pair faults. Defaults to a warning log line.
func WithFaultHandler(fn FaultFunc) Option {
	return func(e *Engine) { e.onFault = fn }
}

// New creates an Engine. A nil scorer gets a default strategy.Scorer.
func New(cfg Config, feed model.CandleFeed, scorer Scorer, opts ...Option) *Engine {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	e := &Engine{
		cfg:    cfg,
		feed:   feed,
		scorer: scorer,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.scorer == nil {
		e.scorer = strategy.NewScorer(strategy.DefaultConfig(), strategy.WithClock(e.now))
	}
	if e.onFault == nil {
		e.onFault = func(pair string, err error) {
			e.log.Warn("pair evaluation fault", slog.String("pair", pair), slog.String("error", err.Error()))
		}
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// WatchList returns a copy of the configured watch list.
func (e *Engine) WatchList() []string {
	out := make([]string, len(e.cfg.WatchList))
	copy(out, e.cfg.WatchList)
	return out
}

// ComputeSignal evaluates pair and returns a Signal only when the (possibly
// boosted) confidence clears the broadcast gate.
func (e *Engine) ComputeSignal(ctx context.Context, pair string, mode model.Mode) Outcome {
	return e.evaluate(ctx, pair, mode, KindCompute)
}

// ForceSignal is ComputeSignal without the broadcast gate. It still holds
// whenever the feed fails or the scorer itself holds.
func (e *Engine) ForceSignal(ctx context.Context, pair string, mode model.Mode) Outcome {
	return e.evaluate(ctx, pair, mode, KindForce)
}

func (e *Engine) evaluate(ctx context.Context, pair string, mode model.Mode, kind string) (out Outcome) {
	start := e.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(pair, start))

	defer func() {
		if r := recover(); r != nil {
			out = hold(pair, ReasonEvaluationError, fmt.Errorf("evaluate %s: panic: %v", pair, r))
		}
		if e.observer != nil {
			e.observer.ObserveOutcome(kind, out)
		}
		e.logOutcome(ctx, kind, pair, mode, out)
	}()

	candles, err := e.fetch(ctx, pair)
	if err != nil {
		return hold(pair, ReasonAdapterError, fmt.Errorf("fetch candles %s: %w", pair, err))
	}
	if len(candles) < strategy.MinCandles {
		return hold(pair, ReasonNotEnoughCandles, nil)
	}

	base := e.scorer.Evaluate(pair, candles, mode)
	if !base.OK() {
		return hold(pair, base.Reason, nil)
	}

	conf := base.Confidence
	if mode == model.ModeBoosted {
		conf = applyBoost(conf, e.cfg.BoostDelta)
	}
	if kind == KindCompute && conf < e.cfg.MinBroadcastConfidence {
		return hold(pair, confidenceTooLowPrefix+strconv.Itoa(conf), nil)
	}

	now := e.now()
	sig := &model.Signal{
		Status:       model.StatusOK,
		ID:           e.nextID(now),
		Pair:         pair,
		Direction:    base.Direction,
		Confidence:   conf,
		Entry:        base.Entry,
		EntryTS:      base.EntryTS,
		EntryTimeISO: base.EntryTimeISO,
		ExpiryTS:     now.Add(e.cfg.Expiry).Unix(),
		Notes:        base.Notes,
		CandleSize:   base.CandleSize,
	}
	return Outcome{Signal: sig}
}

func (e *Engine) fetch(ctx context.Context, pair string) ([]model.Candle, error) {
	start := time.Now()
	candles, err := e.feed.FetchCandles(ctx, pair, e.cfg.WindowSize)
	if e.observer != nil {
		e.observer.ObserveFetch(time.Since(start), err)
	}
	return candles, err
}

// nextID combines the wall clock with a process-wide counter so ids stay
// unique even for evaluations within the same millisecond.
func (e *Engine) nextID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(e.seq.Add(1), 10)
}

func (e *Engine) logOutcome(ctx context.Context, kind, pair string, mode model.Mode, o Outcome) {
	attrs := append([]any{
		slog.String("kind", kind),
		slog.String("pair", pair),
		slog.String("mode", string(mode)),
	}, logger.LogWithTrace(ctx)...)

	switch {
	case o.Signal != nil:
		attrs = append(attrs,
			slog.String("direction", string(o.Signal.Direction)),
			slog.Int("confidence", o.Signal.Confidence),
			slog.String("id", o.Signal.ID))
		e.log.Info("signal", attrs...)
	case o.Hold != nil:
		attrs = append(attrs, slog.String("reason", o.Hold.Reason))
		e.log.Debug("hold", attrs...)
	}
}

// applyBoost adds delta to conf and caps the result at 99.
func applyBoost(conf, delta int) int {
	conf += delta
	if conf > maxConfidence {
		return maxConfidence
	}
	return conf
}
