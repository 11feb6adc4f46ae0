// Package feed holds the protection layer placed in front of any candle
// source: a circuit breaker against a failing upstream and ordering checks on
// the returned window.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"binarysignal/internal/model"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	// MaxFailures consecutive fetch errors before the breaker opens. Default 5.
	MaxFailures int
	// ResetTimeout before a half-open trial is allowed. Default 10s.
	ResetTimeout time.Duration
	// Timeout bounds a single upstream call. Default 5s.
	Timeout time.Duration
}

func (c *GuardConfig) defaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Guard wraps a CandleFeed with a circuit breaker and returns windows sorted
// oldest first. It satisfies model.CandleFeed itself.
type Guard struct {
	next    model.CandleFeed
	breaker *CircuitBreaker
	timeout time.Duration
	log     *slog.Logger
}

// NewGuard wraps next. onStateChange may be nil.
func NewGuard(next model.CandleFeed, cfg GuardConfig, onStateChange func(from, to State)) *Guard {
	cfg.defaults()
	g := &Guard{
		next:    next,
		breaker: NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		timeout: cfg.Timeout,
		log:     slog.Default().With(slog.String("component", "feed")),
	}
	g.breaker.OnStateChange = func(from, to State) {
		g.log.Warn("feed breaker transition", slog.String("from", from.String()), slog.String("to", to.String()))
		if onStateChange != nil {
			onStateChange(from, to)
		}
	}
	return g
}

// State returns the breaker state for health reporting.
func (g *Guard) State() State { return g.breaker.CurrentState() }

// FetchCandles fetches through the breaker with a per-call timeout. An open
// breaker returns ErrCircuitOpen without touching the upstream.
//
// Only upstream errors and upstream timeouts count against the breaker. When
// ctx itself is done (the requesting client went away or its own deadline
// passed) the error is returned but not counted.
func (g *Guard) FetchCandles(ctx context.Context, pair string, count int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("guarded fetch %s: %w", pair, err)
	}

	var candles []model.Candle
	err := g.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		var err error
		candles, err = g.next.FetchCandles(callCtx, pair, count)
		if err != nil && ctx.Err() != nil {
			return Uncounted(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("guarded fetch %s: %w", pair, err)
	}
	return Ordered(candles), nil
}

// Ordered returns candles sorted by time, oldest first. Already ordered input
// is returned as is; otherwise a sorted copy is made.
func Ordered(candles []model.Candle) []model.Candle {
	sorted := sort.SliceIsSorted(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	if sorted {
		return candles
	}
	cp := make([]model.Candle, len(candles))
	copy(cp, candles)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Time < cp[j].Time })
	return cp
}
