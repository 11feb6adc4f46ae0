// Package sim provides a simulated candle source for running the signal
// server without a broker connection.
//
// Each call produces a fresh window of 1-second candles ending at the current
// time. Closes are noise around a fixed per-pair base price, so the windows
// look plausible but carry no trend memory between calls.
package sim

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"binarysignal/internal/model"

	"github.com/shopspring/decimal"
)

const (
	fxNoise     = 0.0012
	cryptoNoise = 200.0
	openJitter  = 0.0008
	wickJitter  = 0.0007
	minVolume   = 100
	volumeRange = 900
)

// Feed generates candles. Safe for concurrent use.
type Feed struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Option customises a Feed.
type Option func(*Feed)

// WithSeed makes the generated windows reproducible.
func WithSeed(seed int64) Option {
	return func(f *Feed) { f.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock replaces the wall clock used to stamp candles.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// New creates a simulated feed.
func New(opts ...Option) *Feed {
	f := &Feed{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// BasePrice returns the level the simulated closes oscillate around.
func BasePrice(pair string) float64 {
	switch {
	case strings.HasPrefix(pair, "EUR"):
		return 1.09
	case strings.HasPrefix(pair, "GBP"):
		return 1.28
	case strings.HasPrefix(pair, "USD/JPY"):
		return 154.5
	default:
		return 1.0
	}
}

// Precision returns the quoted decimal places for pair: 2 for JPY crosses, 5 otherwise.
func Precision(pair string) int32 {
	if strings.Contains(pair, "JPY") {
		return 2
	}
	return 5
}

// FetchCandles returns count candles spaced one second apart, oldest first,
// the newest stamped one second before now.
func (f *Feed) FetchCandles(ctx context.Context, pair string, count int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	noise := fxNoise
	if strings.Contains(pair, "BTC") {
		noise = cryptoNoise
	}
	base := BasePrice(pair)
	places := Precision(pair)
	now := f.now().Unix()

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Candle, 0, count)
	for i := count; i >= 1; i-- {
		cl := round(base+(f.rng.Float64()-0.5)*noise, places)
		op := round(cl+(f.rng.Float64()-0.5)*openJitter, 5)
		out = append(out, model.Candle{
			Time:   now - int64(i),
			Open:   op,
			High:   math.Max(op, cl) + f.rng.Float64()*wickJitter,
			Low:    math.Min(op, cl) - f.rng.Float64()*wickJitter,
			Close:  cl,
			Volume: minVolume + f.rng.Int63n(volumeRange),
		})
	}
	return out, nil
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
