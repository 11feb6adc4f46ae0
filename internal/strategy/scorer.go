// Package strategy turns a window of candles into a scored directional call.
//
// The Scorer is a linear heuristic: it starts from a neutral 50 and adds or
// subtracts fixed weights for trend, RSI extremes, volume spikes and big
// candles. The resulting confidence is a conviction score, not a calibrated
// probability.
package strategy

import (
	"fmt"
	"math"
	"time"

	"binarysignal/internal/indicator"
	"binarysignal/internal/model"

	"github.com/shopspring/decimal"
)

// MinCandles is the smallest window the scorer will evaluate.
const MinCandles = 60

// Hold reasons produced by the scorer.
const (
	ReasonInsufficientCandles = "insufficient candles"
	ReasonInsufficientLayers  = "insufficient signal layers"
)

const (
	volumeLookback    = 30
	bodyLookback      = 20
	bigCandleFactor   = 1.8
	largeCandleFactor = 2.5

	scoreNeutral   = 50
	weightTrend    = 12
	weightRSI      = 8
	weightVolume   = 6
	weightBig      = 4
	rsiOversold    = 35.0
	rsiOverbought  = 65.0
	minConfidence  = 10
	maxConfidence  = 99
	notesPrecision = 5
)

// Config holds the tunable thresholds of the scorer.
type Config struct {
	// VolumeSpikeMultiplier: last volume must exceed the trailing average times this.
	VolumeSpikeMultiplier float64 `yaml:"volume_spike_multiplier"`
	// CallThreshold: scores at or above resolve to CALL.
	CallThreshold int `yaml:"call_threshold"`
	// PutThreshold: scores at or below resolve to PUT.
	PutThreshold int `yaml:"put_threshold"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		VolumeSpikeMultiplier: 2.0,
		CallThreshold:         60,
		PutThreshold:          40,
	}
}

// Scorer evaluates candle windows. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// Option customises a Scorer.
type Option func(*Scorer)

// WithClock replaces the wall clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a Scorer with the given thresholds.
func NewScorer(cfg Config, opts ...Option) *Scorer {
	s := &Scorer{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the scorer thresholds.
func (s *Scorer) Config() Config { return s.cfg }

// Features are the intermediate values the score is built from.
type Features struct {
	SMA5       float64
	SMA20      float64
	SMA50      float64 // computed for future signal layers; not used for gating
	HasSMA50   bool
	RSI        float64
	PriceDelta float64
	AvgVolume  float64
	VolSpike   bool
	AvgBody    float64
	BigCandle  bool // previous candle body vs average
	Bullish    bool
	Bearish    bool
	Size       model.CandleSize // last candle body vs average
}

// Layers counts the independent confirmations present.
func (f Features) Layers() int {
	n := 0
	if f.Bullish || f.Bearish {
		n++
	}
	if f.VolSpike {
		n++
	}
	if f.BigCandle {
		n++
	}
	return n
}

// Score applies the additive weights to the neutral base, then clamps to [10,99].
func (f Features) Score() int {
	score := scoreNeutral
	if f.Bullish {
		score += weightTrend
	}
	if f.Bearish {
		score -= weightTrend
	}
	if f.RSI < rsiOversold {
		score += weightRSI
	}
	if f.RSI > rsiOverbought {
		score -= weightRSI
	}
	if f.VolSpike {
		score += weightVolume
	}
	if f.BigCandle {
		score += weightBig
	}
	return clamp(score, minConfidence, maxConfidence)
}

// Notes renders a human-readable diagnostic line. Not meant to be parsed.
func (f Features) Notes() string {
	return fmt.Sprintf("rsi:%d|volSpike:%t|bigCandle:%t|sma5:%s|sma20:%s",
		int(math.Round(f.RSI)), f.VolSpike, f.BigCandle,
		decimal.NewFromFloat(f.SMA5).StringFixed(notesPrecision),
		decimal.NewFromFloat(f.SMA20).StringFixed(notesPrecision))
}

// Extract computes Features for a window of at least MinCandles candles.
func (s *Scorer) Extract(candles []model.Candle) Features {
	closes := model.Closes(candles)
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	var f Features
	f.SMA5, _ = indicator.MovingAverage(closes, 5)
	f.SMA20, _ = indicator.MovingAverage(closes, 20)
	f.SMA50, f.HasSMA50 = indicator.MovingAverage(closes, 50)
	f.RSI = indicator.RSI(closes, indicator.DefaultRSIPeriod)
	f.PriceDelta = last.Close - prev.Close

	volTotal := int64(0)
	for _, c := range candles[len(candles)-volumeLookback:] {
		volTotal += c.Volume
	}
	f.AvgVolume = float64(volTotal) / volumeLookback
	f.VolSpike = float64(last.Volume) > f.AvgVolume*s.cfg.VolumeSpikeMultiplier

	bodyTotal := 0.0
	for i := len(candles) - bodyLookback; i < len(candles); i++ {
		bodyTotal += candles[i].Body()
	}
	f.AvgBody = bodyTotal / bodyLookback
	f.BigCandle = prev.Body() > f.AvgBody*bigCandleFactor

	f.Bullish = f.SMA5 > f.SMA20 && f.PriceDelta > 0
	f.Bearish = f.SMA5 < f.SMA20 && f.PriceDelta < 0

	f.Size = model.CandleNormal
	if last.Body() > f.AvgBody*largeCandleFactor {
		f.Size = model.CandleLarge
	}
	return f
}

// Evaluate scores a candle window for pair. The mode does not change the
// score; boosting is applied by the orchestrator. Windows shorter than
// MinCandles and windows without any confirming layer resolve to hold.
func (s *Scorer) Evaluate(pair string, candles []model.Candle, mode model.Mode) model.ScoreResult {
	if len(candles) < MinCandles {
		return model.HoldResult(ReasonInsufficientCandles)
	}

	f := s.Extract(candles)
	if f.Layers() < 1 {
		return model.HoldResult(ReasonInsufficientLayers)
	}

	score := f.Score()
	now := s.now()
	return model.ScoreResult{
		Status:       model.StatusOK,
		Direction:    s.resolveDirection(score, f.Bullish),
		Confidence:   score,
		Entry:        candles[len(candles)-1].Close,
		EntryTS:      now.Unix(),
		EntryTimeISO: now.UTC().Format(model.ISOLayout),
		CandleSize:   f.Size,
		Notes:        f.Notes(),
	}
}

// resolveDirection applies the call/put cutoffs. Scores between them fall
// back to the trend flag so a passing window always has a direction.
func (s *Scorer) resolveDirection(score int, bullish bool) model.Direction {
	switch {
	case score >= s.cfg.CallThreshold:
		return model.DirectionCall
	case score <= s.cfg.PutThreshold:
		return model.DirectionPut
	case bullish:
		return model.DirectionCall
	default:
		return model.DirectionPut
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
