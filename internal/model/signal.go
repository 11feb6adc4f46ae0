package model

import (
	"fmt"
	"strings"
)

// Mode selects how the orchestrator treats a derived confidence.
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeBoosted Mode = "god"
)

// ParseMode maps a wire value to a Mode. Unknown or empty values are normal.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "god", "boosted":
		return ModeBoosted
	default:
		return ModeNormal
	}
}

// Direction is the binary call resolved by the scorer.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// CandleSize classifies the body of the most recent candle.
type CandleSize string

const (
	CandleNormal CandleSize = "Normal"
	CandleLarge  CandleSize = "Large"
)

// Status tags a score result or signal.
type Status string

const (
	StatusOK   Status = "ok"
	StatusHold Status = "hold"
)

// ScoreResult is the scorer's verdict on one candle window.
// Reason is set only for holds; the directional fields only for ok results.
type ScoreResult struct {
	Status       Status     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	Direction    Direction  `json:"direction,omitempty"`
	Confidence   int        `json:"confidence,omitempty"`
	Entry        float64    `json:"entry,omitempty"`
	EntryTS      int64      `json:"entry_ts,omitempty"`
	EntryTimeISO string     `json:"entry_time_iso,omitempty"`
	CandleSize   CandleSize `json:"candleSize,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// OK reports whether the result carries a direction.
func (r ScoreResult) OK() bool { return r.Status == StatusOK }

// HoldResult builds a hold ScoreResult with the given reason.
func HoldResult(reason string) ScoreResult {
	return ScoreResult{Status: StatusHold, Reason: reason}
}

// Signal is the unit broadcast to clients. It is created fresh on every
// evaluation and never mutated afterwards.
type Signal struct {
	Status       Status     `json:"status"`
	ID           string     `json:"id"`
	Pair         string     `json:"pair"`
	Direction    Direction  `json:"direction"`
	Confidence   int        `json:"confidence"`
	Entry        float64    `json:"entry"`
	EntryTS      int64      `json:"entry_ts"`
	EntryTimeISO string     `json:"entry_time_iso"`
	ExpiryTS     int64      `json:"expiry_ts"`
	Notes        string     `json:"notes"`
	CandleSize   CandleSize `json:"candleSize"`
}

// String renders a one-line summary for logs and alerts.
func (s Signal) String() string {
	return fmt.Sprintf("%s %s conf=%d entry=%g expiry=%d", s.Pair, s.Direction, s.Confidence, s.Entry, s.ExpiryTS)
}

// HoldRecord explains why no signal was produced. Never broadcast as a Signal.
type HoldRecord struct {
	Pair   string `json:"pair,omitempty"`
	Reason string `json:"reason"`
}
