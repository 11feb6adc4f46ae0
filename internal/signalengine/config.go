package signalengine

import "time"

// DefaultWindowSize is how many candles are requested per evaluation.
const DefaultWindowSize = 200

// Config holds the orchestration knobs. It is built once at startup and never
// mutated, so identical config plus identical candles gives identical output.
type Config struct {
	// MinBroadcastConfidence is the gate a computed signal must reach.
	MinBroadcastConfidence int
	// BoostDelta is added to confidence in boosted mode, capped at 99.
	BoostDelta int
	// Expiry is added to the evaluation time to form expiry_ts.
	Expiry time.Duration
	// ScanInterval is the cadence the transport should drive scan ticks at.
	ScanInterval time.Duration
	// WatchList is the ordered set of pairs for scans and auto-pick.
	WatchList []string
	// WindowSize is the candle count requested from the feed.
	WindowSize int
}

// DefaultConfig returns the stock orchestration settings.
func DefaultConfig() Config {
	return Config{
		MinBroadcastConfidence: 60,
		BoostDelta:             6,
		Expiry:                 60 * time.Second,
		ScanInterval:           5 * time.Second,
		WatchList:              []string{"EUR/USD", "GBP/USD", "USD/JPY"},
		WindowSize:             DefaultWindowSize,
	}
}
