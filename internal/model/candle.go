package model

import "encoding/json"

// Candle represents one OHLCV bucket for a currency pair.
// Time is the bucket start in epoch seconds. Candles are immutable once produced.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Body returns the absolute size of the candle body (|close-open|).
func (c *Candle) Body() float64 {
	b := c.Close - c.Open
	if b < 0 {
		return -b
	}
	return b
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close prices of a window, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// StreamKey returns the Redis stream key holding candles for a pair: "candle:{pair}".
func StreamKey(pair string) string {
	return "candle:" + pair
}
