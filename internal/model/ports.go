package model

import "context"

// CandleFeed supplies a window of recent candles for a pair.
// Implementations return the candles oldest first and should return at least
// count candles when the source has them. Fewer is tolerated by callers.
type CandleFeed interface {
	FetchCandles(ctx context.Context, pair string, count int) ([]Candle, error)
}

// CandleFeedFunc adapts a plain function to the CandleFeed interface.
type CandleFeedFunc func(ctx context.Context, pair string, count int) ([]Candle, error)

// FetchCandles calls f(ctx, pair, count).
func (f CandleFeedFunc) FetchCandles(ctx context.Context, pair string, count int) ([]Candle, error) {
	return f(ctx, pair, count)
}

// CandleWriter appends candles for a pair to a backing store.
// Used by the candle generator to seed the Redis and SQLite feeds.
type CandleWriter interface {
	WriteCandles(ctx context.Context, pair string, candles []Candle) error
	Close() error
}
