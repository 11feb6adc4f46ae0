package redis

import (
	"context"
	"fmt"
	"time"

	"binarysignal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// ~3h of 1s candles + buffer
	streamMaxLen     = 12000
	defaultLatestTTL = 30 * time.Minute
)

// Writer appends candles to per-pair Redis Streams.
type Writer struct {
	client *goredis.Client
}

// NewWriter wraps an existing client.
func NewWriter(client *goredis.Client) *Writer {
	return &Writer{client: client}
}

// WriteCandles pipelines XADD for every candle, then refreshes the latest key
// and publishes the newest candle.
func (w *Writer) WriteCandles(ctx context.Context, pair string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	stream := model.StreamKey(pair)
	pipe := w.client.Pipeline()
	for i := range candles {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]any{
				"data": string(candles[i].JSON()),
			},
		})
	}

	last := string(candles[len(candles)-1].JSON())
	pipe.Set(ctx, latestKey(pair), last, defaultLatestTTL)
	pipe.Publish(ctx, candleChannel(pair), last)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write %d candles for %s: %w", len(candles), pair, err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
