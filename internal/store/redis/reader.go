package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"binarysignal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Reader serves candle windows from the per-pair streams written by Writer.
type Reader struct {
	client *goredis.Client
}

// NewReader wraps an existing client.
func NewReader(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// FetchCandles returns up to count of the most recent candles for pair,
// oldest first. A missing stream yields an empty window.
func (r *Reader) FetchCandles(ctx context.Context, pair string, count int) ([]model.Candle, error) {
	if count <= 0 {
		return nil, nil
	}
	msgs, err := r.client.XRevRangeN(ctx, model.StreamKey(pair), "+", "-", int64(count)).Result()
	if err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("xrevrange %s: %w", model.StreamKey(pair), err)
	}
	return decodeNewestFirst(msgs), nil
}

// decodeNewestFirst parses XREVRANGE entries and flips them to chronological
// order. Entries without a decodable "data" field are skipped.
func decodeNewestFirst(msgs []goredis.XMessage) []model.Candle {
	out := make([]model.Candle, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var c model.Candle
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			log.Printf("[redis-reader] unmarshal candle %s: %v", msgs[i].ID, err)
			continue
		}
		out = append(out, c)
	}
	return out
}
