// Package redis stores candles in Redis Streams and carries signal messages
// over Redis PubSub.
//
// Key layout:
//
//	candle:{pair}          stream, one entry per candle, field "data" holds JSON
//	candle:latest:{pair}   last written candle, expires after 30m
//	pub:candle:{pair}      pubsub channel, every written candle
//	pub:signal             pubsub channel, outbound signal/hold messages
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

func latestKey(pair string) string { return "candle:latest:" + pair }
func candleChannel(pair string) string { return "pub:candle:" + pair }
