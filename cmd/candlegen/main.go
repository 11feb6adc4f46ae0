// Command candlegen seeds the Redis or SQLite candle store with simulated
// candles, so signalserver can run against a persistent feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"binarysignal/config"
	"binarysignal/internal/marketdata/sim"
	"binarysignal/internal/model"
	redisstore "binarysignal/internal/store/redis"
	sqlitestore "binarysignal/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	count := flag.Int("count", 300, "candles to write per pair")
	follow := flag.Bool("follow", false, "keep appending one candle per pair every minute")
	seed := flag.Int64("seed", 0, "random seed (0 = time based)")
	flag.Parse()

	if err := run(*count, *follow, *seed); err != nil {
		log.Fatalf("[candlegen] %v", err)
	}
}

func run(count int, follow bool, seed int64) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	writer, err := openWriter(cfg)
	if err != nil {
		return err
	}
	defer writer.Close()

	var opts []sim.Option
	if seed != 0 {
		opts = append(opts, sim.WithSeed(seed))
	}
	gen := sim.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watch := cfg.WatchList()
	if err := seedAll(ctx, gen, writer, watch, count); err != nil {
		return err
	}
	log.Printf("[candlegen] wrote %d candles for %d pairs to %s", count, len(watch), cfg.FeedSource)

	if !follow {
		return nil
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[candlegen] stopped")
			return nil
		case <-ticker.C:
			if err := seedAll(ctx, gen, writer, watch, 1); err != nil {
				log.Printf("[candlegen] append failed: %v", err)
			}
		}
	}
}

func openWriter(cfg *config.Config) (model.CandleWriter, error) {
	switch cfg.FeedSource {
	case config.FeedRedis:
		rdb, err := redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return redisstore.NewWriter(rdb), nil
	case config.FeedSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("FEED_SOURCE must be %q or %q, got %q", config.FeedRedis, config.FeedSQLite, cfg.FeedSource)
	}
}

func seedAll(ctx context.Context, gen *sim.Feed, w model.CandleWriter, watch []string, count int) error {
	for _, pair := range watch {
		candles, err := gen.FetchCandles(ctx, pair, count)
		if err != nil {
			return err
		}
		if err := w.WriteCandles(ctx, pair, candles); err != nil {
			return err
		}
	}
	return nil
}
