package sim

import (
	"context"
	"math"
	"testing"
	"time"
)

var frozen = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

func TestFetchCandles_ShapeAndOrder(t *testing.T) {
	f := New(WithSeed(1), WithClock(func() time.Time { return frozen }))
	candles, err := f.FetchCandles(context.Background(), "EUR/USD", 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 200 {
		t.Fatalf("expected 200 candles, got %d", len(candles))
	}
	if candles[0].Time != frozen.Unix()-200 || candles[199].Time != frozen.Unix()-1 {
		t.Errorf("unexpected time range %d..%d", candles[0].Time, candles[199].Time)
	}
	for i, c := range candles {
		if i > 0 && c.Time <= candles[i-1].Time {
			t.Fatalf("candle %d not after previous", i)
		}
		if c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
			t.Errorf("candle %d: wicks do not bracket body: %+v", i, c)
		}
		if c.Volume < 100 || c.Volume >= 1000 {
			t.Errorf("candle %d: volume %d out of [100,1000)", i, c.Volume)
		}
		if math.Abs(c.Close-1.09) > 0.0007 {
			t.Errorf("candle %d: close %v too far from base", i, c.Close)
		}
	}
}

func TestFetchCandles_Seeded(t *testing.T) {
	clock := WithClock(func() time.Time { return frozen })
	a, _ := New(WithSeed(9), clock).FetchCandles(context.Background(), "GBP/USD", 60)
	b, _ := New(WithSeed(9), clock).FetchCandles(context.Background(), "GBP/USD", 60)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("candle %d differs with the same seed", i)
		}
	}
}

func TestFetchCandles_JPYPrecision(t *testing.T) {
	candles, _ := New(WithSeed(3)).FetchCandles(context.Background(), "USD/JPY", 50)
	for i, c := range candles {
		if scaled := c.Close * 100; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Errorf("candle %d: close %v has more than 2 decimals", i, c.Close)
		}
	}
}

func TestFetchCandles_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().FetchCandles(ctx, "EUR/USD", 10); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestBasePrice(t *testing.T) {
	tests := map[string]float64{
		"EUR/USD": 1.09,
		"GBP/JPY": 1.28,
		"USD/JPY": 154.5,
		"AUD/USD": 1.0,
	}
	for pair, want := range tests {
		if got := BasePrice(pair); got != want {
			t.Errorf("BasePrice(%s) = %v, want %v", pair, got, want)
		}
	}
}
