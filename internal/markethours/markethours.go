// Package markethours answers whether a pair is tradeable at a given instant.
//
// Spot FX trades around the clock from Sunday 22:00 UTC to Friday 22:00 UTC,
// except on the fixed holidays in holidays.go. Crypto pairs never close.
package markethours

import (
	"fmt"
	"strings"
	"time"
)

// Weekly FX session boundaries, UTC.
const (
	WeekOpenHour  = 22 // Sunday
	WeekCloseHour = 22 // Friday
)

// maxSearch bounds the hourly walk in NextOpen/NextClose.
const maxSearch = 10 * 24

var cryptoBases = []string{"BTC", "ETH", "SOL", "XRP", "LTC"}

// IsCrypto reports whether pair is quoted on a 24/7 crypto venue.
func IsCrypto(pair string) bool {
	p := strings.ToUpper(pair)
	for _, b := range cryptoBases {
		if strings.Contains(p, b) {
			return true
		}
	}
	return false
}

// IsMarketOpen returns true if pair can be traded at t.
func IsMarketOpen(pair string, t time.Time) bool {
	if IsCrypto(pair) {
		return true
	}
	return isFXOpen(t)
}

func isFXOpen(t time.Time) bool {
	u := t.UTC()
	if IsHoliday(u) {
		return false
	}
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return u.Hour() >= WeekOpenHour
	case time.Friday:
		return u.Hour() < WeekCloseHour
	default:
		return true
	}
}

// OpenPairs returns the subset of pairs that are open at t, preserving order.
func OpenPairs(pairs []string, t time.Time) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if IsMarketOpen(p, t) {
			out = append(out, p)
		}
	}
	return out
}

// NextOpen returns the next instant pair opens. If it is already open, t is returned.
// All session boundaries fall on the hour, so an hourly walk is exact.
func NextOpen(pair string, t time.Time) time.Time {
	if IsMarketOpen(pair, t) {
		return t
	}
	h := t.UTC().Truncate(time.Hour)
	for i := 0; i < maxSearch; i++ {
		h = h.Add(time.Hour)
		if IsMarketOpen(pair, h) {
			return h
		}
	}
	return h
}

// NextClose returns the next instant pair closes, or the zero time if it
// never closes (crypto) or is already closed.
func NextClose(pair string, t time.Time) time.Time {
	if IsCrypto(pair) || !IsMarketOpen(pair, t) {
		return time.Time{}
	}
	h := t.UTC().Truncate(time.Hour)
	for i := 0; i < maxSearch; i++ {
		h = h.Add(time.Hour)
		if !IsMarketOpen(pair, h) {
			return h
		}
	}
	return time.Time{}
}

// StatusString returns a human-readable market status for pair.
func StatusString(pair string, t time.Time) string {
	if IsCrypto(pair) {
		return "Market Open 24/7"
	}
	if IsMarketOpen(pair, t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(NextClose(pair, t).Sub(t)))
	}
	next := NextOpen(pair, t)
	return fmt.Sprintf("Market Closed, opens %s %s UTC (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
