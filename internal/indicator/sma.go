package indicator

// MovingAverage returns the arithmetic mean of the last period prices.
// ok is false when period is not positive or fewer than period prices exist;
// callers must treat that as "indicator unavailable", never as zero.
func MovingAverage(prices []float64, period int) (value float64, ok bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), true
}
