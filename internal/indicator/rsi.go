package indicator

// RSI computes the Relative Strength Index from simple average gain and loss
// over the last period close-to-close deltas.
//
// Fewer than period+1 closes yields the neutral value 50. A window with no
// losses saturates near 100 instead of dividing by zero.
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(closes) < period+1 {
		return rsiNeutral
	}

	gains, losses := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}

	p := float64(period)
	avgGain := gains / p
	avgLoss := losses / p
	if avgLoss == 0 {
		avgLoss = rsiEpsilon
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
