// Package indicator provides stateless technical indicator calculations over
// price sequences.
//
// Every function takes prices oldest first and looks only at the tail of the
// sequence, so callers can pass a full candle window without slicing.
package indicator

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// rsiNeutral is returned when there is not enough history to compute RSI.
const rsiNeutral = 50.0

// rsiEpsilon replaces a zero average loss so a pure uptrend saturates near 100.
const rsiEpsilon = 1e-8
