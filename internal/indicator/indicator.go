// Package indicator provides pure, deterministic functions over candle
// windows. Every function declares a minimum history length and returns a
// result with Valid=false below it, never a degenerate numeric value.
package indicator

import (
	"math"

	"stock-trading-bot/internal/broker"
)

// Round2 rounds percentage-like outputs to two decimals so results are
// reproducible in tests.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Closes extracts the close series from a candle window.
func Closes(candles []broker.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highestLowest(candles []broker.Candle) (high, low float64) {
	high = candles[0].High
	low = candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}
