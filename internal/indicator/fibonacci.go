package indicator

import "stock-trading-bot/internal/broker"

// FibZone classifies where the current price sits between the retracement
// levels of the lookback swing.
type FibZone string

const (
	FibAboveHigh  FibZone = "ABOVE_HIGH"
	FibShallow    FibZone = "SHALLOW"     // Above the 38.2% retracement
	FibGoldenZone FibZone = "GOLDEN_ZONE" // Between 38.2% and 61.8%
	FibDeep       FibZone = "DEEP"        // Below 61.8%, above the swing low
	FibBelowLow   FibZone = "BELOW_LOW"
)

// FibonacciResult holds retracement levels and the current price zone.
type FibonacciResult struct {
	High     float64
	Low      float64
	Level382 float64
	Level500 float64
	Level618 float64
	Zone     FibZone
	Valid    bool
}

// Fibonacci computes retracement levels over the lookback window and
// classifies the latest close. Levels are measured down from the swing high.
func Fibonacci(candles []broker.Candle, lookback int) FibonacciResult {
	if lookback <= 1 || len(candles) < lookback {
		return FibonacciResult{}
	}

	window := candles[len(candles)-lookback:]
	high, low := highestLowest(window)
	if high == low {
		return FibonacciResult{}
	}
	diff := high - low

	result := FibonacciResult{
		High:     high,
		Low:      low,
		Level382: high - diff*0.382,
		Level500: high - diff*0.500,
		Level618: high - diff*0.618,
		Valid:    true,
	}

	price := candles[len(candles)-1].Close
	switch {
	case price > high:
		result.Zone = FibAboveHigh
	case price >= result.Level382:
		result.Zone = FibShallow
	case price >= result.Level618:
		result.Zone = FibGoldenZone
	case price >= low:
		result.Zone = FibDeep
	default:
		result.Zone = FibBelowLow
	}
	return result
}
