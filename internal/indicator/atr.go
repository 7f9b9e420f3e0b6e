package indicator

import (
	"math"

	"stock-trading-bot/internal/broker"
)

// ATRResult holds the Average True Range in absolute and percentage terms.
type ATRResult struct {
	Value   float64 // Absolute ATR
	Percent float64 // ATR relative to the last close
	Valid   bool
}

// ATR calculates the Average True Range over the last period candles.
func ATR(candles []broker.Candle, period int) ATRResult {
	if period <= 0 || len(candles) < period+1 {
		return ATRResult{}
	}

	trSum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trSum += tr
	}

	atr := trSum / float64(period)
	close := candles[len(candles)-1].Close
	if close <= 0 {
		return ATRResult{}
	}
	return ATRResult{
		Value:   atr,
		Percent: Round2(atr / close * 100),
		Valid:   true,
	}
}

// VolatilityState classifies the short/long ATR ratio.
type VolatilityState string

const (
	VolatilitySqueeze   VolatilityState = "SQUEEZE"   // Short ATR well below long ATR
	VolatilityExpansion VolatilityState = "EXPANSION" // Short ATR well above long ATR
	VolatilityNormal    VolatilityState = "NORMAL"
)

// SqueezeResult holds the ATR-ratio volatility regime.
type SqueezeResult struct {
	Ratio float64 // Short ATR / long ATR
	State VolatilityState
	Valid bool
}

// Squeeze compares a short ATR against a long ATR. A ratio below 0.7 marks a
// squeeze, above 1.3 an expansion.
func Squeeze(candles []broker.Candle, shortPeriod, longPeriod int) SqueezeResult {
	shortATR := ATR(candles, shortPeriod)
	longATR := ATR(candles, longPeriod)
	if !shortATR.Valid || !longATR.Valid || longATR.Value == 0 {
		return SqueezeResult{State: VolatilityNormal}
	}

	ratio := shortATR.Value / longATR.Value
	state := VolatilityNormal
	switch {
	case ratio < 0.7:
		state = VolatilitySqueeze
	case ratio > 1.3:
		state = VolatilityExpansion
	}
	return SqueezeResult{Ratio: Round2(ratio), State: state, Valid: true}
}
