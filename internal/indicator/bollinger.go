package indicator

import (
	"math"

	"stock-trading-bot/internal/broker"
)

// BandZone classifies where price sits within the Bollinger Bands.
type BandZone string

const (
	ZoneAboveUpper BandZone = "ABOVE_UPPER"
	ZoneUpper      BandZone = "UPPER"
	ZoneMiddle     BandZone = "MIDDLE"
	ZoneLower      BandZone = "LOWER"
	ZoneBelowLower BandZone = "BELOW_LOWER"
)

// BollingerResult holds band levels, %B, bandwidth and zone classification.
type BollingerResult struct {
	Upper     float64
	Middle    float64
	Lower     float64
	PercentB  float64 // 0 at lower band, 100 at upper band
	Bandwidth float64 // (upper-lower)/middle as a percentage
	Zone      BandZone
	Valid     bool
}

// Bollinger calculates Bollinger Bands over the last period closes.
func Bollinger(candles []broker.Candle, period int, stdDevMultiplier float64) BollingerResult {
	if period <= 1 || len(candles) < period {
		return BollingerResult{}
	}

	middle := SMA(candles, period).Value
	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))
	if middle == 0 {
		return BollingerResult{}
	}

	upper := middle + stdDev*stdDevMultiplier
	lower := middle - stdDev*stdDevMultiplier
	price := candles[len(candles)-1].Close

	percentB := 50.0
	if upper != lower {
		percentB = (price - lower) / (upper - lower) * 100
	}

	var zone BandZone
	switch {
	case price > upper:
		zone = ZoneAboveUpper
	case percentB >= 80:
		zone = ZoneUpper
	case price < lower:
		zone = ZoneBelowLower
	case percentB <= 20:
		zone = ZoneLower
	default:
		zone = ZoneMiddle
	}

	return BollingerResult{
		Upper:     upper,
		Middle:    middle,
		Lower:     lower,
		PercentB:  Round2(percentB),
		Bandwidth: Round2((upper - lower) / middle * 100),
		Zone:      zone,
		Valid:     true,
	}
}
