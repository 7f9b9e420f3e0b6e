package indicator

import "stock-trading-bot/internal/broker"

// VWAPResult relates the current price to the volume-weighted average price.
type VWAPResult struct {
	VWAP  float64
	Ratio float64 // Price / VWAP
	Valid bool
}

// VWAPRatio calculates the VWAP over the last period candles using the
// typical price, and the ratio of the last close to it.
func VWAPRatio(candles []broker.Candle, period int) VWAPResult {
	if period <= 0 || len(candles) < period {
		return VWAPResult{}
	}

	priceVolume, volume := 0.0, 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		typical := (candles[i].High + candles[i].Low + candles[i].Close) / 3
		priceVolume += typical * candles[i].Volume
		volume += candles[i].Volume
	}
	if volume == 0 {
		return VWAPResult{}
	}

	vwap := priceVolume / volume
	return VWAPResult{
		VWAP:  vwap,
		Ratio: Round2(candles[len(candles)-1].Close / vwap),
		Valid: true,
	}
}

// Pressure classifies the volume-spread signal of the latest candle.
type Pressure string

const (
	PressureStrongBuying  Pressure = "STRONG_BUYING"
	PressureBuying        Pressure = "BUYING"
	PressureNeutral       Pressure = "NEUTRAL"
	PressureSelling       Pressure = "SELLING"
	PressureStrongSelling Pressure = "STRONG_SELLING"
)

// VolumeSpreadResult combines volume ratio and candle body into a pressure
// signal.
type VolumeSpreadResult struct {
	VolumeRatio float64 // Latest volume / average volume
	BodyRatio   float64 // Body / range of the latest candle
	Pressure    Pressure
	Valid       bool
}

// VolumeSpread scores the last candle: volume relative to the trailing
// average, scaled by the candle body ratio and signed by direction.
func VolumeSpread(candles []broker.Candle, period int) VolumeSpreadResult {
	if period <= 0 || len(candles) < period+1 {
		return VolumeSpreadResult{Pressure: PressureNeutral}
	}

	avgVolume := 0.0
	for i := len(candles) - period - 1; i < len(candles)-1; i++ {
		avgVolume += candles[i].Volume
	}
	avgVolume /= float64(period)
	if avgVolume == 0 {
		return VolumeSpreadResult{Pressure: PressureNeutral}
	}

	last := candles[len(candles)-1]
	volumeRatio := last.Volume / avgVolume

	bodyRatio := 0.0
	if last.Range() > 0 {
		bodyRatio = last.Body() / last.Range()
	}

	score := volumeRatio * bodyRatio
	if !last.Bullish() {
		score = -score
	}

	pressure := PressureNeutral
	switch {
	case score >= 1.5:
		pressure = PressureStrongBuying
	case score >= 0.8:
		pressure = PressureBuying
	case score <= -1.5:
		pressure = PressureStrongSelling
	case score <= -0.8:
		pressure = PressureSelling
	}

	return VolumeSpreadResult{
		VolumeRatio: Round2(volumeRatio),
		BodyRatio:   Round2(bodyRatio),
		Pressure:    pressure,
		Valid:       true,
	}
}
