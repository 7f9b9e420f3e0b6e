package indicator

import "stock-trading-bot/internal/broker"

// MACDCross classifies the MACD/signal relationship on the final two bars.
type MACDCross string

const (
	MACDGoldenCross MACDCross = "GOLDEN_CROSS"
	MACDDeadCross   MACDCross = "DEAD_CROSS"
	MACDNone        MACDCross = "NONE"
)

// MACDResult holds the MACD line, signal line, histogram and crossover state.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
	Cross     MACDCross
	Valid     bool
}

// MACD computes the MACD line as fast EMA minus slow EMA and the signal line
// as a true EMA over the MACD history, not an approximation. Crossover state
// is read from the histogram sign on the last two bars.
func MACD(candles []broker.Candle, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return MACDResult{Cross: MACDNone}
	}

	closes := Closes(candles)
	macdLine := macdHistory(closes, fastPeriod, slowPeriod)
	if len(macdLine) < signalPeriod+1 {
		return MACDResult{Cross: MACDNone}
	}

	signalNow := emaSeries(macdLine, signalPeriod)
	signalPrev := emaSeries(macdLine[:len(macdLine)-1], signalPeriod)
	if !signalNow.Valid || !signalPrev.Valid {
		return MACDResult{Cross: MACDNone}
	}

	histNow := macdLine[len(macdLine)-1] - signalNow.Value
	histPrev := macdLine[len(macdLine)-2] - signalPrev.Value

	cross := MACDNone
	switch {
	case histPrev <= 0 && histNow > 0:
		cross = MACDGoldenCross
	case histPrev >= 0 && histNow < 0:
		cross = MACDDeadCross
	}

	return MACDResult{
		Line:      macdLine[len(macdLine)-1],
		Signal:    signalNow.Value,
		Histogram: histNow,
		Cross:     cross,
		Valid:     true,
	}
}

// macdHistory returns the MACD line value for every bar from index
// slowPeriod-1 onward, using running EMAs.
func macdHistory(closes []float64, fastPeriod, slowPeriod int) []float64 {
	if len(closes) < slowPeriod {
		return nil
	}

	fastMult := 2.0 / float64(fastPeriod+1)
	slowMult := 2.0 / float64(slowPeriod+1)

	seed := func(n int) float64 {
		sum := 0.0
		for _, v := range closes[:n] {
			sum += v
		}
		return sum / float64(n)
	}

	fastEMA := seed(fastPeriod)
	for _, v := range closes[fastPeriod:slowPeriod] {
		fastEMA = v*fastMult + fastEMA*(1-fastMult)
	}
	slowEMA := seed(slowPeriod)

	history := []float64{fastEMA - slowEMA}
	for _, v := range closes[slowPeriod:] {
		fastEMA = v*fastMult + fastEMA*(1-fastMult)
		slowEMA = v*slowMult + slowEMA*(1-slowMult)
		history = append(history, fastEMA-slowEMA)
	}
	return history
}
