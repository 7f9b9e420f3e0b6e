package indicator

import "stock-trading-bot/internal/broker"

// RSIResult is a Relative Strength Index value in [0,100].
type RSIResult struct {
	Value float64
	Valid bool
}

// RSI calculates the Relative Strength Index over the last period changes.
// RSI is 100 exactly when the window contains no losses.
func RSI(candles []broker.Candle, period int) RSIResult {
	if period <= 0 || len(candles) < period+1 {
		return RSIResult{}
	}

	gains, losses := 0.0, 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return RSIResult{Value: 100, Valid: true}
	}

	rs := avgGain / avgLoss
	return RSIResult{Value: Round2(100 - 100/(1+rs)), Valid: true}
}

// StochasticResult holds %K, %D and their crossover on the last two bars.
type StochasticResult struct {
	K           float64
	D           float64
	GoldenCross bool // %K crossed above %D
	DeadCross   bool // %K crossed below %D
	Valid       bool
}

// Stochastic calculates %K over kPeriod and %D as the SMA of the last
// dPeriod %K values.
func Stochastic(candles []broker.Candle, kPeriod, dPeriod int) StochasticResult {
	// Crossover detection needs one extra %D sample
	if len(candles) < kPeriod+dPeriod {
		return StochasticResult{}
	}

	kAt := func(end int) (float64, bool) {
		window := candles[end-kPeriod : end]
		high, low := highestLowest(window)
		if high == low {
			return 0, false
		}
		return (candles[end-1].Close - low) / (high - low) * 100, true
	}

	dAt := func(end int) (float64, bool) {
		sum := 0.0
		for i := 0; i < dPeriod; i++ {
			k, ok := kAt(end - i)
			if !ok {
				return 0, false
			}
			sum += k
		}
		return sum / float64(dPeriod), true
	}

	kNow, ok1 := kAt(len(candles))
	dNow, ok2 := dAt(len(candles))
	kPrev, ok3 := kAt(len(candles) - 1)
	dPrev, ok4 := dAt(len(candles) - 1)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return StochasticResult{}
	}

	return StochasticResult{
		K:           Round2(kNow),
		D:           Round2(dNow),
		GoldenCross: kPrev <= dPrev && kNow > dNow,
		DeadCross:   kPrev >= dPrev && kNow < dNow,
		Valid:       true,
	}
}

// WilliamsRResult is a Williams %R value in [-100,0].
type WilliamsRResult struct {
	Value float64
	Valid bool
}

// WilliamsR calculates Williams %R over the last period candles.
func WilliamsR(candles []broker.Candle, period int) WilliamsRResult {
	if period <= 0 || len(candles) < period {
		return WilliamsRResult{}
	}
	window := candles[len(candles)-period:]
	high, low := highestLowest(window)
	if high == low {
		return WilliamsRResult{}
	}
	close := candles[len(candles)-1].Close
	return WilliamsRResult{Value: Round2((high - close) / (high - low) * -100), Valid: true}
}
