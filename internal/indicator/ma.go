package indicator

import "stock-trading-bot/internal/broker"

// MAResult is a single moving-average value.
type MAResult struct {
	Value float64
	Valid bool
}

// SMA calculates the simple moving average of closes over the last period.
func SMA(candles []broker.Candle, period int) MAResult {
	if period <= 0 || len(candles) < period {
		return MAResult{}
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return MAResult{Value: sum / float64(period), Valid: true}
}

// EMA calculates the exponential moving average of closes, seeded with the
// SMA of the first period values.
func EMA(candles []broker.Candle, period int) MAResult {
	return emaSeries(Closes(candles), period)
}

func emaSeries(values []float64, period int) MAResult {
	if period <= 0 || len(values) < period {
		return MAResult{}
	}
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	multiplier := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = v*multiplier + ema*(1-multiplier)
	}
	return MAResult{Value: ema, Valid: true}
}

// CrossResult reports a two-MA crossover evaluated on the final two bars.
type CrossResult struct {
	GoldenCross bool // Fast crossed above slow on the last bar
	DeadCross   bool // Fast crossed below slow on the last bar
	FastAbove   bool // Fast currently above slow
	Valid       bool
}

// MACross classifies a fast/slow moving-average crossover. A golden cross
// requires the fast MA at or below the slow MA on the previous bar and
// strictly above it on the last bar.
func MACross(candles []broker.Candle, fastPeriod, slowPeriod int) CrossResult {
	if len(candles) < slowPeriod+1 {
		return CrossResult{}
	}
	prev := candles[:len(candles)-1]

	fastNow := SMA(candles, fastPeriod)
	slowNow := SMA(candles, slowPeriod)
	fastPrev := SMA(prev, fastPeriod)
	slowPrev := SMA(prev, slowPeriod)
	if !fastNow.Valid || !slowNow.Valid || !fastPrev.Valid || !slowPrev.Valid {
		return CrossResult{}
	}

	return CrossResult{
		GoldenCross: fastPrev.Value <= slowPrev.Value && fastNow.Value > slowNow.Value,
		DeadCross:   fastPrev.Value >= slowPrev.Value && fastNow.Value < slowNow.Value,
		FastAbove:   fastNow.Value > slowNow.Value,
		Valid:       true,
	}
}

// MAAlignment reports whether the short/mid/long SMAs are stacked bullishly
// (each above the next) with price above the short MA.
type MAAlignment struct {
	Bullish bool
	Bearish bool
	Valid   bool
}

// Alignment checks the ordering of three SMAs plus price position.
func Alignment(candles []broker.Candle, shortP, midP, longP int) MAAlignment {
	s, m, l := SMA(candles, shortP), SMA(candles, midP), SMA(candles, longP)
	if !s.Valid || !m.Valid || !l.Valid {
		return MAAlignment{}
	}
	price := candles[len(candles)-1].Close
	return MAAlignment{
		Bullish: price > s.Value && s.Value > m.Value && m.Value > l.Value,
		Bearish: price < s.Value && s.Value < m.Value && m.Value < l.Value,
		Valid:   true,
	}
}
