package analysis

import (
	"stock-trading-bot/internal/broker"
	"stock-trading-bot/internal/indicator"
)

// TrendDirection is a single-timeframe trend classification.
type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// Alignment categorizes the weekly/daily trend combination.
type Alignment string

const (
	AlignedBullish Alignment = "ALIGNED_BULLISH" // Both bullish: strongest buy context
	PullbackWait   Alignment = "PULLBACK_WAIT"   // Weekly bullish, daily pulling back
	Conflicted     Alignment = "CONFLICTED"      // Opposite directions: caution
	AlignedBearish Alignment = "ALIGNED_BEARISH" // Both bearish: avoid
	AlignmentMixed Alignment = "MIXED"
)

// TimeframeScore is one timeframe's trend assessment.
type TimeframeScore struct {
	Direction TrendDirection
	Score     float64 // -1 (strong bearish) .. +1 (strong bullish)
	Valid     bool
}

// TrendResult combines the higher (weekly) and base (daily) timeframes.
type TrendResult struct {
	Weekly    TimeframeScore
	Daily     TimeframeScore
	Alignment Alignment
	Combined  float64 // Weekly-weighted combined strength
	Valid     bool
}

// TrendClassifier scores two timeframes independently and combines them
// with the higher timeframe weighted more.
type TrendClassifier struct {
	fastMA       int
	slowMA       int
	rsiPeriod    int
	weeklyWeight float64
}

// NewTrendClassifier creates a classifier with the given MA and RSI periods.
func NewTrendClassifier(fastMA, slowMA, rsiPeriod int) *TrendClassifier {
	if fastMA <= 0 {
		fastMA = 5
	}
	if slowMA <= 0 {
		slowMA = 20
	}
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}
	return &TrendClassifier{
		fastMA:       fastMA,
		slowMA:       slowMA,
		rsiPeriod:    rsiPeriod,
		weeklyWeight: 0.6,
	}
}

// Classify scores the weekly and daily candle series and returns the
// alignment category. Either series too short yields an invalid result.
func (tc *TrendClassifier) Classify(weekly, daily []broker.Candle) TrendResult {
	w := tc.scoreTimeframe(weekly)
	d := tc.scoreTimeframe(daily)
	if !w.Valid || !d.Valid {
		return TrendResult{Weekly: w, Daily: d, Alignment: AlignmentMixed}
	}

	combined := indicator.Round2(w.Score*tc.weeklyWeight + d.Score*(1-tc.weeklyWeight))

	var alignment Alignment
	switch {
	case w.Direction == TrendBullish && d.Direction == TrendBullish:
		alignment = AlignedBullish
	case w.Direction == TrendBullish && d.Direction != TrendBullish:
		alignment = PullbackWait
	case w.Direction == TrendBearish && d.Direction == TrendBearish:
		alignment = AlignedBearish
	case w.Direction == TrendBearish && d.Direction == TrendBullish:
		alignment = Conflicted
	default:
		alignment = AlignmentMixed
	}

	return TrendResult{
		Weekly:    w,
		Daily:     d,
		Alignment: alignment,
		Combined:  combined,
		Valid:     true,
	}
}

// scoreTimeframe combines MA ordering, price-vs-MA position, MACD state and
// RSI extremes into one score.
func (tc *TrendClassifier) scoreTimeframe(candles []broker.Candle) TimeframeScore {
	fast := indicator.SMA(candles, tc.fastMA)
	slow := indicator.SMA(candles, tc.slowMA)
	rsi := indicator.RSI(candles, tc.rsiPeriod)
	if !fast.Valid || !slow.Valid || !rsi.Valid {
		return TimeframeScore{Direction: TrendNeutral}
	}

	price := candles[len(candles)-1].Close
	score := 0.0

	if fast.Value > slow.Value {
		score += 0.3
	} else if fast.Value < slow.Value {
		score -= 0.3
	}
	if price > slow.Value {
		score += 0.2
	} else {
		score -= 0.2
	}

	// MACD is optional on shorter windows; unknown stays neutral
	if macd := indicator.MACD(candles, 12, 26, 9); macd.Valid {
		if macd.Histogram > 0 {
			score += 0.3
		} else if macd.Histogram < 0 {
			score -= 0.3
		}
	}

	// RSI extremes counterweight the trend reading
	switch {
	case rsi.Value >= 70:
		score -= 0.2
	case rsi.Value <= 30:
		score += 0.2
	}

	direction := TrendNeutral
	switch {
	case score >= 0.3:
		direction = TrendBullish
	case score <= -0.3:
		direction = TrendBearish
	}

	return TimeframeScore{
		Direction: direction,
		Score:     indicator.Round2(score),
		Valid:     true,
	}
}
