// Package confluence aggregates detector outputs and raw indicator
// thresholds into a single BUY/SELL/HOLD decision per instrument using a
// configurable multi-confirmation vote.
package confluence

import (
	"context"

	"stock-trading-bot/internal/analysis"
	"stock-trading-bot/internal/indicator"
	"stock-trading-bot/internal/patterns"
)

// Action is the decision for one instrument in one cycle.
type Action string

const (
	ActionBuy         Action = "BUY"
	ActionSell        Action = "SELL"
	ActionPartialSell Action = "PARTIAL_SELL"
	ActionHold        Action = "HOLD"
)

// Signal is a transient decision produced and consumed within one cycle.
type Signal struct {
	Code               string
	Action             Action
	Priority           int // 1 = highest urgency
	Reason             string
	ConditionsMet      int
	ConditionsRequired int
	Emergency          bool // Bypasses holding-time and profit-floor guards
	Analysis           *Snapshot
}

// Snapshot is the per-cycle analysis state for one instrument. It is
// recomputed every cycle from the freshest candle window and never persisted.
type Snapshot struct {
	RSI        indicator.RSIResult
	Bollinger  indicator.BollingerResult
	MACD       indicator.MACDResult
	Stochastic indicator.StochasticResult
	WilliamsR  indicator.WilliamsRResult
	Volume     indicator.VolumeSpreadResult
	VWAP       indicator.VWAPResult
	Squeeze    indicator.SqueezeResult
	ATR        indicator.ATRResult
	MACross    indicator.CrossResult
	Alignment  indicator.MAAlignment
	Fibonacci  indicator.FibonacciResult
	Patterns   patterns.Result
	Levels     analysis.LevelsResult
	Trend      analysis.TrendResult
	Market     analysis.MarketResult
	News       NewsSentiment
	Flow       FlowSignal
}

// NewsSentiment is the news collaborator's verdict for an instrument.
// Valid=false means no data and must be treated as neutral.
type NewsSentiment struct {
	Score    float64 // -1 (very negative) .. +1 (very positive)
	Negative bool
	Valid    bool
}

// FlowSignal is the supply/demand collaborator's verdict.
type FlowSignal struct {
	NetBuyRatio float64 // Institutional+foreign net buying over volume
	Favorable   bool
	Valid       bool
}

// NewsProvider supplies news sentiment for an instrument. Implementations
// live outside this module.
type NewsProvider interface {
	Sentiment(ctx context.Context, code string) (NewsSentiment, error)
}

// FlowProvider supplies supply/demand flow for an instrument.
type FlowProvider interface {
	Flow(ctx context.Context, code string) (FlowSignal, error)
}
