// Package exit decides partial-sell ladder steps and trailing stops for
// held positions, independent of the confluence engine and with priority
// over its generic sell signals.
package exit

import (
	"fmt"
	"math"

	"stock-trading-bot/internal/indicator"
)

// Rung is one partial-sell step of the ladder.
type Rung struct {
	ID              string  `json:"id"`
	ProfitThreshold float64 `json:"profit_threshold"` // Unrealized return % that arms the rung
	SellFraction    float64 `json:"sell_fraction"`    // Fraction of the original quantity
}

// Config holds ladder and trailing stop settings.
type Config struct {
	Ladder             []Rung  `json:"ladder"`
	TrailingActivation float64 `json:"trailing_activation_percent"` // Return % that arms the stop
	TrailingPercent    float64 `json:"trailing_percent"`            // Retracement from the high water mark
	TrailingFloor      float64 `json:"trailing_floor_percent"`      // Minimum profit preserved over avg price
}

// PositionView is the holding state the engine reads. OriginalQuantity is
// the quantity at entry; CompletedRungs lists ladder rung IDs already sold.
type PositionView struct {
	Code             string
	Quantity         int
	OriginalQuantity int
	AvgPrice         float64
	HighestPrice     float64 // High water mark including the current cycle's price
	CompletedRungs   map[string]bool
}

// DecisionKind labels the exit engine outcome.
type DecisionKind string

const (
	NoExit       DecisionKind = "NONE"
	PartialSell  DecisionKind = "PARTIAL_SELL"
	TrailingStop DecisionKind = "TRAILING_STOP"
)

// Decision is the next exit action for a position, if any.
type Decision struct {
	Kind     DecisionKind
	Quantity int
	RungID   string // Set for PARTIAL_SELL
	Reason   string
}

// Engine evaluates the exit ladder and trailing stop.
type Engine struct {
	config Config
}

// NewEngine creates an exit engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{config: cfg}
}

// Evaluate returns the exit action for a position at the current price.
// A triggered trailing stop (full exit) takes precedence over a due ladder
// rung in the same cycle.
func (e *Engine) Evaluate(pos PositionView, currentPrice float64) Decision {
	if pos.Quantity <= 0 || pos.AvgPrice <= 0 || currentPrice <= 0 {
		return Decision{Kind: NoExit}
	}

	if stop, price := e.trailingStop(pos, currentPrice); stop {
		return Decision{
			Kind:     TrailingStop,
			Quantity: pos.Quantity,
			Reason:   fmt.Sprintf("trailing stop: price %.2f at or below stop %.2f", currentPrice, price),
		}
	}

	if rung, qty := e.nextRung(pos, currentPrice); rung != nil {
		ret := returnPercent(pos.AvgPrice, currentPrice)
		return Decision{
			Kind:     PartialSell,
			Quantity: qty,
			RungID:   rung.ID,
			Reason:   fmt.Sprintf("ladder %s: return %.2f%% >= %.2f%%", rung.ID, ret, rung.ProfitThreshold),
		}
	}

	return Decision{Kind: NoExit}
}

// EffectiveStopPrice exposes the current stop level for an armed position;
// the second return is false while the trailing stop is not yet activated.
// The stop is monotonically non-decreasing as the high water mark rises.
func (e *Engine) EffectiveStopPrice(pos PositionView) (float64, bool) {
	highWaterReturn := returnPercent(pos.AvgPrice, pos.HighestPrice)
	if highWaterReturn < e.config.TrailingActivation {
		return 0, false
	}
	fromHigh := pos.HighestPrice * (1 - e.config.TrailingPercent/100)
	floor := pos.AvgPrice * (1 + e.config.TrailingFloor/100)
	return math.Max(fromHigh, floor), true
}

func (e *Engine) trailingStop(pos PositionView, currentPrice float64) (bool, float64) {
	stop, armed := e.EffectiveStopPrice(pos)
	if !armed {
		return false, 0
	}
	return currentPrice <= stop, stop
}

// nextRung returns the first due-but-incomplete ladder rung, in order.
// Completed rungs are never re-selected regardless of price.
func (e *Engine) nextRung(pos PositionView, currentPrice float64) (*Rung, int) {
	ret := returnPercent(pos.AvgPrice, currentPrice)
	for i := range e.config.Ladder {
		rung := &e.config.Ladder[i]
		if pos.CompletedRungs[rung.ID] {
			continue
		}
		if ret < rung.ProfitThreshold {
			continue
		}
		qty := int(math.Floor(float64(pos.OriginalQuantity) * rung.SellFraction))
		if qty < 1 {
			qty = 1
		}
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		return rung, qty
	}
	return nil, 0
}

func returnPercent(avgPrice, price float64) float64 {
	if avgPrice <= 0 {
		return 0
	}
	return indicator.Round2((price - avgPrice) / avgPrice * 100)
}
