package broker

import (
	"context"
	"time"
)

// Granularity identifies the candle period requested from the broker.
type Granularity string

const (
	Daily  Granularity = "D"
	Weekly Granularity = "W"
)

// Candle is one OHLCV bar. Series are ordered oldest to newest and are
// gap-tolerant: non-trading days are skipped, never zero-filled.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Body returns the absolute body size.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-low span.
func (c Candle) Range() float64 { return c.High - c.Low }

// Quote is a current price snapshot for an instrument.
type Quote struct {
	Code          string
	Price         float64
	ChangePercent float64
	Volume        float64
	Sector        string
}

// OrderSide distinguishes buy and sell submissions.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Order is a submission request. Price 0 means market order.
type Order struct {
	Code     string
	Side     OrderSide
	Quantity int
	Price    float64
}

// OrderResult is the broker's acknowledgement of a placed order.
type OrderResult struct {
	Success  bool
	OrderRef string
	Message  string
}

// BalanceHolding is one position as reported by the broker.
type BalanceHolding struct {
	Code         string
	Name         string
	Quantity     int
	AvgPrice     float64
	CurrentPrice float64
}

// Balance is the broker's authoritative account state.
type Balance struct {
	Holdings        []BalanceHolding
	Cash            float64
	TotalDeposit    float64
	TotalEvaluation float64
	TotalProfit     float64
}

// Broker is the narrow interface to the external order/market-data
// collaborator. Implementations own authentication and wire formats;
// callers must route every call through a Guard.
type Broker interface {
	GetQuote(ctx context.Context, code string) (*Quote, error)
	GetCandles(ctx context.Context, code string, window int, granularity Granularity) ([]Candle, error)
	PlaceOrder(ctx context.Context, order Order) (*OrderResult, error)
	GetBalance(ctx context.Context) (*Balance, error)
}
