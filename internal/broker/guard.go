package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"stock-trading-bot/internal/circuit"
)

// Logical endpoint keys used for circuit breaker accounting.
const (
	EndpointQuote   = "quote"
	EndpointCandles = "candles"
	EndpointOrder   = "order"
	EndpointBalance = "balance"
)

// ErrCircuitOpen is returned when the breaker rejects a call before it is made.
var ErrCircuitOpen = fmt.Errorf("broker endpoint circuit open")

// GuardConfig holds call-level protection settings.
type GuardConfig struct {
	CallTimeout time.Duration `json:"call_timeout"`  // Per-call deadline; a timeout counts as a breaker failure
	CallsPerSec float64       `json:"calls_per_sec"` // Token refill rate for the broker rate limit
	Burst       int           `json:"burst"`         // Token bucket size
}

// DefaultGuardConfig returns conservative defaults for a rate-limited broker.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		CallTimeout: 10 * time.Second,
		CallsPerSec: 2,
		Burst:       1,
	}
}

// Guard decorates a Broker with a token-bucket throttle and per-endpoint
// circuit breaking. Every call blocks for a rate token first, then consults
// the breaker, and reports success or failure after the call returns.
// All broker traffic in the system must pass through a Guard.
type Guard struct {
	inner   Broker
	breaker *circuit.Breaker
	limiter *rate.Limiter
	timeout time.Duration
	log     zerolog.Logger
}

// NewGuard wraps a broker client.
func NewGuard(inner Broker, breaker *circuit.Breaker, cfg GuardConfig, log zerolog.Logger) *Guard {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultGuardConfig().CallTimeout
	}
	if cfg.CallsPerSec <= 0 {
		cfg.CallsPerSec = DefaultGuardConfig().CallsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Guard{
		inner:   inner,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.CallsPerSec), cfg.Burst),
		timeout: cfg.CallTimeout,
		log:     log.With().Str("component", "broker_guard").Logger(),
	}
}

// call runs fn under the throttle, breaker and per-call timeout.
func (g *Guard) call(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate token: %w", err)
	}
	if !g.breaker.CanRequest(key) {
		g.log.Warn().Str("endpoint", key).Msg("call rejected, circuit open")
		return fmt.Errorf("%w: %s", ErrCircuitOpen, key)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil {
		g.breaker.Failure(key)
		g.log.Warn().Str("endpoint", key).Err(err).Msg("broker call failed")
		return err
	}
	g.breaker.Success(key)
	return nil
}

// GetQuote fetches a quote through the guard.
func (g *Guard) GetQuote(ctx context.Context, code string) (*Quote, error) {
	var quote *Quote
	err := g.call(ctx, EndpointQuote, func(ctx context.Context) error {
		var err error
		quote, err = g.inner.GetQuote(ctx, code)
		return err
	})
	return quote, err
}

// GetCandles fetches candles through the guard.
func (g *Guard) GetCandles(ctx context.Context, code string, window int, granularity Granularity) ([]Candle, error) {
	var candles []Candle
	err := g.call(ctx, EndpointCandles, func(ctx context.Context) error {
		var err error
		candles, err = g.inner.GetCandles(ctx, code, window, granularity)
		return err
	})
	return candles, err
}

// PlaceOrder submits an order through the guard.
func (g *Guard) PlaceOrder(ctx context.Context, order Order) (*OrderResult, error) {
	var result *OrderResult
	err := g.call(ctx, EndpointOrder, func(ctx context.Context) error {
		var err error
		result, err = g.inner.PlaceOrder(ctx, order)
		return err
	})
	return result, err
}

// GetBalance fetches the account balance through the guard.
func (g *Guard) GetBalance(ctx context.Context) (*Balance, error) {
	var balance *Balance
	err := g.call(ctx, EndpointBalance, func(ctx context.Context) error {
		var err error
		balance, err = g.inner.GetBalance(ctx)
		return err
	})
	return balance, err
}

var _ Broker = (*Guard)(nil)
