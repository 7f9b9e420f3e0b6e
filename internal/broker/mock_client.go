package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockBroker is a deterministic in-memory broker used for tests and dry
// environments. Quotes, candles and balances are seeded by the caller;
// orders always fill at the quoted price.
type MockBroker struct {
	mu       sync.Mutex
	quotes   map[string]Quote
	candles  map[string][]Candle // key: code + ":" + granularity
	balance  Balance
	failNext map[string]error // endpoint key -> error to return once
	Orders   []Order          // every accepted order, in submission order
}

// NewMockBroker creates an empty mock broker.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		quotes:   make(map[string]Quote),
		candles:  make(map[string][]Candle),
		failNext: make(map[string]error),
	}
}

// SetQuote seeds the quote for an instrument.
func (m *MockBroker) SetQuote(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Code] = q
}

// SetCandles seeds the candle series for an instrument and granularity.
func (m *MockBroker) SetCandles(code string, granularity Granularity, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[code+":"+string(granularity)] = candles
}

// SetBalance seeds the account balance.
func (m *MockBroker) SetBalance(b Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = b
}

// FailNext makes the next call to the given endpoint key return err.
func (m *MockBroker) FailNext(endpoint string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[endpoint] = err
}

func (m *MockBroker) takeFailure(endpoint string) error {
	if err, ok := m.failNext[endpoint]; ok {
		delete(m.failNext, endpoint)
		return err
	}
	return nil
}

func (m *MockBroker) GetQuote(_ context.Context, code string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(EndpointQuote); err != nil {
		return nil, err
	}
	q, ok := m.quotes[code]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", code)
	}
	return &q, nil
}

func (m *MockBroker) GetCandles(_ context.Context, code string, window int, granularity Granularity) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(EndpointCandles); err != nil {
		return nil, err
	}
	series, ok := m.candles[code+":"+string(granularity)]
	if !ok {
		return nil, fmt.Errorf("no candles for %s", code)
	}
	if window > 0 && len(series) > window {
		series = series[len(series)-window:]
	}
	out := make([]Candle, len(series))
	copy(out, series)
	return out, nil
}

func (m *MockBroker) PlaceOrder(_ context.Context, order Order) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(EndpointOrder); err != nil {
		return nil, err
	}
	if order.Quantity <= 0 {
		return &OrderResult{Success: false, Message: "quantity must be positive"}, nil
	}
	m.Orders = append(m.Orders, order)
	return &OrderResult{
		Success:  true,
		OrderRef: uuid.NewString(),
	}, nil
}

func (m *MockBroker) GetBalance(_ context.Context) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(EndpointBalance); err != nil {
		return nil, err
	}
	b := m.balance
	b.Holdings = append([]BalanceHolding(nil), m.balance.Holdings...)
	return &b, nil
}

// MakeCandles builds a daily series ending today from closes, with a fixed
// spread around each close. Convenience for tests.
func MakeCandles(closes []float64) []Candle {
	candles := make([]Candle, len(closes))
	day := time.Now().AddDate(0, 0, -len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high := open
		if c > high {
			high = c
		}
		low := open
		if c < low {
			low = c
		}
		candles[i] = Candle{
			Date:   day.AddDate(0, 0, i+1),
			Open:   open,
			High:   high * 1.005,
			Low:    low * 0.995,
			Close:  c,
			Volume: 100000,
		}
	}
	return candles
}

var _ Broker = (*MockBroker)(nil)
