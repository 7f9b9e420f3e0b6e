package confluence

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-bot/internal/broker"
)

func testConfig() Config {
	return Config{
		RSIPeriod:         14,
		RSIOversold:       30,
		RSIOverbought:     70,
		FastMA:            5,
		SlowMA:            20,
		StopLossPercent:   5,
		TakeProfitPercent: 10,
		MinRiskReward:     1.5,
		RiskRewardSkip:    8,
		BuyRequired:       3,
		SellRequired:      2,
	}
}

func newTestEngine(cfg Config, news NewsProvider) *Engine {
	return NewEngine(cfg, nil, news, nil, zerolog.Nop())
}

func candlesFromCloses(closes []float64) []broker.Candle {
	candles := make([]broker.Candle, len(closes))
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high := math.Max(open, c) * 1.01
		low := math.Min(open, c) * 0.99
		candles[i] = broker.Candle{
			Date: day.AddDate(0, 0, i), Open: open, High: high, Low: low, Close: c, Volume: 1000,
		}
	}
	return candles
}

// decliningCandles drifts steadily down: RSI pins to 0, the close sits in
// the lower Bollinger zone, and Williams %R reads -100.
func decliningCandles(n int) []broker.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 - 0.3*float64(i)
	}
	return candlesFromCloses(closes)
}

func risingCandles(n int) []broker.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 0.3*float64(i)
	}
	return candlesFromCloses(closes)
}

func flatCandles(n int, price float64) []broker.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return candlesFromCloses(closes)
}

type stubNews struct{ sentiment NewsSentiment }

func (s stubNews) Sentiment(context.Context, string) (NewsSentiment, error) {
	return s.sentiment, nil
}

func TestBuyConfluenceOnOversoldDecline(t *testing.T) {
	e := newTestEngine(testConfig(), nil)
	daily := decliningCandles(60)
	in := Inputs{Code: "005930", Price: daily[len(daily)-1].Close, Daily: daily}

	sig := e.EvaluateBuy(context.Background(), in)
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY (reason: %s)", sig.Action, sig.Reason)
	}
	if sig.ConditionsMet < 3 {
		t.Errorf("ConditionsMet = %d, want >= 3", sig.ConditionsMet)
	}
	if !strings.Contains(sig.Reason, "RSI oversold") {
		t.Errorf("reason = %q, want RSI oversold listed", sig.Reason)
	}
	if !strings.Contains(sig.Reason, "price below VWAP") {
		t.Errorf("reason = %q, want price below VWAP listed", sig.Reason)
	}
}

func TestBuyCreditsStackedMAAlignment(t *testing.T) {
	cfg := testConfig()
	cfg.BuyRequired = 1
	e := newTestEngine(cfg, nil)

	// A steady 90-bar rise stacks price over the 5, 20 and 60 MAs; the
	// alignment condition must count even when no cross fires this bar.
	daily := risingCandles(90)
	sig := e.EvaluateBuy(context.Background(), Inputs{Code: "005930", Price: daily[len(daily)-1].Close, Daily: daily})
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY (reason: %s)", sig.Action, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "MA alignment") {
		t.Errorf("reason = %q, want MA alignment listed", sig.Reason)
	}
}

func TestSellCreditsBearishMAAlignment(t *testing.T) {
	cfg := testConfig()
	cfg.SellRequired = 1
	e := newTestEngine(cfg, nil)

	daily := decliningCandles(90)
	price := daily[len(daily)-1].Close
	// Flat return keeps the emergency stop out of the way.
	sig := e.EvaluateSell(context.Background(), Inputs{Code: "005930", Price: price, Daily: daily}, HoldingView{AvgPrice: price})
	if sig.Action != ActionSell {
		t.Fatalf("action = %s, want SELL (reason: %s)", sig.Action, sig.Reason)
	}
	if sig.Emergency {
		t.Error("alignment sell must not be flagged emergency")
	}
	if !strings.Contains(sig.Reason, "bearish MA alignment") {
		t.Errorf("reason = %q, want bearish MA alignment listed", sig.Reason)
	}
}

func TestBuyCreditsVolatilitySqueeze(t *testing.T) {
	cfg := testConfig()
	cfg.BuyRequired = 1
	cfg.MinRiskReward = 1.0 // The noisy ramp widens the ATR stop past the 1.5 gate
	e := newTestEngine(cfg, nil)

	// Fifty choppy bars followed by ten quiet ones: short-window ATR
	// collapses against the long window.
	closes := make([]float64, 60)
	for i := range closes {
		if i < 50 {
			closes[i] = 100 + 10*float64(i%2)
		} else {
			closes[i] = 100
		}
	}
	daily := candlesFromCloses(closes)

	sig := e.EvaluateBuy(context.Background(), Inputs{Code: "005930", Price: 100, Daily: daily})
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY (reason: %s)", sig.Action, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "volatility squeeze") {
		t.Errorf("reason = %q, want volatility squeeze listed", sig.Reason)
	}
}

func TestBuyCreditsGoldenZoneRetracement(t *testing.T) {
	cfg := testConfig()
	cfg.BuyRequired = 1
	e := newTestEngine(cfg, nil)

	// A rally from 100 to 130 retracing to ~118.6 sits between the 38.2%
	// and 61.8% levels of the 30-bar swing.
	closes := make([]float64, 60)
	for i := range closes {
		switch {
		case i < 30:
			closes[i] = 100
		case i < 45:
			closes[i] = 100 + 2*float64(i-29)
		default:
			closes[i] = 130 - 0.76*float64(i-44)
		}
	}
	daily := candlesFromCloses(closes)

	sig := e.EvaluateBuy(context.Background(), Inputs{Code: "005930", Price: closes[59], Daily: daily})
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY (reason: %s)", sig.Action, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "golden zone retracement") {
		t.Errorf("reason = %q, want golden zone listed", sig.Reason)
	}
}

func TestSellCreditsVWAPStretch(t *testing.T) {
	cfg := testConfig()
	cfg.SellRequired = 2
	e := newTestEngine(cfg, nil)

	// A one-bar spike to 112 over a flat 100 base stretches price well
	// above the 20-bar VWAP.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	closes[59] = 112
	daily := candlesFromCloses(closes)

	sig := e.EvaluateSell(context.Background(), Inputs{Code: "005930", Price: 112, Daily: daily}, HoldingView{AvgPrice: 100})
	if sig.Action != ActionSell {
		t.Fatalf("action = %s, want SELL (reason: %s)", sig.Action, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "price stretched above VWAP") {
		t.Errorf("reason = %q, want VWAP stretch listed", sig.Reason)
	}
}

func TestBuyHoldWhenConditionsShort(t *testing.T) {
	cfg := testConfig()
	cfg.BuyRequired = 6
	e := newTestEngine(cfg, nil)
	daily := decliningCandles(60)

	sig := e.EvaluateBuy(context.Background(), Inputs{Code: "005930", Price: daily[len(daily)-1].Close, Daily: daily})
	if sig.Action != ActionHold {
		t.Fatalf("action = %s, want HOLD", sig.Action)
	}
	if !strings.Contains(sig.Reason, "/6 conditions met") {
		t.Errorf("reason = %q, want condition tally", sig.Reason)
	}
}

func TestStrictTrendFilterBlocksBuy(t *testing.T) {
	cfg := testConfig()
	cfg.TrendFilterStrict = true
	e := newTestEngine(cfg, nil)
	daily := decliningCandles(60)

	// A declining weekly series makes both timeframes bearish.
	in := Inputs{Code: "005930", Price: daily[len(daily)-1].Close, Daily: daily, Weekly: decliningCandles(60)}
	sig := e.EvaluateBuy(context.Background(), in)
	if sig.Action != ActionHold {
		t.Fatalf("action = %s, want HOLD", sig.Action)
	}
	if !strings.Contains(sig.Reason, "blocked by trend filter") {
		t.Errorf("reason = %q, want trend filter block", sig.Reason)
	}
}

func TestAdvisoryTrendFilterWarnsButAllows(t *testing.T) {
	cfg := testConfig()
	cfg.TrendFilterStrict = false
	e := newTestEngine(cfg, nil)
	daily := decliningCandles(60)

	in := Inputs{Code: "005930", Price: daily[len(daily)-1].Close, Daily: daily, Weekly: decliningCandles(60)}
	sig := e.EvaluateBuy(context.Background(), in)
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want BUY (reason: %s)", sig.Action, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "warning: trend filter") {
		t.Errorf("reason = %q, want advisory warning", sig.Reason)
	}
}

func TestRiskRewardGateRejectsBuy(t *testing.T) {
	cfg := testConfig()
	cfg.MinRiskReward = 3.0 // Take profit 10% over stop 5% is only 2.0
	e := newTestEngine(cfg, nil)
	daily := decliningCandles(60)

	sig := e.EvaluateBuy(context.Background(), Inputs{Code: "005930", Price: daily[len(daily)-1].Close, Daily: daily})
	if sig.Action != ActionHold {
		t.Fatalf("action = %s, want HOLD", sig.Action)
	}
	if !strings.Contains(sig.Reason, "risk/reward") {
		t.Errorf("reason = %q, want risk/reward rejection", sig.Reason)
	}
}

func TestEmergencySellOnStopLossBreach(t *testing.T) {
	e := newTestEngine(testConfig(), nil)
	daily := flatCandles(60, 94000)

	// -6% against a 5% stop (low volatility, so no ATR widening).
	in := Inputs{Code: "005930", Price: 94000, Daily: daily}
	sig := e.EvaluateSell(context.Background(), in, HoldingView{AvgPrice: 100000})
	if sig.Action != ActionSell {
		t.Fatalf("action = %s, want SELL", sig.Action)
	}
	if !sig.Emergency {
		t.Error("Emergency not set on stop-loss breach")
	}
	if sig.Priority != 1 {
		t.Errorf("priority = %d, want 1", sig.Priority)
	}
	if !strings.Contains(sig.Reason, "emergency stop-loss") {
		t.Errorf("reason = %q, want stop-loss reason", sig.Reason)
	}
}

func TestEmergencySellOnNegativeNewsWithLoss(t *testing.T) {
	news := stubNews{sentiment: NewsSentiment{Score: -0.8, Negative: true, Valid: true}}
	e := newTestEngine(testConfig(), news)
	daily := flatCandles(60, 99000)

	// -1% loss: too shallow for the stop, but negative news forces the exit.
	in := Inputs{Code: "005930", Price: 99000, Daily: daily}
	sig := e.EvaluateSell(context.Background(), in, HoldingView{AvgPrice: 100000})
	if sig.Action != ActionSell || !sig.Emergency {
		t.Fatalf("got action=%s emergency=%v, want emergency SELL", sig.Action, sig.Emergency)
	}
	if !strings.Contains(sig.Reason, "negative news") {
		t.Errorf("reason = %q, want negative news reason", sig.Reason)
	}
}

func TestSellConfluenceOnOverboughtRise(t *testing.T) {
	e := newTestEngine(testConfig(), nil)
	daily := risingCandles(60)

	in := Inputs{Code: "005930", Price: daily[len(daily)-1].Close, Daily: daily}
	sig := e.EvaluateSell(context.Background(), in, HoldingView{AvgPrice: 100})
	if sig.Action != ActionSell {
		t.Fatalf("action = %s, want SELL (reason: %s)", sig.Action, sig.Reason)
	}
	if sig.Emergency {
		t.Error("ordinary confluence sell must not be flagged emergency")
	}
	if sig.Priority != 2 {
		t.Errorf("priority = %d, want 2", sig.Priority)
	}
	if !strings.Contains(sig.Reason, "RSI overbought") {
		t.Errorf("reason = %q, want RSI overbought listed", sig.Reason)
	}
}

func TestSellHoldBelowRequiredConditions(t *testing.T) {
	e := newTestEngine(testConfig(), nil)
	daily := flatCandles(60, 100000)

	in := Inputs{Code: "005930", Price: 100000, Daily: daily}
	sig := e.EvaluateSell(context.Background(), in, HoldingView{AvgPrice: 100000})
	if sig.Action != ActionHold {
		t.Fatalf("action = %s, want HOLD (reason: %s)", sig.Action, sig.Reason)
	}
}
