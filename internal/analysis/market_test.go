package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"stock-trading-bot/internal/broker"
)

func trendingCloses(n int, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + step*float64(i)
	}
	return closes
}

func newMarketFixture(t *testing.T, indexStep float64) (*MarketClassifier, *broker.MockBroker) {
	t.Helper()
	mock := broker.NewMockBroker()
	mock.SetCandles("IDX1", broker.Daily, broker.MakeCandles(trendingCloses(30, indexStep)))
	mock.SetCandles("IDX2", broker.Daily, broker.MakeCandles(trendingCloses(30, indexStep)))
	mock.SetQuote(broker.Quote{Code: "005930", Price: 70000, ChangePercent: 1.5})

	sectors := map[string][]string{"Tech": {"005930"}}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mc := NewMarketClassifier(mock, [2]string{"IDX1", "IDX2"}, sectors, 5*time.Minute, func() time.Time { return now })
	return mc, mock
}

func TestClassifyBullishMarketPasses(t *testing.T) {
	mc, _ := newMarketFixture(t, 0.2)

	result, err := mc.Classify(context.Background(), "005930", "Tech", 1.0)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !result.Valid {
		t.Fatal("result not valid")
	}
	if result.Condition != MarketBullish {
		t.Errorf("condition = %s, want BULLISH", result.Condition)
	}
	if result.Verdict != CouplingPass {
		t.Errorf("verdict = %s, want PASS", result.Verdict)
	}
	if result.SectorReturn != 1.5 {
		t.Errorf("sector return = %v, want 1.5", result.SectorReturn)
	}
	if result.RelativeStrength <= 0 {
		t.Errorf("relative strength = %v, want positive", result.RelativeStrength)
	}
}

func TestClassifyBearishUnderperformerBlocks(t *testing.T) {
	mc, _ := newMarketFixture(t, -0.2)

	result, err := mc.Classify(context.Background(), "005930", "Tech", -1.0)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.Condition != MarketBearish {
		t.Errorf("condition = %s, want BEARISH", result.Condition)
	}
	if result.Verdict != CouplingBlock {
		t.Errorf("verdict = %s, want BLOCK", result.Verdict)
	}
}

func TestClassifyUnknownSectorIsNeutral(t *testing.T) {
	mc, _ := newMarketFixture(t, 0.2)

	result, err := mc.Classify(context.Background(), "999999", "Shipping", 0.5)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.SectorReturn != 0 {
		t.Errorf("sector return = %v, want neutral 0", result.SectorReturn)
	}
}

func TestIndexScoresAreCachedWithinTTL(t *testing.T) {
	mc, mock := newMarketFixture(t, 0.2)
	ctx := context.Background()

	if _, err := mc.Classify(ctx, "005930", "Tech", 1.0); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	// Within the TTL no candle calls are made, so a broker outage is invisible.
	mock.FailNext(broker.EndpointCandles, errors.New("gateway down"))
	if _, err := mc.Classify(ctx, "005930", "Tech", 1.0); err != nil {
		t.Fatalf("Classify (cached): %v", err)
	}
}
