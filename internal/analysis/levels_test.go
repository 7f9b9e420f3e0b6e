package analysis

import (
	"testing"
	"time"

	"stock-trading-bot/internal/broker"
)

func flatCandles(n int, price float64) []broker.Candle {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]broker.Candle, n)
	for i := range candles {
		candles[i] = broker.Candle{
			Date: day.AddDate(0, 0, i),
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000,
		}
	}
	return candles
}

// rangeBound builds a series oscillating between support near 95 and
// resistance near 105, touching each extreme several times.
func rangeBound() []broker.Candle {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var candles []broker.Candle
	prices := []float64{100, 103, 105, 103, 100, 97, 95, 97, 100, 103, 105.2, 103, 100, 97, 94.9, 97, 100, 103, 104.8, 103, 100, 97, 95.1, 97, 100}
	for i, p := range prices {
		candles = append(candles, broker.Candle{
			Date: day.AddDate(0, 0, i),
			Open: p, High: p + 1.5, Low: p - 1.5, Close: p, Volume: 1000,
		})
	}
	return candles
}

func TestDetectInsufficientHistory(t *testing.T) {
	d := NewLevelDetector(3, 0.01, 0.015)
	result := d.Detect(flatCandles(5, 100))
	if result.Valid {
		t.Error("short history should be invalid")
	}
	if result.Sweep != SweepNone {
		t.Error("sweep should be NONE on invalid result")
	}
}

func TestClusteredLevelsRankedByTouches(t *testing.T) {
	d := NewLevelDetector(2, 0.02, 0.015)
	result := d.Detect(rangeBound())
	if !result.Valid {
		t.Fatal("result should be valid")
	}
	if len(result.Resistances) == 0 || len(result.Supports) == 0 {
		t.Fatalf("expected clustered levels, got %d resistances / %d supports",
			len(result.Resistances), len(result.Supports))
	}
	// Repeated touches near the same extreme must merge into one level
	if result.Resistances[0].Touches < 2 {
		t.Errorf("top resistance touches = %d, want >= 2", result.Resistances[0].Touches)
	}
	if result.Supports[0].Touches < 2 {
		t.Errorf("top support touches = %d, want >= 2", result.Supports[0].Touches)
	}
}

func TestBullishLiquiditySweep(t *testing.T) {
	d := NewLevelDetector(2, 0.01, 0.015)

	// Establish a confirmed pivot low near 95, then pierce it with a wick
	// and close back above on a bullish candle.
	candles := rangeBound()
	candles = append(candles,
		broker.Candle{Open: 99, High: 99.5, Low: 96, Close: 97, Volume: 1000},
		broker.Candle{Open: 96.5, High: 99, Low: 93.5, Close: 98.5, Volume: 2000},
	)

	result := d.Detect(candles)
	if !result.Valid {
		t.Fatal("result should be valid")
	}
	if result.Sweep != SweepBullish {
		t.Errorf("sweep = %s, want %s", result.Sweep, SweepBullish)
	}
}

func TestNoSweepOnQuietClose(t *testing.T) {
	d := NewLevelDetector(2, 0.01, 0.015)
	result := d.Detect(rangeBound())
	if result.Sweep != SweepNone {
		t.Errorf("sweep = %s, want %s", result.Sweep, SweepNone)
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := NewTTLCache[int](5*time.Minute, func() time.Time { return now })

	cache.Set("kospi", 42)
	if v, ok := cache.Get("kospi"); !ok || v != 42 {
		t.Fatal("fresh entry should be returned")
	}

	now = now.Add(4 * time.Minute)
	if _, ok := cache.Get("kospi"); !ok {
		t.Error("entry should survive inside the TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("kospi"); ok {
		t.Error("entry should expire after the TTL")
	}
}

func TestTTLCacheGetOrComputeCachesValue(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := NewTTLCache[string](5*time.Minute, func() time.Time { return now })

	calls := 0
	compute := func() (string, error) {
		calls++
		return "sector-score", nil
	}

	for i := 0; i < 3; i++ {
		if _, err := cache.GetOrCompute("tech", compute); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1 (read-through)", calls)
	}
}
