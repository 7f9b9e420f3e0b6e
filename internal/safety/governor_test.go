package safety

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-bot/internal/store"
)

var testTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		CooldownHours:    48,
		MinHoldingHours:  24,
		MinProfitPercent: 1.0,
		MaxPerSector:     2,
		MaxBuysPerRun:    3,
		DailyBuyCap:      5,
		DailySellCap:     10,
	}
}

func newTestGovernor(t *testing.T) (*Governor, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	g := New(testConfig(), st, zerolog.Nop())
	g.SetClock(func() time.Time { return testTime })
	return g, st
}

func TestCooldownBlocksBuyAndExpires(t *testing.T) {
	g, st := newTestGovernor(t)
	p := &store.Portfolio{}

	// Sold 10 hours ago, 48h cooldown still active.
	if err := st.MarkSold("005930", testTime.Add(-10*time.Hour)); err != nil {
		t.Fatalf("MarkSold: %v", err)
	}
	session := g.StartCycle(p, 8)
	v, err := session.CheckBuy("005930", "Tech", p)
	if err != nil {
		t.Fatalf("CheckBuy: %v", err)
	}
	if v.Allowed {
		t.Fatal("buy allowed during active cooldown")
	}
	if !strings.Contains(v.Reason, "38.0h remaining") {
		t.Errorf("reason = %q, want remaining hours", v.Reason)
	}

	// Advance past expiry; entry must be lazily deleted.
	g.SetClock(func() time.Time { return testTime.Add(50 * time.Hour) })
	v, err = session.CheckBuy("005930", "Tech", p)
	if err != nil {
		t.Fatalf("CheckBuy: %v", err)
	}
	if !v.Allowed {
		t.Fatalf("buy blocked after cooldown expiry: %s", v.Reason)
	}
	cooldowns, err := st.LoadCooldowns()
	if err != nil {
		t.Fatalf("LoadCooldowns: %v", err)
	}
	if _, ok := cooldowns["005930"]; ok {
		t.Error("expired cooldown entry not deleted")
	}
}

func TestSectorConcentrationBlocksBuy(t *testing.T) {
	g, _ := newTestGovernor(t)
	p := &store.Portfolio{Holdings: []store.Holding{
		{Code: "005930", Sector: "Tech", Quantity: 10, AvgPrice: 70000},
		{Code: "000660", Sector: "Tech", Quantity: 5, AvgPrice: 120000},
	}}

	session := g.StartCycle(p, 8)
	v, err := session.CheckBuy("035420", "Tech", p)
	if err != nil {
		t.Fatalf("CheckBuy: %v", err)
	}
	if v.Allowed {
		t.Error("buy allowed into saturated sector")
	}

	v, err = session.CheckBuy("035420", "Finance", p)
	if err != nil {
		t.Fatalf("CheckBuy: %v", err)
	}
	if !v.Allowed {
		t.Errorf("buy into other sector blocked: %s", v.Reason)
	}
}

func TestBuySlotsFrozenAtCycleStart(t *testing.T) {
	g, _ := newTestGovernor(t)

	// 7 of 8 slots filled, so one slot despite MaxBuysPerRun=3.
	p := &store.Portfolio{}
	for _, code := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		p.Upsert(store.Holding{Code: code, Quantity: 1, AvgPrice: 100})
	}
	session := g.StartCycle(p, 8)
	if session.BuySlots() != 1 {
		t.Fatalf("BuySlots = %d, want 1", session.BuySlots())
	}

	// An intra-cycle sell must not widen the frozen cap.
	p.Remove("a")
	session.RecordBuy()
	v, err := session.CheckBuy("h", "", p)
	if err != nil {
		t.Fatalf("CheckBuy: %v", err)
	}
	if v.Allowed {
		t.Error("buy allowed beyond frozen per-run cap")
	}
}

func TestDailyBuyQuotaFromJournal(t *testing.T) {
	g, st := newTestGovernor(t)
	p := &store.Portfolio{}

	for i := 0; i < 5; i++ {
		err := st.AppendTrade(store.TradeRecord{
			Type: store.TradeBuy, Code: "005930", Quantity: 1, Price: 100,
			Timestamp: testTime.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendTrade: %v", err)
		}
	}

	session := g.StartCycle(p, 8)
	v, err := session.CheckBuy("000660", "", p)
	if err != nil {
		t.Fatalf("CheckBuy: %v", err)
	}
	if v.Allowed {
		t.Error("buy allowed past daily cap")
	}
	if !strings.Contains(v.Reason, "daily buy cap") {
		t.Errorf("reason = %q, want daily buy cap", v.Reason)
	}
}

func TestMinHoldingDurationBlocksSell(t *testing.T) {
	g, _ := newTestGovernor(t)
	h := &store.Holding{Code: "005930", Quantity: 10, AvgPrice: 70000, BuyDate: testTime.Add(-6 * time.Hour)}

	session := g.StartCycle(&store.Portfolio{}, 8)
	v, err := session.CheckSell(h, 3.0, false)
	if err != nil {
		t.Fatalf("CheckSell: %v", err)
	}
	if v.Allowed {
		t.Error("sell allowed before minimum holding duration")
	}

	// Emergency path bypasses the duration check.
	v, err = session.CheckSell(h, -6.0, true)
	if err != nil {
		t.Fatalf("CheckSell: %v", err)
	}
	if !v.Allowed {
		t.Errorf("emergency sell blocked: %s", v.Reason)
	}
}

func TestMarginalProfitBlocksSell(t *testing.T) {
	g, _ := newTestGovernor(t)
	h := &store.Holding{Code: "005930", Quantity: 10, AvgPrice: 70000, BuyDate: testTime.Add(-48 * time.Hour)}
	session := g.StartCycle(&store.Portfolio{}, 8)

	cases := []struct {
		name       string
		profitRate float64
		emergency  bool
		want       bool
	}{
		{"marginal gain blocked", 0.4, false, false},
		{"gain above floor allowed", 2.5, false, true},
		{"loss allowed", -3.0, false, true},
		{"marginal gain emergency allowed", 0.4, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := session.CheckSell(h, tc.profitRate, tc.emergency)
			if err != nil {
				t.Fatalf("CheckSell: %v", err)
			}
			if v.Allowed != tc.want {
				t.Errorf("allowed = %v, want %v (%s)", v.Allowed, tc.want, v.Reason)
			}
		})
	}
}

func TestDailySellQuotaFromJournal(t *testing.T) {
	g, st := newTestGovernor(t)
	h := &store.Holding{Code: "005930", Quantity: 10, AvgPrice: 70000, BuyDate: testTime.Add(-72 * time.Hour)}

	for i := 0; i < 10; i++ {
		err := st.AppendTrade(store.TradeRecord{
			Type: store.TradeSell, Code: "x", Quantity: 1, Price: 100,
			Timestamp: testTime.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendTrade: %v", err)
		}
	}

	session := g.StartCycle(&store.Portfolio{}, 8)
	v, err := session.CheckSell(h, 5.0, false)
	if err != nil {
		t.Fatalf("CheckSell: %v", err)
	}
	if v.Allowed {
		t.Error("sell allowed past daily cap")
	}

	// Emergency sells still count against the quota.
	v, err = session.CheckSell(h, -6.0, true)
	if err != nil {
		t.Fatalf("CheckSell: %v", err)
	}
	if v.Allowed {
		t.Error("emergency sell allowed past daily cap")
	}
}

func TestRecordSellWritesCooldown(t *testing.T) {
	g, st := newTestGovernor(t)

	if err := g.RecordSell("005930"); err != nil {
		t.Fatalf("RecordSell: %v", err)
	}
	cooldowns, err := st.LoadCooldowns()
	if err != nil {
		t.Fatalf("LoadCooldowns: %v", err)
	}
	if got, ok := cooldowns["005930"]; !ok || !got.Equal(testTime) {
		t.Errorf("cooldowns[005930] = %v, want %v", got, testTime)
	}
}
