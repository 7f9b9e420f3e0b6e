// Package safety gates every order behind an ordered set of portfolio and
// quota checks. A rejection is a value, not an error: the caller logs it,
// skips the order, and moves on.
package safety

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-bot/internal/store"
)

// Config holds the governor thresholds.
type Config struct {
	CooldownHours    int     `json:"cooldown_hours"`
	MinHoldingHours  int     `json:"min_holding_hours"`
	MinProfitPercent float64 `json:"min_profit_percent"`
	MaxPerSector     int     `json:"max_per_sector"`
	MaxBuysPerRun    int     `json:"max_buys_per_run"`
	DailyBuyCap      int     `json:"daily_buy_cap"`
	DailySellCap     int     `json:"daily_sell_cap"`
}

// Verdict is the outcome of a governor check. Blocked actions carry the
// reason of the first failing check.
type Verdict struct {
	Allowed bool
	Reason  string
}

func allow() Verdict { return Verdict{Allowed: true} }

func block(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Governor evaluates the safety checks against persisted state.
type Governor struct {
	cfg   Config
	store *store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func New(cfg Config, st *store.Store, log zerolog.Logger) *Governor {
	return &Governor{
		cfg:   cfg,
		store: st,
		log:   log.With().Str("component", "safety").Logger(),
		now:   time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (g *Governor) SetClock(now func() time.Time) { g.now = now }

// Session carries the per-cycle state. The buy slot count is frozen when
// the cycle starts so an intra-cycle sell cannot free a slot for a
// same-cycle rebuy.
type Session struct {
	g        *Governor
	buySlots int
	buysUsed int
}

// StartCycle snapshots the available buy slots from the portfolio as loaded
// at cycle start.
func (g *Governor) StartCycle(p *store.Portfolio, maxHoldings int) *Session {
	slots := maxHoldings - len(p.Holdings)
	if slots < 0 {
		slots = 0
	}
	if slots > g.cfg.MaxBuysPerRun {
		slots = g.cfg.MaxBuysPerRun
	}
	return &Session{g: g, buySlots: slots}
}

// BuySlots returns the frozen slot count for the cycle.
func (s *Session) BuySlots() int { return s.buySlots }

// CheckBuy runs the buy-side checks in order and returns the first failure.
// An expired cooldown entry is deleted as a side effect.
func (s *Session) CheckBuy(code, sector string, p *store.Portfolio) (Verdict, error) {
	g := s.g

	cooldowns, err := g.store.LoadCooldowns()
	if err != nil {
		return Verdict{}, fmt.Errorf("loading cooldowns: %w", err)
	}
	if soldAt, ok := cooldowns[code]; ok {
		expires := soldAt.Add(time.Duration(g.cfg.CooldownHours) * time.Hour)
		if g.now().Before(expires) {
			remaining := expires.Sub(g.now()).Hours()
			return block("cooldown active for %s, %.1fh remaining", code, remaining), nil
		}
		delete(cooldowns, code)
		if err := g.store.SaveCooldowns(cooldowns); err != nil {
			return Verdict{}, fmt.Errorf("clearing expired cooldown: %w", err)
		}
		g.log.Debug().Str("code", code).Msg("expired cooldown cleared")
	}

	if sector != "" && p.SectorCount(sector) >= g.cfg.MaxPerSector {
		return block("sector %s already holds %d positions (max %d)",
			sector, p.SectorCount(sector), g.cfg.MaxPerSector), nil
	}

	if s.buysUsed >= s.buySlots {
		return block("per-run buy cap reached (%d of %d slots used)", s.buysUsed, s.buySlots), nil
	}

	counters, err := g.store.CountersOn(g.now())
	if err != nil {
		return Verdict{}, fmt.Errorf("replaying journal: %w", err)
	}
	if counters.Buys >= g.cfg.DailyBuyCap {
		return block("daily buy cap reached (%d of %d)", counters.Buys, g.cfg.DailyBuyCap), nil
	}

	return allow(), nil
}

// CheckSell runs the sell-side checks in order. Emergency sells bypass the
// holding-duration and minimum-gain checks but still count against the daily
// quota.
func (s *Session) CheckSell(h *store.Holding, profitRate float64, emergency bool) (Verdict, error) {
	g := s.g

	if !emergency {
		held := g.now().Sub(h.BuyDate)
		minHold := time.Duration(g.cfg.MinHoldingHours) * time.Hour
		if held < minHold {
			return block("held %s for %.1fh, minimum %dh", h.Code, held.Hours(), g.cfg.MinHoldingHours), nil
		}
		if profitRate > 0 && profitRate < g.cfg.MinProfitPercent {
			return block("profit %.2f%% below minimum %.2f%%", profitRate, g.cfg.MinProfitPercent), nil
		}
	}

	counters, err := g.store.CountersOn(g.now())
	if err != nil {
		return Verdict{}, fmt.Errorf("replaying journal: %w", err)
	}
	if counters.Sells >= g.cfg.DailySellCap {
		return block("daily sell cap reached (%d of %d)", counters.Sells, g.cfg.DailySellCap), nil
	}

	return allow(), nil
}

// RecordBuy consumes one of the session's frozen buy slots.
func (s *Session) RecordBuy() { s.buysUsed++ }

// RecordSell starts the re-entry cooldown for a completed full sell. Called
// unconditionally, including on emergency sells.
func (g *Governor) RecordSell(code string) error {
	if err := g.store.MarkSold(code, g.now()); err != nil {
		return fmt.Errorf("recording cooldown for %s: %w", code, err)
	}
	g.log.Info().Str("code", code).Int("cooldown_hours", g.cfg.CooldownHours).Msg("re-entry cooldown started")
	return nil
}
