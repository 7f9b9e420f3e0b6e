// Package trader runs the decision cycle: exits first, then confluence
// sells, then prioritized buys, every order gated by the safety governor
// and the broker guard. One cycle runs to completion before the next; the
// external scheduler owns the cadence.
package trader

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stock-trading-bot/internal/analysis"
	"stock-trading-bot/internal/broker"
	"stock-trading-bot/internal/confluence"
	"stock-trading-bot/internal/exit"
	"stock-trading-bot/internal/indicator"
	"stock-trading-bot/internal/safety"
	"stock-trading-bot/internal/store"
)

// Config holds the orchestrator settings.
type Config struct {
	Universe     []string `json:"universe"`
	BuyAmount    float64  `json:"buy_amount"`
	MaxHoldings  int      `json:"max_holdings"`
	DryRun       bool     `json:"dry_run"`
	DailyWindow  int      `json:"daily_window"`
	WeeklyWindow int      `json:"weekly_window"`
}

// Outcome is one order attempt within a cycle.
type Outcome struct {
	Code     string
	Action   confluence.Action
	Quantity int
	Executed bool
	Reason   string
	OrderRef string
}

// CycleResult summarizes one cycle for the caller and the logs.
type CycleResult struct {
	CycleID   string
	StartedAt time.Time
	Evaluated int
	Executed  int
	Skipped   int
	Outcomes  []Outcome
	Failures  []string // Per-instrument analysis/trade failures, isolated
}

// Trader wires the engines, governor, store and guarded broker into one
// crash-safe cycle runner.
type Trader struct {
	cfg      Config
	broker   broker.Broker
	engine   *confluence.Engine
	exits    *exit.Engine
	governor *safety.Governor
	store    *store.Store
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a trader. The broker must already be wrapped in a Guard.
func New(cfg Config, b broker.Broker, engine *confluence.Engine, exits *exit.Engine, governor *safety.Governor, st *store.Store, log zerolog.Logger) *Trader {
	if cfg.DailyWindow <= 0 {
		cfg.DailyWindow = 120
	}
	if cfg.WeeklyWindow <= 0 {
		cfg.WeeklyWindow = 60
	}
	return &Trader{
		cfg:      cfg,
		broker:   b,
		engine:   engine,
		exits:    exits,
		governor: governor,
		store:    st,
		log:      log.With().Str("component", "trader").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (t *Trader) SetClock(now func() time.Time) { t.now = now }

// RunCycle executes one full decision cycle. Failures on individual
// instruments are recorded in the result and never abort the cycle; only a
// portfolio that cannot be read at all is fatal.
func (t *Trader) RunCycle(ctx context.Context) (result *CycleResult, err error) {
	result = &CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: t.now(),
	}
	log := t.log.With().Str("cycle_id", result.CycleID).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
			log.Error().Interface("panic", r).Msg("cycle aborted by panic")
		}
	}()

	portfolio, err := t.store.LoadPortfolio()
	if err != nil {
		return result, fmt.Errorf("loading portfolio: %w", err)
	}
	session := t.governor.StartCycle(portfolio, t.cfg.MaxHoldings)
	log.Info().Int("holdings", len(portfolio.Holdings)).Int("buy_slots", session.BuySlots()).Msg("cycle started")

	t.runSellPhase(ctx, log, portfolio, session, result)
	t.runBuyPhase(ctx, log, portfolio, session, result)

	if err := t.recordSnapshot(ctx, portfolio); err != nil {
		log.Warn().Err(err).Msg("daily snapshot not recorded")
	}

	log.Info().
		Int("evaluated", result.Evaluated).
		Int("executed", result.Executed).
		Int("skipped", result.Skipped).
		Int("failures", len(result.Failures)).
		Msg("cycle finished")
	return result, nil
}

// runSellPhase evaluates every holding: exit engine decisions take priority
// over confluence sell signals.
func (t *Trader) runSellPhase(ctx context.Context, log zerolog.Logger, portfolio *store.Portfolio, session *safety.Session, result *CycleResult) {
	// Snapshot the codes: fills mutate the holdings slice.
	codes := make([]string, 0, len(portfolio.Holdings))
	for _, h := range portfolio.Holdings {
		codes = append(codes, h.Code)
	}

	for _, code := range codes {
		holding := portfolio.Find(code)
		if holding == nil {
			continue
		}
		result.Evaluated++

		quote, daily, weekly, err := t.fetchMarketData(ctx, code)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", code, err))
			log.Warn().Str("code", code).Err(err).Msg("holding skipped, market data unavailable")
			continue
		}

		if quote.Price > holding.HighestPrice {
			holding.HighestPrice = quote.Price
			if err := t.store.SavePortfolio(portfolio); err != nil {
				log.Error().Str("code", code).Err(err).Msg("high water mark not persisted")
			}
		}

		currentReturn := indicator.Round2((quote.Price - holding.AvgPrice) / holding.AvgPrice * 100)

		decision := t.exits.Evaluate(exit.PositionView{
			Code:             holding.Code,
			Quantity:         holding.Quantity,
			OriginalQuantity: holding.OriginalQty,
			AvgPrice:         holding.AvgPrice,
			HighestPrice:     holding.HighestPrice,
			CompletedRungs:   holding.CompletedRungs,
		}, quote.Price)

		switch decision.Kind {
		case exit.TrailingStop:
			t.executeSell(ctx, log, portfolio, session, holding, quote.Price, decision.Quantity, "", decision.Reason, currentReturn, false, result)
			continue
		case exit.PartialSell:
			t.executeSell(ctx, log, portfolio, session, holding, quote.Price, decision.Quantity, decision.RungID, decision.Reason, currentReturn, false, result)
			continue
		}

		sig := t.engine.EvaluateSell(ctx, confluence.Inputs{
			Code:      code,
			Sector:    holding.Sector,
			Price:     quote.Price,
			DayReturn: quote.ChangePercent,
			Daily:     daily,
			Weekly:    weekly,
		}, confluence.HoldingView{AvgPrice: holding.AvgPrice})

		if sig.Action != confluence.ActionSell {
			continue
		}
		t.executeSell(ctx, log, portfolio, session, holding, quote.Price, holding.Quantity, "", sig.Reason, currentReturn, sig.Emergency, result)
	}
}

// runBuyPhase evaluates unheld universe instruments and submits the best
// candidates up to the slot cap frozen at cycle start.
func (t *Trader) runBuyPhase(ctx context.Context, log zerolog.Logger, portfolio *store.Portfolio, session *safety.Session, result *CycleResult) {
	type candidate struct {
		signal *confluence.Signal
		quote  *broker.Quote
		rank   int
	}
	var candidates []candidate

	for _, code := range t.cfg.Universe {
		if portfolio.Find(code) != nil {
			continue
		}
		result.Evaluated++

		quote, daily, weekly, err := t.fetchMarketData(ctx, code)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", code, err))
			log.Warn().Str("code", code).Err(err).Msg("candidate skipped, market data unavailable")
			continue
		}

		sig := t.engine.EvaluateBuy(ctx, confluence.Inputs{
			Code:      code,
			Sector:    quote.Sector,
			Price:     quote.Price,
			DayReturn: quote.ChangePercent,
			Daily:     daily,
			Weekly:    weekly,
		})
		if sig.Action != confluence.ActionBuy {
			log.Debug().Str("code", code).Str("reason", sig.Reason).Msg("buy candidate rejected")
			continue
		}

		// Strong multi-timeframe alignment ranks ahead of its raw priority.
		rank := sig.Priority
		if sig.Analysis != nil && sig.Analysis.Trend.Valid && sig.Analysis.Trend.Alignment == analysis.AlignedBullish {
			rank--
		}
		candidates = append(candidates, candidate{signal: sig, quote: quote, rank: rank})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].rank < candidates[j].rank })

	for _, c := range candidates {
		quantity := int(math.Floor(t.cfg.BuyAmount / c.quote.Price))
		if quantity < 1 {
			result.Skipped++
			result.Outcomes = append(result.Outcomes, Outcome{
				Code: c.signal.Code, Action: confluence.ActionBuy,
				Reason: "buy amount below one share",
			})
			continue
		}

		verdict, err := session.CheckBuy(c.signal.Code, c.quote.Sector, portfolio)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", c.signal.Code, err))
			continue
		}
		if !verdict.Allowed {
			result.Skipped++
			result.Outcomes = append(result.Outcomes, Outcome{
				Code: c.signal.Code, Action: confluence.ActionBuy, Quantity: quantity,
				Reason: verdict.Reason,
			})
			log.Info().Str("code", c.signal.Code).Str("reason", verdict.Reason).Msg("buy blocked by governor")
			continue
		}

		if t.cfg.DryRun {
			result.Skipped++
			result.Outcomes = append(result.Outcomes, Outcome{
				Code: c.signal.Code, Action: confluence.ActionBuy, Quantity: quantity,
				Reason: "dry run",
			})
			log.Info().Str("code", c.signal.Code).Int("quantity", quantity).Float64("price", c.quote.Price).Msg("dry run: buy not placed")
			continue
		}

		orderResult, err := t.broker.PlaceOrder(ctx, broker.Order{
			Code: c.signal.Code, Side: broker.SideBuy, Quantity: quantity, Price: c.quote.Price,
		})
		if err != nil || !orderResult.Success {
			reason := "order rejected"
			if err != nil {
				reason = err.Error()
			} else if orderResult.Message != "" {
				reason = orderResult.Message
			}
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %s", c.signal.Code, reason))
			log.Warn().Str("code", c.signal.Code).Str("reason", reason).Msg("buy order failed")
			continue
		}

		session.RecordBuy()
		if err := t.applyBuyFill(portfolio, c.signal, c.quote, quantity, orderResult.OrderRef); err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: persisting fill: %v", c.signal.Code, err))
			log.Error().Str("code", c.signal.Code).Err(err).Msg("buy fill not persisted")
			continue
		}
		result.Executed++
		result.Outcomes = append(result.Outcomes, Outcome{
			Code: c.signal.Code, Action: confluence.ActionBuy, Quantity: quantity,
			Executed: true, Reason: c.signal.Reason, OrderRef: orderResult.OrderRef,
		})
		log.Info().Str("code", c.signal.Code).Int("quantity", quantity).Float64("price", c.quote.Price).Str("order_ref", orderResult.OrderRef).Msg("buy filled")
	}
}

// executeSell runs the governor, places the order and persists the fill.
// rungID is set for ladder partial sells.
func (t *Trader) executeSell(ctx context.Context, log zerolog.Logger, portfolio *store.Portfolio, session *safety.Session, holding *store.Holding, price float64, quantity int, rungID, reason string, currentReturn float64, emergency bool, result *CycleResult) {
	action := confluence.ActionSell
	if rungID != "" {
		action = confluence.ActionPartialSell
	}

	verdict, err := session.CheckSell(holding, currentReturn, emergency)
	if err != nil {
		result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", holding.Code, err))
		return
	}
	if !verdict.Allowed {
		result.Skipped++
		result.Outcomes = append(result.Outcomes, Outcome{
			Code: holding.Code, Action: action, Quantity: quantity, Reason: verdict.Reason,
		})
		log.Info().Str("code", holding.Code).Str("reason", verdict.Reason).Msg("sell blocked by governor")
		return
	}

	if t.cfg.DryRun {
		result.Skipped++
		result.Outcomes = append(result.Outcomes, Outcome{
			Code: holding.Code, Action: action, Quantity: quantity, Reason: "dry run",
		})
		log.Info().Str("code", holding.Code).Int("quantity", quantity).Float64("price", price).Msg("dry run: sell not placed")
		return
	}

	orderResult, err := t.broker.PlaceOrder(ctx, broker.Order{
		Code: holding.Code, Side: broker.SideSell, Quantity: quantity, Price: price,
	})
	if err != nil || !orderResult.Success {
		failReason := "order rejected"
		if err != nil {
			failReason = err.Error()
		} else if orderResult.Message != "" {
			failReason = orderResult.Message
		}
		result.Failures = append(result.Failures, fmt.Sprintf("%s: %s", holding.Code, failReason))
		log.Warn().Str("code", holding.Code).Str("reason", failReason).Msg("sell order failed")
		return
	}

	if err := t.applySellFill(portfolio, holding, price, quantity, rungID, reason, orderResult.OrderRef); err != nil {
		result.Failures = append(result.Failures, fmt.Sprintf("%s: persisting fill: %v", holding.Code, err))
		log.Error().Str("code", holding.Code).Err(err).Msg("sell fill not persisted")
		return
	}
	result.Executed++
	result.Outcomes = append(result.Outcomes, Outcome{
		Code: holding.Code, Action: action, Quantity: quantity,
		Executed: true, Reason: reason, OrderRef: orderResult.OrderRef,
	})
	log.Info().Str("code", holding.Code).Int("quantity", quantity).Float64("price", price).Str("reason", reason).Msg("sell filled")
}

// applyBuyFill updates the portfolio and appends the journal entry for a
// confirmed buy.
func (t *Trader) applyBuyFill(portfolio *store.Portfolio, sig *confluence.Signal, quote *broker.Quote, quantity int, orderRef string) error {
	portfolio.Upsert(store.Holding{
		Code:         sig.Code,
		Sector:       quote.Sector,
		Quantity:     quantity,
		OriginalQty:  quantity,
		AvgPrice:     quote.Price,
		BuyDate:      t.now(),
		HighestPrice: quote.Price,
	})
	if err := t.store.SavePortfolio(portfolio); err != nil {
		return err
	}
	return t.store.AppendTrade(store.TradeRecord{
		Type:      store.TradeBuy,
		Code:      sig.Code,
		Quantity:  quantity,
		Price:     quote.Price,
		Amount:    quote.Price * float64(quantity),
		Reason:    sig.Reason,
		OrderRef:  orderRef,
		Timestamp: t.now(),
	})
}

// applySellFill reduces or removes the holding, appends the journal entry
// and starts the cooldown when the position is fully closed.
func (t *Trader) applySellFill(portfolio *store.Portfolio, holding *store.Holding, price float64, quantity int, rungID, reason, orderRef string) error {
	profit := (price - holding.AvgPrice) * float64(quantity)
	profitRate := 0.0
	if holding.AvgPrice > 0 {
		profitRate = indicator.Round2((price - holding.AvgPrice) / holding.AvgPrice * 100)
	}

	tradeType := store.TradeSell
	if rungID != "" {
		if holding.CompletedRungs == nil {
			holding.CompletedRungs = make(map[string]bool)
		}
		holding.CompletedRungs[rungID] = true
		tradeType = store.TradePartialSell
	}

	holding.Quantity -= quantity
	fullExit := holding.Quantity <= 0
	code := holding.Code
	if fullExit {
		portfolio.Remove(code)
		tradeType = store.TradeSell
	}
	if err := t.store.SavePortfolio(portfolio); err != nil {
		return err
	}
	if err := t.store.AppendTrade(store.TradeRecord{
		Type:       tradeType,
		Code:       code,
		Quantity:   quantity,
		Price:      price,
		Amount:     price * float64(quantity),
		Profit:     profit,
		ProfitRate: profitRate,
		Reason:     reason,
		OrderRef:   orderRef,
		Timestamp:  t.now(),
	}); err != nil {
		return err
	}
	if fullExit {
		return t.governor.RecordSell(code)
	}
	return nil
}

// fetchMarketData pulls the quote and both candle series for one instrument
// through the guarded broker.
func (t *Trader) fetchMarketData(ctx context.Context, code string) (*broker.Quote, []broker.Candle, []broker.Candle, error) {
	quote, err := t.broker.GetQuote(ctx, code)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("quote: %w", err)
	}
	daily, err := t.broker.GetCandles(ctx, code, t.cfg.DailyWindow, broker.Daily)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("daily candles: %w", err)
	}
	weekly, err := t.broker.GetCandles(ctx, code, t.cfg.WeeklyWindow, broker.Weekly)
	if err != nil {
		// Weekly data is advisory for trend alignment; proceed without it
		t.log.Debug().Str("code", code).Err(err).Msg("weekly candles unavailable")
		weekly = nil
	}
	return quote, daily, weekly, nil
}

// recordSnapshot upserts today's return snapshot from the broker's
// authoritative balance.
func (t *Trader) recordSnapshot(ctx context.Context, portfolio *store.Portfolio) error {
	balance, err := t.broker.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching balance: %w", err)
	}
	profitRate := 0.0
	if balance.TotalDeposit > 0 {
		profitRate = indicator.Round2(balance.TotalProfit / balance.TotalDeposit * 100)
	}
	counters, err := t.store.CountersOn(t.now())
	if err != nil {
		return fmt.Errorf("replaying journal: %w", err)
	}
	portfolio.Summary = store.Summary{
		Cash:            balance.Cash,
		TotalEvaluation: balance.TotalEvaluation,
		TotalProfit:     balance.TotalProfit,
	}
	if err := t.store.SavePortfolio(portfolio); err != nil {
		return fmt.Errorf("persisting summary: %w", err)
	}
	return t.store.UpsertSnapshot(store.DailyReturnSnapshot{
		Date:            store.SnapshotDate(t.now()),
		Cash:            balance.Cash,
		TotalDeposit:    balance.TotalDeposit,
		TotalEvaluation: balance.TotalEvaluation,
		TotalProfit:     balance.TotalProfit,
		ProfitRate:      profitRate,
		HoldingCount:    len(portfolio.Holdings),
		Buys:            counters.Buys,
		Sells:           counters.Sells,
		MarketCondition: string(t.engine.MarketCondition(ctx)),
	})
}

// SyncPortfolio reconciles local holdings with the broker's balance:
// broker-reported positions are upserted (preserving local buy dates, high
// water marks and ladder progress), local positions absent at the broker
// are removed.
func (t *Trader) SyncPortfolio(ctx context.Context) error {
	balance, err := t.broker.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching balance: %w", err)
	}
	portfolio, err := t.store.LoadPortfolio()
	if err != nil {
		return fmt.Errorf("loading portfolio: %w", err)
	}

	seen := make(map[string]bool, len(balance.Holdings))
	for _, bh := range balance.Holdings {
		if bh.Quantity <= 0 {
			continue
		}
		seen[bh.Code] = true
		if existing := portfolio.Find(bh.Code); existing != nil {
			existing.Quantity = bh.Quantity
			existing.AvgPrice = bh.AvgPrice
			if bh.CurrentPrice > existing.HighestPrice {
				existing.HighestPrice = bh.CurrentPrice
			}
			continue
		}
		portfolio.Upsert(store.Holding{
			Code:         bh.Code,
			Name:         bh.Name,
			Quantity:     bh.Quantity,
			OriginalQty:  bh.Quantity,
			AvgPrice:     bh.AvgPrice,
			BuyDate:      t.now(),
			HighestPrice: bh.CurrentPrice,
		})
		t.log.Info().Str("code", bh.Code).Int("quantity", bh.Quantity).Msg("holding adopted from broker balance")
	}

	for _, code := range heldCodes(portfolio) {
		if !seen[code] {
			portfolio.Remove(code)
			t.log.Info().Str("code", code).Msg("holding removed, not present at broker")
		}
	}

	// A held instrument never carries a sell cooldown; adopting a position
	// from the broker clears any stale entry left by an earlier sale.
	cooldowns, err := t.store.LoadCooldowns()
	if err != nil {
		return fmt.Errorf("loading cooldowns: %w", err)
	}
	cleared := false
	for _, h := range portfolio.Holdings {
		if _, ok := cooldowns[h.Code]; ok {
			delete(cooldowns, h.Code)
			cleared = true
			t.log.Info().Str("code", h.Code).Msg("cooldown cleared for held instrument")
		}
	}
	if cleared {
		if err := t.store.SaveCooldowns(cooldowns); err != nil {
			return fmt.Errorf("saving cooldowns: %w", err)
		}
	}

	portfolio.Summary = store.Summary{
		Cash:            balance.Cash,
		TotalEvaluation: balance.TotalEvaluation,
		TotalProfit:     balance.TotalProfit,
	}
	return t.store.SavePortfolio(portfolio)
}

func heldCodes(p *store.Portfolio) []string {
	codes := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		codes = append(codes, h.Code)
	}
	return codes
}
