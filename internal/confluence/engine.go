package confluence

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"stock-trading-bot/internal/analysis"
	"stock-trading-bot/internal/broker"
	"stock-trading-bot/internal/indicator"
	"stock-trading-bot/internal/patterns"
)

// Config holds the confluence engine thresholds. Required-condition counts
// are named configuration with no privileged default baked into the logic.
type Config struct {
	RSIPeriod     int     `json:"rsi_period"`
	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`
	FastMA        int     `json:"fast_ma_period"`
	SlowMA        int     `json:"slow_ma_period"`

	StopLossPercent   float64 `json:"stop_loss_percent"`   // Base stop, ATR-scaled at runtime
	TakeProfitPercent float64 `json:"take_profit_percent"` // Fixed take profit
	MinRiskReward     float64 `json:"min_risk_reward"`
	RiskRewardSkip    int     `json:"risk_reward_skip_count"` // Met-count that overrides the gate

	BuyRequired  int `json:"buy_required_conditions"`
	SellRequired int `json:"sell_required_conditions"`

	// Strict filters block a BUY outright; advisory filters attach a
	// warning to the reason but allow it.
	TrendFilterStrict    bool `json:"trend_filter_strict"`
	CouplingFilterStrict bool `json:"coupling_filter_strict"`
	LevelsFilterStrict   bool `json:"levels_filter_strict"`
}

// Inputs is everything the engine needs for one instrument in one cycle.
type Inputs struct {
	Code      string
	Sector    string
	Price     float64
	DayReturn float64
	Daily     []broker.Candle
	Weekly    []broker.Candle
}

// HoldingView is the position context needed for sell evaluation.
type HoldingView struct {
	AvgPrice float64
}

// Engine evaluates buy and sell confluence for one instrument at a time.
type Engine struct {
	config     Config
	recognizer *patterns.Recognizer
	levels     *analysis.LevelDetector
	trend      *analysis.TrendClassifier
	market     *analysis.MarketClassifier
	news       NewsProvider
	flow       FlowProvider
	log        zerolog.Logger
}

// NewEngine creates a confluence engine. News and flow providers may be nil;
// their conditions then read as unknown and are treated as neutral.
func NewEngine(cfg Config, market *analysis.MarketClassifier, news NewsProvider, flow FlowProvider, log zerolog.Logger) *Engine {
	return &Engine{
		config:     cfg,
		recognizer: patterns.NewRecognizer(10),
		levels:     analysis.NewLevelDetector(3, 0.01, 0.015),
		trend:      analysis.NewTrendClassifier(cfg.FastMA, cfg.SlowMA, cfg.RSIPeriod),
		market:     market,
		news:       news,
		flow:       flow,
		log:        log.With().Str("component", "confluence").Logger(),
	}
}

// Analyze computes the full per-cycle snapshot for an instrument.
func (e *Engine) Analyze(ctx context.Context, in Inputs) *Snapshot {
	cfg := e.config
	snap := &Snapshot{
		RSI:        indicator.RSI(in.Daily, cfg.RSIPeriod),
		Bollinger:  indicator.Bollinger(in.Daily, 20, 2.0),
		MACD:       indicator.MACD(in.Daily, 12, 26, 9),
		Stochastic: indicator.Stochastic(in.Daily, 14, 3),
		WilliamsR:  indicator.WilliamsR(in.Daily, 14),
		Volume:     indicator.VolumeSpread(in.Daily, 20),
		VWAP:       indicator.VWAPRatio(in.Daily, 20),
		Squeeze:    indicator.Squeeze(in.Daily, 5, 20),
		ATR:        indicator.ATR(in.Daily, 14),
		MACross:    indicator.MACross(in.Daily, cfg.FastMA, cfg.SlowMA),
		Alignment:  indicator.Alignment(in.Daily, cfg.FastMA, cfg.SlowMA, 60),
		Fibonacci:  indicator.Fibonacci(in.Daily, 30),
		Patterns:   e.recognizer.Recognize(in.Daily),
		Levels:     e.levels.Detect(in.Daily),
		Trend:      e.trend.Classify(in.Weekly, in.Daily),
	}

	if e.market != nil {
		if mr, err := e.market.Classify(ctx, in.Code, in.Sector, in.DayReturn); err == nil {
			snap.Market = mr
		} else {
			e.log.Warn().Str("code", in.Code).Err(err).Msg("market classification unavailable")
		}
	}
	if e.news != nil {
		if ns, err := e.news.Sentiment(ctx, in.Code); err == nil {
			snap.News = ns
		}
	}
	if e.flow != nil {
		if fs, err := e.flow.Flow(ctx, in.Code); err == nil {
			snap.Flow = fs
		}
	}
	return snap
}

// MarketCondition reports the broad-market classification on its own, for
// end-of-cycle bookkeeping. Neutral when no classifier is wired or index
// data is unavailable.
func (e *Engine) MarketCondition(ctx context.Context) analysis.MarketCondition {
	if e.market == nil {
		return analysis.MarketNeutral
	}
	mr, err := e.market.Classify(ctx, "", "", 0)
	if err != nil || !mr.Valid {
		return analysis.MarketNeutral
	}
	return mr.Condition
}

type condition struct {
	name string
	met  bool
}

// EvaluateBuy runs the ordered buy checklist for an unheld instrument.
// It returns a HOLD signal when the confirmation count or a strict filter
// rejects the candidate.
func (e *Engine) EvaluateBuy(ctx context.Context, in Inputs) *Signal {
	snap := e.Analyze(ctx, in)
	cfg := e.config

	conditions := []condition{
		{"RSI oversold", snap.RSI.Valid && snap.RSI.Value <= cfg.RSIOversold},
		{"price at lower band", snap.Bollinger.Valid && (snap.Bollinger.Zone == indicator.ZoneLower || snap.Bollinger.Zone == indicator.ZoneBelowLower)},
		{"MACD golden cross", snap.MACD.Valid && snap.MACD.Cross == indicator.MACDGoldenCross},
		{"stochastic oversold cross", snap.Stochastic.Valid && snap.Stochastic.GoldenCross && snap.Stochastic.K <= 35},
		{"Williams %R oversold", snap.WilliamsR.Valid && snap.WilliamsR.Value <= -80},
		{"MA golden cross", snap.MACross.Valid && snap.MACross.GoldenCross},
		{"MA alignment", snap.Alignment.Valid && snap.Alignment.Bullish},
		{"price below VWAP", snap.VWAP.Valid && snap.VWAP.Ratio <= 0.98},
		{"volatility squeeze", snap.Squeeze.Valid && snap.Squeeze.State == indicator.VolatilitySqueeze},
		{"golden zone retracement", snap.Fibonacci.Valid && snap.Fibonacci.Zone == indicator.FibGoldenZone},
		{"bullish pattern", snap.Patterns.Valid && (snap.Patterns.Bucket == patterns.Bullish || snap.Patterns.Bucket == patterns.StrongBullish)},
		{"buying volume pressure", snap.Volume.Valid && (snap.Volume.Pressure == indicator.PressureBuying || snap.Volume.Pressure == indicator.PressureStrongBuying)},
		{"timeframe alignment", snap.Trend.Valid && snap.Trend.Alignment == analysis.AlignedBullish},
		{"liquidity sweep or support", snap.Levels.Valid && (snap.Levels.Sweep == analysis.SweepBullish || snap.Levels.Proximity == analysis.AtSupport)},
		{"favorable news sentiment", snap.News.Valid && snap.News.Score > 0.2},
		{"favorable supply-demand flow", snap.Flow.Valid && snap.Flow.Favorable},
	}

	met, reasons := tally(conditions)
	signal := &Signal{
		Code:               in.Code,
		Action:             ActionHold,
		Priority:           3,
		ConditionsMet:      met,
		ConditionsRequired: cfg.BuyRequired,
		Analysis:           snap,
	}

	if met < cfg.BuyRequired {
		signal.Reason = fmt.Sprintf("%d/%d conditions met", met, cfg.BuyRequired)
		return signal
	}

	// Blocking filters run only on otherwise-eligible candidates.
	var warnings []string
	if block, note := e.applyFilter("trend", cfg.TrendFilterStrict,
		snap.Trend.Valid && (snap.Trend.Alignment == analysis.AlignedBearish || snap.Trend.Alignment == analysis.Conflicted),
		string(snap.Trend.Alignment)); block {
		signal.Reason = note
		return signal
	} else if note != "" {
		warnings = append(warnings, note)
	}
	if block, note := e.applyFilter("coupling", cfg.CouplingFilterStrict,
		snap.Market.Valid && snap.Market.Verdict == analysis.CouplingBlock,
		string(snap.Market.Verdict)); block {
		signal.Reason = note
		return signal
	} else if note != "" {
		warnings = append(warnings, note)
	}
	if block, note := e.applyFilter("levels", cfg.LevelsFilterStrict,
		snap.Levels.Valid && snap.Levels.Proximity == analysis.AtResistance,
		string(snap.Levels.Proximity)); block {
		signal.Reason = note
		return signal
	} else if note != "" {
		warnings = append(warnings, note)
	}

	// Risk/reward gate: fixed take profit over the volatility-scaled stop.
	stopPct := e.scaledStop(snap)
	if stopPct > 0 {
		rr := cfg.TakeProfitPercent / stopPct
		if rr < cfg.MinRiskReward && met < cfg.RiskRewardSkip {
			signal.Reason = fmt.Sprintf("risk/reward %.2f below minimum %.2f", rr, cfg.MinRiskReward)
			return signal
		}
	}

	signal.Action = ActionBuy
	signal.Priority = e.buyPriority(snap, met)
	signal.Reason = strings.Join(append(reasons, warnings...), ", ")
	return signal
}

// EvaluateSell runs the sell paths for a held instrument: the emergency
// path first (bypasses the confirmation count), then the ordinary
// multi-confirmation path.
func (e *Engine) EvaluateSell(ctx context.Context, in Inputs, holding HoldingView) *Signal {
	snap := e.Analyze(ctx, in)
	cfg := e.config

	currentReturn := 0.0
	if holding.AvgPrice > 0 {
		currentReturn = indicator.Round2((in.Price - holding.AvgPrice) / holding.AvgPrice * 100)
	}

	// Emergency path: volatility-scaled stop loss breach
	stopPct := e.scaledStop(snap)
	if stopPct > 0 && currentReturn <= -stopPct {
		return &Signal{
			Code:      in.Code,
			Action:    ActionSell,
			Priority:  1,
			Emergency: true,
			Reason:    fmt.Sprintf("emergency stop-loss: return %.2f%% breached -%.2f%%", currentReturn, stopPct),
			Analysis:  snap,
		}
	}
	// Emergency path: negative news while losing
	if snap.News.Valid && snap.News.Negative && currentReturn < 0 {
		return &Signal{
			Code:      in.Code,
			Action:    ActionSell,
			Priority:  1,
			Emergency: true,
			Reason:    fmt.Sprintf("negative news with open loss %.2f%%", currentReturn),
			Analysis:  snap,
		}
	}

	conditions := []condition{
		{"RSI overbought", snap.RSI.Valid && snap.RSI.Value >= cfg.RSIOverbought},
		{"price at upper band", snap.Bollinger.Valid && (snap.Bollinger.Zone == indicator.ZoneUpper || snap.Bollinger.Zone == indicator.ZoneAboveUpper)},
		{"MACD dead cross", snap.MACD.Valid && snap.MACD.Cross == indicator.MACDDeadCross},
		{"stochastic overbought cross", snap.Stochastic.Valid && snap.Stochastic.DeadCross && snap.Stochastic.K >= 65},
		{"MA dead cross", snap.MACross.Valid && snap.MACross.DeadCross},
		{"bearish MA alignment", snap.Alignment.Valid && snap.Alignment.Bearish},
		{"price stretched above VWAP", snap.VWAP.Valid && snap.VWAP.Ratio >= 1.05},
		{"bearish pattern", snap.Patterns.Valid && (snap.Patterns.Bucket == patterns.Bearish || snap.Patterns.Bucket == patterns.StrongBearish)},
		{"selling volume pressure", snap.Volume.Valid && (snap.Volume.Pressure == indicator.PressureSelling || snap.Volume.Pressure == indicator.PressureStrongSelling)},
		{"bearish timeframe alignment", snap.Trend.Valid && snap.Trend.Alignment == analysis.AlignedBearish},
		{"liquidity sweep or resistance", snap.Levels.Valid && (snap.Levels.Sweep == analysis.SweepBearish || snap.Levels.Proximity == analysis.AtResistance)},
	}

	met, reasons := tally(conditions)
	signal := &Signal{
		Code:               in.Code,
		Action:             ActionHold,
		Priority:           3,
		ConditionsMet:      met,
		ConditionsRequired: cfg.SellRequired,
		Analysis:           snap,
	}
	if met >= cfg.SellRequired {
		signal.Action = ActionSell
		signal.Priority = 2
		signal.Reason = strings.Join(reasons, ", ")
	} else {
		signal.Reason = fmt.Sprintf("%d/%d sell conditions met", met, cfg.SellRequired)
	}
	return signal
}

// scaledStop returns the stop-loss percentage scaled by volatility: the
// configured base widened when ATR indicates a noisier instrument.
func (e *Engine) scaledStop(snap *Snapshot) float64 {
	stop := e.config.StopLossPercent
	if snap.ATR.Valid && snap.ATR.Percent*1.5 > stop {
		stop = snap.ATR.Percent * 1.5
	}
	return indicator.Round2(stop)
}

func (e *Engine) buyPriority(snap *Snapshot, met int) int {
	switch {
	case snap.Levels.Valid && snap.Levels.Sweep == analysis.SweepBullish:
		return 1
	case met >= e.config.BuyRequired+2:
		return 2
	default:
		return 3
	}
}

// applyFilter evaluates one strict/advisory filter. It returns block=true
// only in strict mode; advisory mode returns a warning note instead.
func (e *Engine) applyFilter(name string, strict, unfavorable bool, detail string) (block bool, note string) {
	if !unfavorable {
		return false, ""
	}
	if strict {
		return true, fmt.Sprintf("blocked by %s filter (%s)", name, detail)
	}
	return false, fmt.Sprintf("warning: %s filter unfavorable (%s)", name, detail)
}

func tally(conditions []condition) (int, []string) {
	met := 0
	var reasons []string
	for _, c := range conditions {
		if c.met {
			met++
			reasons = append(reasons, c.name)
		}
	}
	return met, reasons
}
