package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"stock-trading-bot/internal/circuit"
	"stock-trading-bot/internal/confluence"
	"stock-trading-bot/internal/exit"
	"stock-trading-bot/internal/logging"
	"stock-trading-bot/internal/safety"
)

// Config is the immutable configuration value passed into each component at
// construction. It is loaded once at startup and never mutated afterwards.
type Config struct {
	DataDir  string   `json:"data_dir"`
	Universe []string `json:"universe"` // Instrument codes to evaluate each cycle
	DryRun   bool     `json:"dry_run"`  // Log orders without placing them

	Trading TradingConfig     `json:"trading"`
	Market  MarketConfig      `json:"market"`
	Signals confluence.Config `json:"signals"`
	Exits   exit.Config       `json:"exits"`
	Safety  safety.Config     `json:"safety"`
	Breaker circuit.Config    `json:"circuit_breaker"`
	Guard   GuardConfig       `json:"broker_guard"`
	Logging logging.Config    `json:"logging"`
}

// TradingConfig holds position sizing and universe limits.
type TradingConfig struct {
	BuyAmount   float64 `json:"buy_amount"`   // Quote-currency amount per buy
	MaxHoldings int     `json:"max_holdings"` // Maximum concurrent positions
}

// MarketConfig identifies the index instruments and sector groupings used
// for market condition and coupling analysis.
type MarketConfig struct {
	IndexCodes  [2]string           `json:"index_codes"` // Primary and secondary market index
	Sectors     map[string][]string `json:"sectors"`     // Sector name -> representative codes
	CacheTTLMin int                 `json:"cache_ttl_minutes"`
}

// CacheTTL returns the index/sector cache lifetime as a duration.
func (m MarketConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLMin) * time.Minute
}

// GuardConfig mirrors broker.GuardConfig with a plain-seconds timeout so
// the JSON file stays readable.
type GuardConfig struct {
	CallTimeoutSec int     `json:"call_timeout_sec"`
	CallsPerSec    float64 `json:"calls_per_sec"`
	Burst          int     `json:"burst"`
}

// CallTimeout returns the per-call deadline as a duration.
func (g GuardConfig) CallTimeout() time.Duration {
	return time.Duration(g.CallTimeoutSec) * time.Second
}

// Default returns the configuration shipped in config.json.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Trading: TradingConfig{
			BuyAmount:   1_000_000,
			MaxHoldings: 8,
		},
		Market: MarketConfig{
			IndexCodes:  [2]string{"0001", "1001"},
			CacheTTLMin: 5,
		},
		Signals: confluence.Config{
			RSIPeriod:            14,
			RSIOversold:          30,
			RSIOverbought:        70,
			FastMA:               5,
			SlowMA:               20,
			StopLossPercent:      5.0,
			TakeProfitPercent:    10.0,
			MinRiskReward:        1.5,
			RiskRewardSkip:       8,
			BuyRequired:          5,
			SellRequired:         3,
			TrendFilterStrict:    true,
			CouplingFilterStrict: false,
			LevelsFilterStrict:   false,
		},
		Exits: exit.Config{
			Ladder: []exit.Rung{
				{ID: "L1", ProfitThreshold: 5.0, SellFraction: 0.3},
				{ID: "L2", ProfitThreshold: 10.0, SellFraction: 0.3},
				{ID: "L3", ProfitThreshold: 20.0, SellFraction: 0.2},
			},
			TrailingActivation: 7.0,
			TrailingPercent:    3.0,
			TrailingFloor:      2.0,
		},
		Safety: safety.Config{
			CooldownHours:    48,
			MinHoldingHours:  24,
			MinProfitPercent: 1.0,
			MaxPerSector:     2,
			MaxBuysPerRun:    3,
			DailyBuyCap:      5,
			DailySellCap:     10,
		},
		Breaker: circuit.DefaultConfig(),
		Guard: GuardConfig{
			CallTimeoutSec: 10,
			CallsPerSec:    2,
			Burst:          1,
		},
		Logging: logging.Config{Level: "info", Output: "stdout"},
	}
}

// Load reads the config file at path (Default() when the file is absent),
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to defaults
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Trading.MaxHoldings <= 0 {
		return fmt.Errorf("trading.max_holdings must be positive")
	}
	if c.Trading.BuyAmount <= 0 {
		return fmt.Errorf("trading.buy_amount must be positive")
	}
	if c.Signals.BuyRequired <= 0 || c.Signals.SellRequired <= 0 {
		return fmt.Errorf("signals.buy/sell required condition counts must be positive")
	}
	for _, rung := range c.Exits.Ladder {
		if rung.SellFraction <= 0 || rung.SellFraction > 1 {
			return fmt.Errorf("exit ladder rung %s: sell_fraction must be in (0,1]", rung.ID)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TRADER_DRY_RUN"); v != "" {
		cfg.DryRun = v == "true" || v == "1"
	}
	if v := os.Getenv("TRADER_BUY_AMOUNT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.BuyAmount = f
		}
	}
	if v := os.Getenv("TRADER_MAX_HOLDINGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trading.MaxHoldings = n
		}
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
