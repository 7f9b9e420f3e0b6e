package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"stock-trading-bot/config"
	"stock-trading-bot/internal/analysis"
	"stock-trading-bot/internal/broker"
	"stock-trading-bot/internal/circuit"
	"stock-trading-bot/internal/confluence"
	"stock-trading-bot/internal/exit"
	"stock-trading-bot/internal/logging"
	"stock-trading-bot/internal/safety"
	"stock-trading-bot/internal/store"
	"stock-trading-bot/internal/trader"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	syncFirst := flag.Bool("sync", false, "reconcile holdings from the broker balance before the cycle")
	dryRun := flag.Bool("dry-run", false, "evaluate signals but place no orders")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Str("config", *configPath).Bool("dry_run", cfg.DryRun).Msg("starting")

	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store initialization failed")
	}

	// The broker client is an external collaborator. Without credentials the
	// deterministic mock backs dry runs; live trading refuses to start.
	var client broker.Broker
	if cfg.DryRun {
		client = broker.NewMockBroker()
		logger.Warn().Msg("no broker credentials, using mock client")
	} else {
		logger.Fatal().Msg("broker credentials not configured; run with -dry-run or wire a broker client")
	}

	breaker := circuit.NewBreaker(cfg.Breaker)
	guarded := broker.NewGuard(client, breaker, broker.GuardConfig{
		CallTimeout: cfg.Guard.CallTimeout(),
		CallsPerSec: cfg.Guard.CallsPerSec,
		Burst:       cfg.Guard.Burst,
	}, logger)

	market := analysis.NewMarketClassifier(guarded, cfg.Market.IndexCodes, cfg.Market.Sectors, cfg.Market.CacheTTL(), time.Now)
	engine := confluence.NewEngine(cfg.Signals, market, confluence.StaticNews{}, confluence.StaticFlow{}, logger)
	exits := exit.NewEngine(cfg.Exits)
	governor := safety.New(cfg.Safety, st, logger)

	bot := trader.New(trader.Config{
		Universe:    cfg.Universe,
		BuyAmount:   cfg.Trading.BuyAmount,
		MaxHoldings: cfg.Trading.MaxHoldings,
		DryRun:      cfg.DryRun,
	}, guarded, engine, exits, governor, st, logger)

	// Cancellation is cooperative at the cycle boundary: an in-flight cycle
	// finishes its current broker call before the context stops the rest.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *syncFirst {
		if err := bot.SyncPortfolio(ctx); err != nil {
			logger.Fatal().Err(err).Msg("portfolio sync failed")
		}
		logger.Info().Msg("portfolio synced from broker balance")
	}

	result, err := bot.RunCycle(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("cycle failed")
	}
	logger.Info().
		Str("cycle_id", result.CycleID).
		Int("evaluated", result.Evaluated).
		Int("executed", result.Executed).
		Int("skipped", result.Skipped).
		Int("failures", len(result.Failures)).
		Msg("done")
}
