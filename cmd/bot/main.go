package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"daytrader/internal/broker"
	"daytrader/internal/config"
	"daytrader/internal/engine"
	"daytrader/internal/logger"
	"daytrader/internal/sink"
	"daytrader/internal/stream"
	"daytrader/internal/universe"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "daytrader: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer func() { _ = log.Sync() }()

	runID := generateRunID()
	decisions, err := engine.NewDecisionLogger(cfg.Trading.DecisionsPath, runID)
	if err != nil {
		return fmt.Errorf("decision logger error: %w", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Warn("failed to close decision logger", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	brokerClient := broker.New(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.BaseURL,
		cfg.Trading.AccountCacheTTL,
		log,
	)

	session, err := brokerClient.Session(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("resolve trading session: %w", err)
	}
	log.Info("trading session resolved",
		zap.Time("open", session.Open),
		zap.Time("close", session.Close),
		zap.String("run_id", runID))

	// The minute-bar sink is best effort; a dead database never blocks the
	// trading day.
	var barSink engine.BarWriter
	if cfg.Postgres.Enabled() {
		store, err := sink.Open(cfg.Postgres.DSN(), log)
		if err != nil {
			log.Warn("minute bar sink unavailable, continuing without persistence", zap.Error(err))
		} else {
			barSink = store
			defer func() {
				if err := store.Close(); err != nil {
					log.Warn("failed to close minute bar sink", zap.Error(err))
				}
			}()
		}
	}

	feed := stream.ParseFeed(cfg.Alpaca.Feed)
	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
	})
	data := universe.NewAlpacaData(dataClient, feed)

	screener := universe.NewScreener(universe.NewAlpacaAssets(brokerClient.Raw()), data, log)
	candidates, err := screener.Screen(ctx, universe.Criteria{
		MinSharePrice:   cfg.Screen.MinSharePrice,
		MaxSharePrice:   cfg.Screen.MaxSharePrice,
		MinDollarVolume: cfg.Screen.MinDollarVolume,
		MinChangePct:    cfg.Screen.MinChangePct,
		MaxSymbols:      cfg.Screen.MaxSymbols,
	})
	if err != nil {
		return fmt.Errorf("screen universe: %w", err)
	}
	eng := engine.New(brokerClient, barSink, session, cfg.Trading.StaleOrderAfter, decisions, log)
	for _, c := range candidates {
		seed, err := data.Backfill(ctx, c.Symbol, cfg.Trading.BackfillMinutes)
		if err != nil {
			log.Warn("backfill failed, skipping symbol",
				zap.String("symbol", c.Symbol),
				zap.Error(err))
			continue
		}
		eng.Register(c.Symbol, seed, c.PrevClose, c.VolumeToday)
	}
	if err := cancelWatchedOrders(ctx, brokerClient, eng, log); err != nil {
		return err
	}
	if err := adoptPositions(ctx, brokerClient, eng, data, cfg.Trading.BackfillMinutes, log); err != nil {
		return err
	}
	watched := eng.Watched()
	if len(watched) == 0 {
		log.Info("nothing passed the screen and no positions are held, done for today")
		return nil
	}

	// Trading starts one minute before the entry window opens so the first
	// evaluation sees a complete first-15-minute high.
	if err := waitUntil(ctx, session.Open.Add(14*time.Minute), log); err != nil {
		return err
	}

	supervisor := stream.NewSupervisor(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		feed,
		eng.OnTick,
		eng.OnMinuteBar,
		log,
	)
	eng.SetRemovalHooks(supervisor.Unsubscribe, func() {
		log.Info("watch-list empty, ending session")
		supervisor.Stop()
	})

	go func() {
		err := stream.RunTradeUpdates(ctx, brokerClient, eng.OnTradeUpdate, log)
		if err != nil && err != context.Canceled {
			log.Error("trade update stream stopped", zap.Error(err))
		}
	}()

	log.Info("starting market data stream",
		zap.Strings("symbols", watched),
		zap.String("feed", string(feed)))
	if err := supervisor.Run(ctx, watched); err != nil && err != context.Canceled {
		return fmt.Errorf("market data stream: %w", err)
	}

	log.Info("shutdown complete", zap.String("run_id", runID))
	return nil
}

// cancelWatchedOrders clears leftover open orders on watched symbols so the
// engine starts the day with a clean one-order-per-symbol slate.
func cancelWatchedOrders(ctx context.Context, brokerClient *broker.Client, eng *engine.Engine, log *zap.Logger) error {
	open, err := brokerClient.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}
	watched := make(map[string]struct{})
	for _, symbol := range eng.Watched() {
		watched[symbol] = struct{}{}
	}
	for _, order := range open {
		if _, ok := watched[order.Symbol]; !ok {
			continue
		}
		if err := brokerClient.CancelOrder(ctx, order.ID); err != nil {
			log.Warn("startup cancel failed",
				zap.String("symbol", order.Symbol),
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}
	return nil
}

// adoptPositions folds pre-existing brokerage positions into engine state so
// they are managed and liquidated like fresh entries. A position on a symbol
// the screen missed still joins the watch-list, backfilled so its exit
// evaluation has history to work with.
func adoptPositions(ctx context.Context, brokerClient *broker.Client, eng *engine.Engine, data *universe.AlpacaData, backfillMinutes int, log *zap.Logger) error {
	positions, err := brokerClient.Positions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	watched := make(map[string]struct{})
	for _, symbol := range eng.Watched() {
		watched[symbol] = struct{}{}
	}
	for _, pos := range positions {
		if _, ok := watched[pos.Symbol]; !ok {
			seed, err := data.Backfill(ctx, pos.Symbol, backfillMinutes)
			if err != nil {
				log.Warn("backfill failed for held position, leaving it unmanaged",
					zap.String("symbol", pos.Symbol),
					zap.Error(err))
				continue
			}
			eng.Register(pos.Symbol, seed, 0, 0)
		}
		eng.AdoptPosition(pos.Symbol, pos.Qty, pos.AvgEntry)
	}
	return nil
}

func waitUntil(ctx context.Context, at time.Time, log *zap.Logger) error {
	wait := time.Until(at)
	if wait <= 0 {
		return nil
	}
	log.Info("waiting for trading window", zap.Time("until", at), zap.Duration("wait", wait))
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
