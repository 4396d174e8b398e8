// Package stream supervises the live market-data connection: trade ticks and
// authoritative minute bars for the watch-list, with automatic reconnection.
// A dropped connection is routine during a trading day, so the supervisor
// reconnects forever with exponential backoff and resubscribes to whatever
// symbols are still watched.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"go.uber.org/zap"

	"daytrader/internal/bars"
)

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// TickHandler receives one trade converted to a degenerate bar (open, high,
// low and close all set to the trade price).
type TickHandler func(ctx context.Context, symbol string, tick bars.Bar)

// BarHandler receives one authoritative minute bar.
type BarHandler func(ctx context.Context, symbol string, bar bars.Bar)

// Supervisor owns the stocks stream for the session. Symbols can be removed
// while the stream runs; reconnects resubscribe to whatever remains.
type Supervisor struct {
	apiKey    string
	apiSecret string
	feed      marketdata.Feed
	log       *zap.Logger

	onTick TickHandler
	onBar  BarHandler

	mu      sync.Mutex
	symbols map[string]struct{}
	client  *stream.StocksClient
	stopped bool
	stop    context.CancelFunc
}

func NewSupervisor(apiKey, apiSecret string, feed marketdata.Feed, onTick TickHandler, onBar BarHandler, log *zap.Logger) *Supervisor {
	return &Supervisor{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		feed:      feed,
		log:       log,
		onTick:    onTick,
		onBar:     onBar,
		symbols:   make(map[string]struct{}),
	}
}

// Run connects and blocks until ctx is canceled, Stop is called, or the
// watch-list empties. Connection loss is absorbed by reconnecting with
// exponential backoff; only a canceled context or an explicit stop ends the
// loop.
func (s *Supervisor) Run(ctx context.Context, symbols []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	for _, symbol := range symbols {
		s.symbols[symbol] = struct{}{}
	}
	s.stop = cancel
	s.mu.Unlock()

	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		if s.stopped || len(s.symbols) == 0 {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.mu.Lock()
		done := s.stopped || len(s.symbols) == 0
		s.mu.Unlock()
		if done {
			return nil
		}

		s.log.Warn("market data stream lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce makes one connection attempt and blocks until it terminates.
func (s *Supervisor) runOnce(ctx context.Context) error {
	client := stream.NewStocksClient(
		s.feed,
		stream.WithCredentials(s.apiKey, s.apiSecret),
	)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect market data stream: %w", err)
	}

	s.mu.Lock()
	symbols := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		symbols = append(symbols, symbol)
	}
	s.client = client
	s.mu.Unlock()

	if err := client.SubscribeToTrades(func(t stream.Trade) {
		s.onTick(ctx, t.Symbol, bars.Bar{
			Timestamp: t.Timestamp,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    uint64(t.Size),
		})
	}, symbols...); err != nil {
		return fmt.Errorf("subscribe to trades: %w", err)
	}
	if err := client.SubscribeToBars(func(b stream.Bar) {
		s.onBar(ctx, b.Symbol, bars.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    uint64(b.Volume),
		})
	}, symbols...); err != nil {
		return fmt.Errorf("subscribe to bars: %w", err)
	}

	s.log.Info("market data stream connected",
		zap.Int("symbols", len(symbols)),
		zap.String("feed", string(s.feed)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Terminated():
		return err
	}
}

// Unsubscribe drops one symbol from the live subscriptions and the resubscribe
// set. Called after the engine removes a symbol from the watch-list.
func (s *Supervisor) Unsubscribe(symbol string) {
	s.mu.Lock()
	delete(s.symbols, symbol)
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return
	}
	if err := client.UnsubscribeFromTrades(symbol); err != nil {
		s.log.Warn("unsubscribe trades failed", zap.String("symbol", symbol), zap.Error(err))
	}
	if err := client.UnsubscribeFromBars(symbol); err != nil {
		s.log.Warn("unsubscribe bars failed", zap.String("symbol", symbol), zap.Error(err))
	}
	s.log.Info("symbol unsubscribed", zap.String("symbol", symbol))
}

// Stop ends the supervision loop. Safe to call from engine callbacks.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// ParseFeed maps a config string onto a market data feed, defaulting to IEX.
func ParseFeed(feed string) marketdata.Feed {
	switch feed {
	case "sip":
		return marketdata.SIP
	case "iex", "":
		return marketdata.IEX
	default:
		return marketdata.IEX
	}
}
