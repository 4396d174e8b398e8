// Package engine drives the per-symbol trading state machine: ticks and
// minute bars flow in, orders flow out, and trade updates reconcile position
// state. Symbols are independent; handlers for different symbols run
// concurrently while each symbol's state is serialized behind its own lock.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"go.uber.org/zap"

	"daytrader/internal/bars"
	"daytrader/internal/broker"
	"daytrader/internal/clock"
	"daytrader/internal/strategy"
)

// Brokerage is the order surface the engine drives.
type Brokerage interface {
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	AccountValues(ctx context.Context) (broker.AccountValues, error)
}

// BarWriter persists authoritative minute bars. Nil disables persistence.
type BarWriter interface {
	WriteBar(ctx context.Context, symbol string, b bars.Bar) error
}

type Engine struct {
	log       *zap.Logger
	brokerage Brokerage
	sink      BarWriter
	session   clock.Session
	decisions *DecisionLogger

	staleOrderAfter time.Duration

	mu      sync.RWMutex
	symbols map[string]*SymbolState

	onRemove func(symbol string)
	onEmpty  func()
}

// New builds an engine over the given session. sink and decisions may be nil.
func New(brokerage Brokerage, sink BarWriter, session clock.Session, staleOrderAfter time.Duration, decisions *DecisionLogger, log *zap.Logger) *Engine {
	return &Engine{
		log:             log,
		brokerage:       brokerage,
		sink:            sink,
		session:         session,
		decisions:       decisions,
		staleOrderAfter: staleOrderAfter,
		symbols:         make(map[string]*SymbolState),
	}
}

// SetRemovalHooks installs callbacks fired after a symbol leaves the
// watch-list and after the last symbol leaves. Call before any events flow.
func (e *Engine) SetRemovalHooks(onRemove func(symbol string), onEmpty func()) {
	e.onRemove = onRemove
	e.onEmpty = onEmpty
}

// Register adds a symbol to the watch-list with its seeded history and daily
// reference values. Re-registering a symbol replaces its state.
func (e *Engine) Register(symbol string, seed []bars.Bar, prevClose float64, volumeToday uint64) {
	e.mu.Lock()
	e.symbols[symbol] = newSymbolState(symbol, seed, prevClose, volumeToday)
	e.mu.Unlock()
	e.log.Info("symbol registered",
		zap.String("symbol", symbol),
		zap.Int("seed_bars", len(seed)),
		zap.Float64("prev_close", prevClose))
}

// AdoptPosition records a pre-existing brokerage position on an already
// registered symbol. The stop falls back to a fixed fraction of cost basis
// since the original entry decision is gone.
func (e *Engine) AdoptPosition(symbol string, qty int, costBasis float64) {
	st := e.lookup(symbol)
	if st == nil {
		e.log.Warn("adopt position for unwatched symbol", zap.String("symbol", symbol))
		return
	}
	st.mu.Lock()
	st.position = qty
	st.costBasis = costBasis
	st.stopPrice = costBasis * strategy.StopFallbackRatio
	st.targetPrice = costBasis + strategy.RewardMultiple*(costBasis-st.stopPrice)
	st.mu.Unlock()
	e.log.Info("position adopted",
		zap.String("symbol", symbol),
		zap.Int("qty", qty),
		zap.Float64("cost_basis", costBasis))
}

// Watched returns the symbols currently on the watch-list.
func (e *Engine) Watched() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.symbols))
	for symbol := range e.symbols {
		out = append(out, symbol)
	}
	return out
}

func (e *Engine) lookup(symbol string) *SymbolState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.symbols[symbol]
}

func (e *Engine) remove(symbol string) {
	e.mu.Lock()
	if _, ok := e.symbols[symbol]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.symbols, symbol)
	empty := len(e.symbols) == 0
	e.mu.Unlock()

	e.log.Info("symbol removed", zap.String("symbol", symbol))
	if e.onRemove != nil {
		e.onRemove(symbol)
	}
	if empty && e.onEmpty != nil {
		e.onEmpty()
	}
}

// OnTick folds one tick into the symbol's history and evaluates the window
// the tick falls in. Ticks for unwatched symbols are dropped.
func (e *Engine) OnTick(ctx context.Context, symbol string, tick bars.Bar) {
	st := e.lookup(symbol)
	if st == nil {
		return
	}

	var staleOrderID string
	removeAfter := false

	st.mu.Lock()
	st.history.ApplyTick(tick)

	switch {
	case st.openOrder != nil:
		// One open order at a time. Cancel it once it has aged out so the
		// symbol is not stuck waiting on a limit that will never fill.
		if e.staleOrderAfter > 0 && tick.Timestamp.Sub(st.openOrder.SubmittedAt) > e.staleOrderAfter {
			staleOrderID = st.openOrder.ID
		}
	default:
		switch e.session.WindowAt(tick.Timestamp) {
		case clock.WarmUp:
		case clock.Entry:
			e.tryEnter(ctx, st, tick)
		case clock.HoldExit:
			e.tryExit(ctx, st, tick)
		case clock.CloseOut:
			removeAfter = e.closeOut(ctx, st, tick)
		}
	}
	st.mu.Unlock()

	if staleOrderID != "" {
		e.log.Info("canceling stale order",
			zap.String("symbol", symbol),
			zap.String("order_id", staleOrderID))
		go func() {
			_ = e.brokerage.CancelOrder(context.WithoutCancel(ctx), staleOrderID)
		}()
	}
	// Removal runs after the handler releases the symbol lock so the final
	// close-out decision is fully recorded first.
	if removeAfter {
		e.remove(symbol)
	}
}

// OnMinuteBar overwrites the symbol's minute with the authoritative bar and
// accumulates session volume, then persists the bar.
func (e *Engine) OnMinuteBar(ctx context.Context, symbol string, bar bars.Bar) {
	st := e.lookup(symbol)
	if st == nil {
		return
	}
	st.mu.Lock()
	st.history.SetMinute(bar)
	st.volumeToday += bar.Volume
	st.mu.Unlock()

	if e.sink == nil {
		return
	}
	if err := e.sink.WriteBar(ctx, symbol, bar); err != nil {
		e.log.Warn("minute bar persist failed",
			zap.String("symbol", symbol),
			zap.Time("minute", bar.Minute()),
			zap.Error(err))
	}
}

// OnTradeUpdate reconciles an order acknowledgement into position state.
func (e *Engine) OnTradeUpdate(u broker.TradeUpdate) {
	st := e.lookup(u.Symbol)
	if st == nil {
		return
	}
	st.mu.Lock()
	applied := st.applyTradeUpdate(u)
	position := st.position
	st.mu.Unlock()

	if !applied {
		e.log.Debug("trade update ignored",
			zap.String("symbol", u.Symbol),
			zap.String("event", u.Event),
			zap.String("order_id", u.OrderID))
		return
	}
	e.log.Info("trade update applied",
		zap.String("symbol", u.Symbol),
		zap.String("event", u.Event),
		zap.Int("filled_qty", u.FilledQty),
		zap.Float64("filled_avg_price", u.FilledAvgPrice),
		zap.Int("position", position))
}

// tryEnter evaluates the entry gates and submits a limit buy. Callers hold
// st.mu.
func (e *Engine) tryEnter(ctx context.Context, st *SymbolState, tick bars.Bar) {
	if st.position != 0 {
		return
	}
	high15m, ok := st.history.HighBetween(e.session.Open, e.session.EntryCutoff())
	if !ok {
		return
	}
	account, err := e.brokerage.AccountValues(ctx)
	if err != nil {
		e.log.Warn("account values unavailable", zap.String("symbol", st.symbol), zap.Error(err))
		return
	}

	signal, ok := strategy.EvaluateEntry(strategy.EntryContext{
		Close:          tick.Close,
		PrevClose:      st.prevClose,
		High15m:        high15m,
		VolumeToday:    st.volumeToday,
		Closes:         st.history.Closes(),
		Lows:           st.history.Lows(strategy.ValleyLookback),
		PositionQty:    st.position,
		PortfolioValue: account.PortfolioValue,
		AvailableCash:  account.Cash,
	})
	if !ok {
		return
	}

	limit := signal.LimitPrice
	order, err := e.brokerage.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:     st.symbol,
		Qty:        signal.Qty,
		Side:       alpaca.Buy,
		Type:       alpaca.Limit,
		LimitPrice: &limit,
	})
	if err != nil {
		e.decide(st, tick, "entry_failed", signal.Qty, signal, "", err)
		return
	}
	st.trackOrder(order)
	st.costBasis = tick.Close
	st.stopPrice = signal.StopPrice
	st.targetPrice = signal.TargetPrice
	e.decide(st, tick, "entry", signal.Qty, signal, order.ID, nil)
}

// tryExit evaluates the exit conditions and submits a limit sell for the full
// position. Callers hold st.mu.
func (e *Engine) tryExit(ctx context.Context, st *SymbolState, tick bars.Bar) {
	if st.position == 0 {
		return
	}
	sell := strategy.EvaluateExit(strategy.ExitContext{
		Close:       tick.Close,
		StopPrice:   st.stopPrice,
		TargetPrice: st.targetPrice,
		CostBasis:   st.costBasis,
		Closes:      st.history.Closes(),
	})
	if !sell {
		return
	}

	limit := tick.Close
	qty := st.position
	order, err := e.brokerage.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:     st.symbol,
		Qty:        qty,
		Side:       alpaca.Sell,
		Type:       alpaca.Limit,
		LimitPrice: &limit,
	})
	if err != nil {
		e.decide(st, tick, "exit_failed", qty, strategy.EntrySignal{}, "", err)
		return
	}
	st.trackOrder(order)
	st.costBasis = tick.Close
	e.decide(st, tick, "exit", qty, strategy.EntrySignal{}, order.ID, nil)
}

// closeOut liquidates any remaining position at market and reports whether
// the symbol should leave the watch-list. Callers hold st.mu. A failed
// submission keeps the symbol so the next tick retries.
func (e *Engine) closeOut(ctx context.Context, st *SymbolState, tick bars.Bar) bool {
	if st.position == 0 {
		e.decide(st, tick, "close_out_flat", 0, strategy.EntrySignal{}, "", nil)
		return true
	}
	qty := st.position
	order, err := e.brokerage.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: st.symbol,
		Qty:    qty,
		Side:   alpaca.Sell,
		Type:   alpaca.Market,
	})
	if err != nil {
		e.decide(st, tick, "close_out_failed", qty, strategy.EntrySignal{}, "", err)
		return false
	}
	st.trackOrder(order)
	e.decide(st, tick, "close_out", qty, strategy.EntrySignal{}, order.ID, nil)
	return true
}

func (e *Engine) decide(st *SymbolState, tick bars.Bar, action string, qty int, signal strategy.EntrySignal, orderID string, err error) {
	fields := []zap.Field{
		zap.String("symbol", st.symbol),
		zap.String("action", action),
		zap.Float64("close", tick.Close),
		zap.Int("qty", qty),
	}
	if orderID != "" {
		fields = append(fields, zap.String("order_id", orderID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		e.log.Error("trade decision failed", fields...)
	} else {
		e.log.Info("trade decision", fields...)
	}

	d := Decision{
		Timestamp:   time.Now(),
		BarTime:     tick.Timestamp,
		Symbol:      st.symbol,
		Window:      e.session.WindowAt(tick.Timestamp).String(),
		Close:       tick.Close,
		Action:      action,
		Qty:         qty,
		StopPrice:   signal.StopPrice,
		TargetPrice: signal.TargetPrice,
		OrderID:     orderID,
	}
	if err != nil {
		d.Error = err.Error()
	}
	e.decisions.Append(d)
}
