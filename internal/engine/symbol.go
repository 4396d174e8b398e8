package engine

import (
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"daytrader/internal/bars"
	"daytrader/internal/broker"
)

// SymbolState is all mutable state for one watched symbol. Every handler
// touching it holds mu, so there is exactly one writer at a time per symbol
// while distinct symbols proceed in parallel.
type SymbolState struct {
	symbol string

	mu      sync.Mutex
	history *bars.History

	// Position tracking. position changes exactly once per fill event, by
	// the delta since the last partial-fill accumulation.
	position      int
	openOrder     *broker.Order
	partialFilled int // signed qty filled so far on the open order

	// Prices computed at entry decision time; meaningful while position != 0.
	costBasis   float64
	stopPrice   float64
	targetPrice float64

	// Daily reference values.
	prevClose   float64
	volumeToday uint64
}

func newSymbolState(symbol string, seed []bars.Bar, prevClose float64, volumeToday uint64) *SymbolState {
	return &SymbolState{
		symbol:      symbol,
		history:     bars.NewHistory(seed),
		prevClose:   prevClose,
		volumeToday: volumeToday,
	}
}

// trackOrder records a freshly submitted order as the symbol's single open
// order. Callers hold mu.
func (st *SymbolState) trackOrder(order broker.Order) {
	st.openOrder = &order
	st.partialFilled = 0
}

// applyTradeUpdate reconciles a fill/cancel/reject acknowledgement against
// the open order. Callers hold mu. Returns false when the update does not
// belong to the symbol's open order.
func (st *SymbolState) applyTradeUpdate(u broker.TradeUpdate) bool {
	if st.openOrder == nil {
		return false
	}
	if u.OrderID != "" && u.OrderID != st.openOrder.ID {
		return false
	}

	switch u.Event {
	case broker.EventPartialFill:
		filled := signedQty(u)
		st.position += filled - st.partialFilled
		st.partialFilled = filled
	case broker.EventFill:
		filled := signedQty(u)
		st.position += filled - st.partialFilled
		st.partialFilled = 0
		st.openOrder = nil
	case broker.EventCanceled, broker.EventRejected:
		st.partialFilled = 0
		st.openOrder = nil
	default:
		return false
	}
	return true
}

func signedQty(u broker.TradeUpdate) int {
	if u.Side == alpaca.Sell {
		return -u.FilledQty
	}
	return u.FilledQty
}
