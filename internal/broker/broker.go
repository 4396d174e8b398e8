// Package broker wraps the Alpaca trading API behind the narrow surface the
// engine needs: order submission and cancellation, open-order and position
// lookup, cached account values and the trade-update stream.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"daytrader/internal/clock"
)

// OrderRequest describes an order to submit. LimitPrice is nil for market
// orders.
type OrderRequest struct {
	Symbol     string
	Qty        int
	Side       alpaca.Side
	Type       alpaca.OrderType
	LimitPrice *float64
}

// Order is the engine-facing view of a brokerage order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          alpaca.Side
	Qty           int
	Status        string
	SubmittedAt   time.Time
}

// Position is an existing brokerage position adopted at startup.
type Position struct {
	Symbol   string
	Qty      int
	AvgEntry float64
}

// AccountValues are the shared read-only account numbers entry sizing reads.
type AccountValues struct {
	PortfolioValue float64
	Cash           float64
}

// TradeUpdate is a fill/cancel/reject acknowledgement from the brokerage.
type TradeUpdate struct {
	Event          string
	Symbol         string
	Side           alpaca.Side
	OrderID        string
	FilledQty      int
	FilledAvgPrice float64
}

// Trade-update event names as delivered by the brokerage.
const (
	EventFill        = "fill"
	EventPartialFill = "partial_fill"
	EventCanceled    = "canceled"
	EventRejected    = "rejected"
)

type Client struct {
	client *alpaca.Client
	log    *zap.Logger

	cacheTTL time.Duration
	mu       sync.Mutex
	cached   AccountValues
	cachedAt time.Time
}

// New builds a client against the given Alpaca environment. cacheTTL bounds
// the staleness of AccountValues; zero disables caching.
func New(apiKey, apiSecret, baseURL string, cacheTTL time.Duration, log *zap.Logger) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{
		client:   alpaca.NewClient(opts),
		log:      log,
		cacheTTL: cacheTTL,
	}
}

// Raw exposes the underlying trading API client for endpoints outside the
// engine surface, such as the asset listing the universe screen reads.
func (c *Client) Raw() *alpaca.Client { return c.client }

// SubmitOrder places an order and returns the brokerage's view of it. No
// engine state is touched here; fills arrive asynchronously as trade updates.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   alpaca.Day,
		ClientOrderID: uuid.NewString(),
	}
	if req.LimitPrice != nil {
		limitPrice := decimal.NewFromFloat(*req.LimitPrice)
		orderReq.LimitPrice = &limitPrice
	}

	order, err := c.client.PlaceOrder(orderReq)
	if err != nil {
		c.log.Error("place order failed",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Int("qty", req.Qty),
			zap.Error(err))
		return Order{}, err
	}

	c.log.Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Int("qty", req.Qty),
		zap.String("type", string(req.Type)),
		zap.String("status", string(order.Status)))
	return convertOrder(*order), nil
}

// CancelOrder requests cancellation. The effect lands asynchronously via a
// canceled trade update, so callers treat this as fire-and-forget.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.client.CancelOrder(orderID); err != nil {
		c.log.Warn("cancel order failed", zap.String("order_id", orderID), zap.Error(err))
		return err
	}
	c.log.Info("cancel requested", zap.String("order_id", orderID))
	return nil
}

// OpenOrders lists currently open orders.
func (c *Client) OpenOrders(ctx context.Context) ([]Order, error) {
	orders, err := c.client.GetOrders(alpaca.GetOrdersRequest{Status: "open", Limit: 500})
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		out = append(out, convertOrder(order))
	}
	return out, nil
}

// Positions lists existing brokerage positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	positions, err := c.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]Position, 0, len(positions))
	for _, pos := range positions {
		avgEntry, _ := pos.AvgEntryPrice.Float64()
		out = append(out, Position{
			Symbol:   pos.Symbol,
			Qty:      int(pos.Qty.IntPart()),
			AvgEntry: avgEntry,
		})
	}
	return out, nil
}

// AccountValues returns portfolio value and available cash, refreshed at
// most once per cacheTTL.
func (c *Client) AccountValues(ctx context.Context) (AccountValues, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheTTL > 0 && time.Since(c.cachedAt) < c.cacheTTL {
		return c.cached, nil
	}

	acct, err := c.client.GetAccount()
	if err != nil {
		return AccountValues{}, fmt.Errorf("fetch account: %w", err)
	}
	portfolioValue, _ := acct.PortfolioValue.Float64()
	cash, _ := acct.Cash.Float64()

	c.cached = AccountValues{PortfolioValue: portfolioValue, Cash: cash}
	c.cachedAt = time.Now()
	return c.cached, nil
}

// Session resolves the market open and close for the given day from the
// trading calendar.
func (c *Client) Session(ctx context.Context, day time.Time) (clock.Session, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return clock.Session{}, err
	}
	day = day.In(loc)

	days, err := c.client.GetCalendar(alpaca.GetCalendarRequest{Start: day, End: day})
	if err != nil {
		return clock.Session{}, fmt.Errorf("fetch calendar: %w", err)
	}
	want := day.Format("2006-01-02")
	for _, d := range days {
		if d.Date != want {
			continue
		}
		open, err := time.ParseInLocation("2006-01-02 15:04", d.Date+" "+d.Open, loc)
		if err != nil {
			return clock.Session{}, fmt.Errorf("parse market open: %w", err)
		}
		closeAt, err := time.ParseInLocation("2006-01-02 15:04", d.Date+" "+d.Close, loc)
		if err != nil {
			return clock.Session{}, fmt.Errorf("parse market close: %w", err)
		}
		return clock.Session{Open: open, Close: closeAt}, nil
	}
	return clock.Session{}, fmt.Errorf("market closed on %s", want)
}

// StreamTradeUpdates blocks delivering order acknowledgements to handler
// until ctx is canceled or the stream fails.
func (c *Client) StreamTradeUpdates(ctx context.Context, handler func(TradeUpdate)) error {
	return c.client.StreamTradeUpdates(ctx, func(tu alpaca.TradeUpdate) {
		update := TradeUpdate{
			Event:     tu.Event,
			Symbol:    tu.Order.Symbol,
			Side:      tu.Order.Side,
			OrderID:   tu.Order.ID,
			FilledQty: int(tu.Order.FilledQty.IntPart()),
		}
		if tu.Order.FilledAvgPrice != nil {
			update.FilledAvgPrice, _ = tu.Order.FilledAvgPrice.Float64()
		}
		handler(update)
	}, alpaca.StreamTradeUpdatesRequest{})
}

func convertOrder(order alpaca.Order) Order {
	qty := 0
	if order.Qty != nil {
		qty = int(order.Qty.IntPart())
	}
	return Order{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Qty:           qty,
		Status:        string(order.Status),
		SubmittedAt:   order.SubmittedAt,
	}
}
