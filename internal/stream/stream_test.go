package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"daytrader/internal/broker"
)

func TestParseFeed(t *testing.T) {
	require.Equal(t, marketdata.SIP, ParseFeed("sip"))
	require.Equal(t, marketdata.IEX, ParseFeed("iex"))
	require.Equal(t, marketdata.IEX, ParseFeed(""))
	require.Equal(t, marketdata.IEX, ParseFeed("bogus"))
}

type flakySource struct {
	failures int32
	attempts int32
}

func (f *flakySource) StreamTradeUpdates(ctx context.Context, handler func(broker.TradeUpdate)) error {
	n := atomic.AddInt32(&f.attempts, 1)
	if n <= f.failures {
		return errors.New("stream dropped")
	}
	handler(broker.TradeUpdate{Event: broker.EventFill, Symbol: "SYM"})
	<-ctx.Done()
	return ctx.Err()
}

func TestRunTradeUpdatesReconnects(t *testing.T) {
	src := &flakySource{failures: 2}
	received := make(chan broker.TradeUpdate, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunTradeUpdates(ctx, src, func(u broker.TradeUpdate) {
			select {
			case received <- u:
			default:
			}
		}, zap.NewNop())
	}()

	select {
	case u := <-received:
		require.Equal(t, "SYM", u.Symbol)
	case <-time.After(10 * time.Second):
		t.Fatal("no trade update relayed after reconnects")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.GreaterOrEqual(t, atomic.LoadInt32(&src.attempts), int32(3))
}

func TestRunTradeUpdatesStopsOnCancel(t *testing.T) {
	src := &flakySource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunTradeUpdates(ctx, src, func(broker.TradeUpdate) {}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)
}
