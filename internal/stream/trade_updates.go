package stream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"daytrader/internal/broker"
)

// TradeUpdateSource is the brokerage side of the order acknowledgement stream.
type TradeUpdateSource interface {
	StreamTradeUpdates(ctx context.Context, handler func(broker.TradeUpdate)) error
}

// RunTradeUpdates relays order acknowledgements to handler until ctx is
// canceled, reconnecting with exponential backoff on stream failure. Missing
// an acknowledgement desynchronizes position state, so the loop never gives
// up on its own.
func RunTradeUpdates(ctx context.Context, src TradeUpdateSource, handler func(broker.TradeUpdate), log *zap.Logger) error {
	backoff := initialBackoff
	for {
		err := src.StreamTradeUpdates(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("trade update stream lost, reconnecting",
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
