package universe

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"daytrader/internal/bars"
)

// AlpacaAssets lists tradable US equities from the trading API.
type AlpacaAssets struct {
	client *alpaca.Client
}

func NewAlpacaAssets(client *alpaca.Client) *AlpacaAssets {
	return &AlpacaAssets{client: client}
}

func (a *AlpacaAssets) TradableSymbols(ctx context.Context) ([]string, error) {
	status := "active"
	assets, err := a.client.GetAssets(alpaca.GetAssetsRequest{Status: status})
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(assets))
	for _, asset := range assets {
		if asset.Tradable {
			symbols = append(symbols, asset.Symbol)
		}
	}
	return symbols, nil
}

// AlpacaData serves snapshots and minute-bar backfill from the market-data
// API.
type AlpacaData struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

func NewAlpacaData(client *marketdata.Client, feed marketdata.Feed) *AlpacaData {
	return &AlpacaData{client: client, feed: feed}
}

// snapshotBatchSize keeps snapshot request URLs under the API's length cap.
const snapshotBatchSize = 500

func (d *AlpacaData) Snapshots(ctx context.Context, symbols []string) (map[string]Snapshot, error) {
	out := make(map[string]Snapshot, len(symbols))
	for start := 0; start < len(symbols); start += snapshotBatchSize {
		end := start + snapshotBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch, err := d.client.GetSnapshots(symbols[start:end], marketdata.GetSnapshotRequest{Feed: d.feed})
		if err != nil {
			return nil, err
		}
		for symbol, snap := range batch {
			if snap == nil || snap.LatestTrade == nil || snap.PrevDailyBar == nil {
				continue
			}
			s := Snapshot{
				LastPrice:  snap.LatestTrade.Price,
				PrevClose:  snap.PrevDailyBar.Close,
				PrevVolume: snap.PrevDailyBar.Volume,
			}
			if snap.DailyBar != nil {
				s.VolumeToday = snap.DailyBar.Volume
			}
			out[symbol] = s
		}
	}
	return out, nil
}

// Backfill returns up to limit of the most recent minute bars for symbol.
func (d *AlpacaData) Backfill(ctx context.Context, symbol string, limit int) ([]bars.Bar, error) {
	// A few calendar days comfortably cover 1000 trading minutes.
	start := time.Now().Add(-5 * 24 * time.Hour)
	raw, err := d.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		Feed:      d.feed,
	})
	if err != nil {
		return nil, err
	}
	if len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}
	out := make([]bars.Bar, 0, len(raw))
	for _, b := range raw {
		out = append(out, bars.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return out, nil
}
