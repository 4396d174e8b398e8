// Package universe selects the watch-list for a session: tradable symbols
// screened on price, dollar volume and daily momentum, plus the minute-bar
// backfill that seeds each symbol's history.
package universe

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Criteria bounds the screen.
type Criteria struct {
	MinSharePrice   float64
	MaxSharePrice   float64
	MinDollarVolume float64 // previous-day dollar volume floor
	MinChangePct    float64 // daily gain floor, in percent
	MaxSymbols      int
}

// Snapshot is the per-symbol market snapshot the screen reads.
type Snapshot struct {
	LastPrice   float64
	PrevClose   float64
	PrevVolume  uint64
	VolumeToday uint64
}

// Candidate is a symbol that passed the screen, with the daily reference
// values the engine registers it with.
type Candidate struct {
	Symbol      string
	LastPrice   float64
	PrevClose   float64
	VolumeToday uint64
}

type assetSource interface {
	TradableSymbols(ctx context.Context) ([]string, error)
}

type snapshotSource interface {
	Snapshots(ctx context.Context, symbols []string) (map[string]Snapshot, error)
}

type Screener struct {
	assets    assetSource
	snapshots snapshotSource
	log       *zap.Logger
}

func NewScreener(assets assetSource, snapshots snapshotSource, log *zap.Logger) *Screener {
	return &Screener{assets: assets, snapshots: snapshots, log: log}
}

// Screen returns the candidates passing the criteria, capped at MaxSymbols.
func (s *Screener) Screen(ctx context.Context, crit Criteria) ([]Candidate, error) {
	symbols, err := s.assets.TradableSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tradable symbols: %w", err)
	}
	snapshots, err := s.snapshots.Snapshots(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshots: %w", err)
	}

	candidates := make([]Candidate, 0)
	for _, symbol := range symbols {
		snap, ok := snapshots[symbol]
		if !ok {
			continue
		}
		if !passes(snap, crit) {
			continue
		}
		candidates = append(candidates, Candidate{
			Symbol:      symbol,
			LastPrice:   snap.LastPrice,
			PrevClose:   snap.PrevClose,
			VolumeToday: snap.VolumeToday,
		})
		if len(candidates) >= crit.MaxSymbols {
			break
		}
	}
	s.log.Info("universe screened",
		zap.Int("considered", len(symbols)),
		zap.Int("selected", len(candidates)))
	return candidates, nil
}

func passes(snap Snapshot, crit Criteria) bool {
	if snap.PrevClose == 0 {
		return false
	}
	if snap.LastPrice < crit.MinSharePrice || snap.LastPrice > crit.MaxSharePrice {
		return false
	}
	if float64(snap.PrevVolume)*snap.LastPrice <= crit.MinDollarVolume {
		return false
	}
	changePct := (snap.LastPrice - snap.PrevClose) / snap.PrevClose * 100
	return changePct >= crit.MinChangePct
}
