package universe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAssets struct{ symbols []string }

func (f fakeAssets) TradableSymbols(ctx context.Context) ([]string, error) {
	return f.symbols, nil
}

type fakeSnapshots struct{ snaps map[string]Snapshot }

func (f fakeSnapshots) Snapshots(ctx context.Context, symbols []string) (map[string]Snapshot, error) {
	return f.snaps, nil
}

func testCriteria() Criteria {
	return Criteria{
		MinSharePrice:   5,
		MaxSharePrice:   50,
		MinDollarVolume: 1000000,
		MinChangePct:    3.5,
		MaxSymbols:      10,
	}
}

func TestScreenFilters(t *testing.T) {
	snaps := map[string]Snapshot{
		"GOOD":  {LastPrice: 10.5, PrevClose: 10, PrevVolume: 500000, VolumeToday: 40000}, // +5%
		"CHEAP": {LastPrice: 2, PrevClose: 1.9, PrevVolume: 10000000},
		"RICH":  {LastPrice: 80, PrevClose: 70, PrevVolume: 10000000},
		"THIN":  {LastPrice: 10.5, PrevClose: 10, PrevVolume: 1000}, // dollar volume too low
		"FLAT":  {LastPrice: 10.1, PrevClose: 10, PrevVolume: 500000},
	}
	s := NewScreener(
		fakeAssets{symbols: []string{"GOOD", "CHEAP", "RICH", "THIN", "FLAT", "NODATA"}},
		fakeSnapshots{snaps: snaps},
		zap.NewNop(),
	)

	got, err := s.Screen(context.Background(), testCriteria())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "GOOD", got[0].Symbol)
	require.Equal(t, 10.0, got[0].PrevClose)
	require.Equal(t, uint64(40000), got[0].VolumeToday)
}

func TestScreenCapsSymbolCount(t *testing.T) {
	snaps := make(map[string]Snapshot)
	symbols := make([]string, 0, 20)
	for _, sym := range []string{"A", "B", "C", "D", "E"} {
		snaps[sym] = Snapshot{LastPrice: 10.5, PrevClose: 10, PrevVolume: 500000}
		symbols = append(symbols, sym)
	}
	crit := testCriteria()
	crit.MaxSymbols = 3

	s := NewScreener(fakeAssets{symbols: symbols}, fakeSnapshots{snaps: snaps}, zap.NewNop())
	got, err := s.Screen(context.Background(), crit)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestPassesRejectsZeroPrevClose(t *testing.T) {
	require.False(t, passes(Snapshot{LastPrice: 10}, testCriteria()))
}
