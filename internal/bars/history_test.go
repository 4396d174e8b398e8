package bars

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var minute = time.Date(2024, 3, 11, 9, 45, 0, 0, time.UTC)

func tick(sec int, open, high, low, close float64, vol uint64) Bar {
	return Bar{
		Timestamp: minute.Add(time.Duration(sec) * time.Second),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    vol,
	}
}

func TestApplyTickInsertsVerbatim(t *testing.T) {
	h := NewHistory(nil)
	h.ApplyTick(tick(7, 10, 11, 9, 10.5, 300))

	b, ok := h.At(minute)
	require.True(t, ok)
	require.Equal(t, Bar{Timestamp: minute, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 300}, b)
}

func TestApplyTickMergesWithinMinute(t *testing.T) {
	h := NewHistory(nil)
	ticks := []Bar{
		tick(1, 10, 10.2, 9.9, 10.1, 100),
		tick(15, 10.1, 10.6, 10.0, 10.4, 250),
		tick(42, 10.4, 10.5, 9.7, 9.8, 50),
	}
	for _, tk := range ticks {
		h.ApplyTick(tk)
	}

	b, ok := h.At(minute)
	require.True(t, ok)
	require.Equal(t, 10.0, b.Open, "open comes from the first tick")
	require.Equal(t, 10.6, b.High, "high is the max over ticks")
	require.Equal(t, 9.7, b.Low, "low is the min over ticks")
	require.Equal(t, 9.8, b.Close, "close is the last tick's close")
	require.Equal(t, uint64(400), b.Volume, "volume is the running sum")
}

func TestAuthoritativeBarOverwritesAggregate(t *testing.T) {
	authoritative := Bar{Timestamp: minute, Open: 20, High: 21, Low: 19, Close: 20.5, Volume: 9999}

	// Ticks first, then the minute bar.
	h := NewHistory(nil)
	h.ApplyTick(tick(3, 10, 11, 9, 10.5, 100))
	h.SetMinute(authoritative)
	b, _ := h.At(minute)
	require.Equal(t, authoritative, b)

	// Minute bar first, then a late tick for the same minute: the tick still
	// merges, but a repeated authoritative bar wins again.
	h = NewHistory(nil)
	h.SetMinute(authoritative)
	h.ApplyTick(tick(59, 30, 31, 29, 30.5, 1))
	h.SetMinute(authoritative)
	b, _ = h.At(minute)
	require.Equal(t, authoritative, b)
}

func TestLateMinuteKeepsKeysSorted(t *testing.T) {
	h := NewHistory(nil)
	h.SetMinute(Bar{Timestamp: minute.Add(2 * time.Minute), Close: 3})
	h.SetMinute(Bar{Timestamp: minute, Close: 1})
	h.SetMinute(Bar{Timestamp: minute.Add(time.Minute), Close: 2})

	require.Equal(t, []float64{1, 2, 3}, h.Closes())
}

func TestHighBetween(t *testing.T) {
	h := NewHistory(nil)
	for i := 0; i < 5; i++ {
		h.SetMinute(Bar{Timestamp: minute.Add(time.Duration(i) * time.Minute), High: float64(10 + i)})
	}

	high, ok := h.HighBetween(minute, minute.Add(3*time.Minute))
	require.True(t, ok)
	require.Equal(t, 12.0, high)

	_, ok = h.HighBetween(minute.Add(time.Hour), minute.Add(2*time.Hour))
	require.False(t, ok, "empty interval is a skip, not an error")
}

func TestLowsReturnsTail(t *testing.T) {
	h := NewHistory(nil)
	for i := 0; i < 10; i++ {
		h.SetMinute(Bar{Timestamp: minute.Add(time.Duration(i) * time.Minute), Low: float64(i)})
	}

	require.Equal(t, []float64{7, 8, 9}, h.Lows(3))
	require.Len(t, h.Lows(100), 10)
}

func TestSeedDeduplicatesMinutes(t *testing.T) {
	seed := []Bar{
		{Timestamp: minute, Close: 1},
		{Timestamp: minute.Add(30 * time.Second), Close: 2}, // same minute, later wins
	}
	h := NewHistory(seed)
	require.Equal(t, 1, h.Len())
	b, _ := h.At(minute)
	require.Equal(t, 2.0, b.Close)
}
