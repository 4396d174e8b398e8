package bars

import (
	"sort"
	"time"
)

// History holds the minute bars for one symbol, keyed by minute start.
// Keys are strictly increasing and there is at most one bar per minute.
// Sub-minute ticks are folded into the bar for their minute; authoritative
// minute bars overwrite whatever was aggregated for that minute.
type History struct {
	minutes []time.Time   // sorted minute starts
	byStart map[int64]Bar // unix minute -> bar
}

// NewHistory seeds a history from backfilled minute bars. Input order does
// not matter; duplicate minutes keep the last bar seen.
func NewHistory(seed []Bar) *History {
	h := &History{byStart: make(map[int64]Bar, len(seed))}
	for _, b := range seed {
		h.SetMinute(b)
	}
	return h
}

// Len returns the number of minutes recorded.
func (h *History) Len() int { return len(h.minutes) }

// ApplyTick folds a sub-minute tick bar into the bar for its minute.
// If no bar exists for that minute the tick is inserted verbatim; otherwise
// open is kept, high/low extended, close replaced and volume accumulated.
func (h *History) ApplyTick(tick Bar) {
	minute := tick.Minute()
	key := minute.Unix()
	current, ok := h.byStart[key]
	if !ok {
		tick.Timestamp = minute
		h.insert(minute, tick)
		return
	}
	merged := Bar{
		Timestamp: minute,
		Open:      current.Open,
		High:      max(tick.High, current.High),
		Low:       min(tick.Low, current.Low),
		Close:     tick.Close,
		Volume:    current.Volume + tick.Volume,
	}
	h.byStart[key] = merged
}

// SetMinute records an authoritative minute bar, replacing any aggregate
// built from ticks for that minute.
func (h *History) SetMinute(b Bar) {
	minute := b.Minute()
	b.Timestamp = minute
	key := minute.Unix()
	if _, ok := h.byStart[key]; ok {
		h.byStart[key] = b
		return
	}
	h.insert(minute, b)
}

func (h *History) insert(minute time.Time, b Bar) {
	h.byStart[minute.Unix()] = b
	n := len(h.minutes)
	if n == 0 || h.minutes[n-1].Before(minute) {
		h.minutes = append(h.minutes, minute)
		return
	}
	// Late-arriving minute; keep the index sorted.
	i := sort.Search(n, func(i int) bool { return !h.minutes[i].Before(minute) })
	h.minutes = append(h.minutes, time.Time{})
	copy(h.minutes[i+1:], h.minutes[i:])
	h.minutes[i] = minute
}

// At returns the bar for the given minute, if one exists.
func (h *History) At(minute time.Time) (Bar, bool) {
	b, ok := h.byStart[minute.Truncate(time.Minute).Unix()]
	return b, ok
}

// Closes returns closing prices in minute order.
func (h *History) Closes() []float64 {
	out := make([]float64, len(h.minutes))
	for i, m := range h.minutes {
		out[i] = h.byStart[m.Unix()].Close
	}
	return out
}

// Lows returns at most the last n low prices in minute order.
func (h *History) Lows(n int) []float64 {
	start := 0
	if len(h.minutes) > n {
		start = len(h.minutes) - n
	}
	out := make([]float64, 0, len(h.minutes)-start)
	for _, m := range h.minutes[start:] {
		out = append(out, h.byStart[m.Unix()].Low)
	}
	return out
}

// HighBetween returns the highest high over minutes in [from, to). The
// second return is false when the interval holds no bars, which callers
// treat as "skip this evaluation", not as an error.
func (h *History) HighBetween(from, to time.Time) (float64, bool) {
	high := 0.0
	found := false
	for _, m := range h.minutes {
		if m.Before(from) {
			continue
		}
		if !m.Before(to) {
			break
		}
		b := h.byStart[m.Unix()]
		if !found || b.High > high {
			high = b.High
		}
		found = true
	}
	return high, found
}
