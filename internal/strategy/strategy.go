// Package strategy evaluates entry and exit signals for one symbol. All
// evaluation is pure: callers assemble the inputs and act on the returned
// signal. Rejections are silent no-ops, not errors.
package strategy

import "daytrader/internal/indicator"

const (
	// MinDailyPctChange is the minimum gain over the previous close before a
	// symbol qualifies for entry.
	MinDailyPctChange = 0.04
	// MinVolumeToday is the minimum session volume before entry.
	MinVolumeToday = 30000
	// Allocation is the fraction of portfolio value committed per position.
	Allocation = 0.01
	// StopFallbackRatio caps the loss at 5% when no valley is found.
	StopFallbackRatio = 0.95
	// ValleyOffset is subtracted from the detected valley low.
	ValleyOffset = 0.01
	// RewardMultiple sets the target at this multiple of the stop distance.
	RewardMultiple = 3.0
	// ValleyLookback bounds the low series scanned for a stop valley.
	ValleyLookback = 100

	entryFastPeriod   = 12
	entrySlowPeriod   = 26
	confirmFastPeriod = 40
	confirmSlowPeriod = 60
	exitFastPeriod    = 12
	exitSlowPeriod    = 21
)

// EntryContext carries everything the entry evaluation reads.
type EntryContext struct {
	Close          float64
	PrevClose      float64
	High15m        float64
	VolumeToday    uint64
	Closes         []float64 // minute closes, oldest first
	Lows           []float64 // minute lows, oldest first
	PositionQty    int
	PortfolioValue float64
	AvailableCash  float64
}

// EntrySignal is an approved buy: quantity plus the prices recorded on the
// symbol at decision time.
type EntrySignal struct {
	Qty         int
	LimitPrice  float64
	StopPrice   float64
	TargetPrice float64
}

// EvaluateEntry runs the entry gate chain and returns a buy signal when
// every condition holds. The false return covers both "no signal" and every
// policy rejection (insufficient cash, non-positive stop margin, fractional
// sizing below one share).
func EvaluateEntry(c EntryContext) (EntrySignal, bool) {
	if c.PrevClose == 0 {
		return EntrySignal{}, false
	}
	dailyPctChange := (c.Close - c.PrevClose) / c.PrevClose
	if dailyPctChange <= MinDailyPctChange || c.Close <= c.High15m || c.VolumeToday <= MinVolumeToday {
		return EntrySignal{}, false
	}

	fast := indicator.Oscillator(c.Closes, entryFastPeriod, entrySlowPeriod)
	if len(fast) < 3 {
		return EntrySignal{}, false
	}
	n := len(fast)
	if fast[n-1] < 0 || !(fast[n-3] < fast[n-2] && fast[n-2] < fast[n-1]) {
		return EntrySignal{}, false
	}

	slow := indicator.Oscillator(c.Closes, confirmFastPeriod, confirmSlowPeriod)
	if len(slow) < 2 {
		return EntrySignal{}, false
	}
	m := len(slow)
	if slow[m-1] < 0 || slow[m-1]-slow[m-2] < 0 {
		return EntrySignal{}, false
	}

	stop := FindStop(c.Close, c.Lows)
	target := c.Close + RewardMultiple*(c.Close-stop)

	qty := int(c.PortfolioValue * Allocation / c.Close)
	if qty == 0 {
		qty = 1
	}
	qty -= c.PositionQty
	if qty < 1 || c.Close-stop <= 0 || float64(qty)*c.Close > c.AvailableCash {
		return EntrySignal{}, false
	}

	return EntrySignal{
		Qty:         qty,
		LimitPrice:  c.Close,
		StopPrice:   stop,
		TargetPrice: target,
	}, true
}

// FindStop scans the tail of the low series for the most recent valley: a
// point whose preceding difference is <= 0 and whose following difference is
// > 0. The stop sits just under that valley; with no valley it falls back to
// a fixed fraction of the current price.
func FindStop(currentPrice float64, lows []float64) float64 {
	series := lows
	if len(series) > ValleyLookback {
		series = series[len(series)-ValleyLookback:]
	}
	for i := len(series) - 2; i >= 1; i-- {
		if series[i]-series[i-1] <= 0 && series[i+1]-series[i] > 0 {
			return series[i] - ValleyOffset
		}
	}
	return currentPrice * StopFallbackRatio
}

// ExitContext carries everything the exit evaluation reads.
type ExitContext struct {
	Close       float64
	StopPrice   float64
	TargetPrice float64
	CostBasis   float64
	Closes      []float64
}

// EvaluateExit reports whether the full position should be sold: stop
// breached, target reached with fading momentum, or under water with
// negative momentum.
func EvaluateExit(c ExitContext) bool {
	osc := indicator.Oscillator(c.Closes, exitFastPeriod, exitSlowPeriod)
	last := 0.0
	if len(osc) > 0 {
		last = osc[len(osc)-1]
	}
	switch {
	case c.Close <= c.StopPrice:
		return true
	case c.Close >= c.TargetPrice && last <= 0:
		return true
	case c.Close <= c.CostBasis && last <= 0:
		return true
	default:
		return false
	}
}
