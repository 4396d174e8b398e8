// Package clock classifies session time into the trading windows the engine
// acts on. Windows are mutually exclusive: exactly one applies at any instant.
package clock

import "time"

// Window is the portion of the trading session a timestamp falls into.
type Window int

const (
	// WarmUp covers the first 15 minutes after the open; no trading action.
	WarmUp Window = iota
	// Entry covers minutes 15 through 59 after the open; entry signals only.
	Entry
	// HoldExit covers the rest of the session until 15 minutes before the
	// close; exit signals only.
	HoldExit
	// CloseOut covers the final 15 minutes; positions are liquidated at
	// market and symbols dropped from the watch-list.
	CloseOut
)

func (w Window) String() string {
	switch w {
	case WarmUp:
		return "warm_up"
	case Entry:
		return "entry"
	case HoldExit:
		return "hold_exit"
	case CloseOut:
		return "close_out"
	default:
		return "unknown"
	}
}

// Session holds the open and close of one trading day.
type Session struct {
	Open  time.Time
	Close time.Time
}

// WindowAt classifies now against the session bounds. Minutes are compared
// with integer floor division, matching the cutoffs in the window docs.
func (s Session) WindowAt(now time.Time) Window {
	sinceOpen := int(now.Sub(s.Open).Minutes())
	untilClose := int(s.Close.Sub(now).Minutes())

	switch {
	case untilClose <= 15:
		return CloseOut
	case sinceOpen < 15:
		return WarmUp
	case sinceOpen < 60:
		return Entry
	default:
		return HoldExit
	}
}

// EntryCutoff returns the end of the interval whose high the entry signal
// compares against: the first 15 minutes of the session.
func (s Session) EntryCutoff() time.Time {
	return s.Open.Add(15 * time.Minute)
}
