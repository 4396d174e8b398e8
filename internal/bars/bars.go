package bars

import "time"

// Bar is an aggregated open/high/low/close/volume for a fixed time bucket.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
}

// Minute returns the bar's timestamp truncated to the minute boundary.
func (b Bar) Minute() time.Time {
	return b.Timestamp.Truncate(time.Minute)
}
