// Package indicator provides momentum calculations over closing prices.
// Functions are pure: they take a price series and return a derived series.
package indicator

// EMA returns the exponential moving average of values with the given
// period, using the standard smoothing factor 2/(period+1). The result has
// the same length as the input; the first element seeds the average.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return nil
	}
	k := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1.0-k)
	}
	return out
}

// Oscillator returns the MACD-style momentum series: the fast EMA of closes
// minus the slow EMA of closes, element-wise.
func Oscillator(closes []float64, fastPeriod, slowPeriod int) []float64 {
	fast := EMA(closes, fastPeriod)
	slow := EMA(closes, slowPeriod)
	if fast == nil || slow == nil {
		return nil
	}
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = fast[i] - slow[i]
	}
	return out
}
