package indicators

import "math"

// FeatureTracker turns a raw price stream into the per-tick context the
// policy router consumes: short and long horizon volatilities over log
// returns. The short estimator reacts within minutes of activity, the
// long one anchors it to the session.
type FeatureTracker struct {
	short *EWMAVol
	long  *EWMAVol

	lastPrice float64
}

func NewFeatureTracker() *FeatureTracker {
	return &FeatureTracker{
		short: NewEWMAVol(0.80),
		long:  NewEWMAVol(0.97),
	}
}

func (f *FeatureTracker) Reset() {
	f.short.Reset()
	f.long.Reset()
	f.lastPrice = 0
}

// Update consumes the next trade price. Non-positive or non-finite
// prices are ignored.
func (f *FeatureTracker) Update(price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	if f.lastPrice > 0 {
		ret := math.Log(price / f.lastPrice)
		f.short.Update(ret)
		f.long.Update(ret)
	}
	f.lastPrice = price
}

func (f *FeatureTracker) Ready() bool {
	return f.short.Ready() && f.long.Ready()
}

// VolShort returns the fast volatility estimate in percent.
func (f *FeatureTracker) VolShort() float64 {
	return f.short.Value()
}

// VolLong returns the slow volatility estimate in percent.
func (f *FeatureTracker) VolLong() float64 {
	return f.long.Value()
}
