package indicators

import (
	"fmt"
	"math"
)

// RollingVol is a streaming sample standard deviation over the last
// 'period' updates, expressed in percent.
type RollingVol struct {
	period int
	vals   []float64
}

func NewRollingVol(period int) *RollingVol {
	return &RollingVol{
		period: period,
		vals:   make([]float64, 0, period),
	}
}

func (r *RollingVol) Name() string {
	return fmt.Sprintf("RollingVol(%d)", r.period)
}

func (r *RollingVol) Warmup() int {
	return r.period
}

func (r *RollingVol) Reset() {
	r.vals = r.vals[:0]
}

func (r *RollingVol) Update(v float64) {
	r.vals = append(r.vals, v)
	// Keep only the last 'period' values
	if len(r.vals) > r.period {
		r.vals = r.vals[1:]
	}
}

func (r *RollingVol) Ready() bool {
	return len(r.vals) >= r.period
}

func (r *RollingVol) Value() float64 {
	if !r.Ready() {
		return 0
	}

	mean := 0.0
	for _, v := range r.vals {
		mean += v
	}
	mean /= float64(len(r.vals))

	ss := 0.0
	for _, v := range r.vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss/float64(len(r.vals)-1)) * 100
}

// EWMAVol is a streaming exponentially weighted volatility estimate
// (RiskMetrics style), expressed in percent. Higher lambda means a
// longer memory.
type EWMAVol struct {
	lambda   float64
	variance float64
	count    int
}

func NewEWMAVol(lambda float64) *EWMAVol {
	return &EWMAVol{lambda: lambda}
}

func (e *EWMAVol) Name() string {
	return fmt.Sprintf("EWMAVol(%.2f)", e.lambda)
}

func (e *EWMAVol) Warmup() int {
	return 2
}

func (e *EWMAVol) Reset() {
	e.variance = 0
	e.count = 0
}

func (e *EWMAVol) Update(v float64) {
	if e.count == 0 {
		e.variance = v * v
	} else {
		e.variance = e.lambda*e.variance + (1-e.lambda)*v*v
	}
	e.count++
}

func (e *EWMAVol) Ready() bool {
	return e.count >= 2
}

func (e *EWMAVol) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return math.Sqrt(e.variance) * 100
}
