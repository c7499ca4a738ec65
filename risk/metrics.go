package risk

import (
	"math"
	"sort"
)

// tradingDaysPerYear annualizes daily statistics.
const tradingDaysPerYear = 252

// Metrics are the reported (non-gating) portfolio statistics attached to
// every sizing decision.
type Metrics struct {
	AnnualizedVol     float64
	SharpeRatio       float64
	MaxDrawdown       float64
	VaR95             float64 // empirical, reported as a positive loss
	ExpectedShortfall float64 // mean loss beyond VaR95, positive
	Concentration     float64 // Herfindahl index over position weights
}

// ComputeMetrics derives the full metric set from the daily return series
// and open positions.
func ComputeMetrics(p *Portfolio) Metrics {
	return Metrics{
		AnnualizedVol:     annualizedVol(p.DailyReturns),
		SharpeRatio:       sharpe(p.DailyReturns),
		MaxDrawdown:       MaxDrawdown(p.DailyReturns),
		VaR95:             valueAtRisk(p.DailyReturns, 0.95),
		ExpectedShortfall: expectedShortfall(p.DailyReturns, 0.95),
		Concentration:     herfindahl(p),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func annualizedVol(returns []float64) float64 {
	return stddev(returns) * math.Sqrt(tradingDaysPerYear)
}

func sharpe(returns []float64) float64 {
	sd := stddev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(tradingDaysPerYear)
}

// MaxDrawdown is the largest peak-to-trough drop of the cumulative return
// path, as a positive fraction.
func MaxDrawdown(returns []float64) float64 {
	peak := 1.0
	equity := 1.0
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// valueAtRisk is the empirical (non-parametric) loss quantile: the return
// at the (1-level) tail, sign-flipped so losses report positive.
func valueAtRisk(returns []float64, level float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(float64(len(sorted))*(1-level))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	if v > 0 {
		return 0
	}
	return -v
}

// expectedShortfall is the mean loss conditional on being in the worst
// (1-level) tail.
func expectedShortfall(returns []float64, level float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	cut := int(float64(len(sorted)) * (1 - level))
	if cut == 0 {
		cut = 1
	}
	sum := 0.0
	for _, v := range sorted[:cut] {
		sum += v
	}
	es := -sum / float64(cut)
	if es < 0 {
		return 0
	}
	return es
}

// herfindahl measures position concentration: Σ w_i² over position
// weights, 0 for an empty book and 1 for a single position.
func herfindahl(p *Portfolio) float64 {
	total := p.TotalExposure()
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, pos := range p.Positions {
		w := pos.Size / total
		h += w * w
	}
	return h
}
