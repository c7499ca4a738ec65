package risk

import "math"

// minCorrelationSamples is the overlap below which a pair reports zero
// correlation rather than a noisy estimate.
const minCorrelationSamples = 10

// CorrelationTracker estimates pairwise return correlation from rolling
// per-symbol return windows. The sizer consults it to discount positions
// that stack exposure onto already-correlated holdings; it refreshes on
// every recorded return, so estimates track the market rather than a
// static matrix.
type CorrelationTracker struct {
	window  int
	returns map[string][]float64
}

// NewCorrelationTracker keeps the last window returns per symbol.
func NewCorrelationTracker(window int) *CorrelationTracker {
	if window <= 0 {
		window = 100
	}
	return &CorrelationTracker{
		window:  window,
		returns: make(map[string][]float64),
	}
}

// Record appends one return for symbol, evicting beyond the window.
func (t *CorrelationTracker) Record(symbol string, ret float64) {
	if math.IsNaN(ret) || math.IsInf(ret, 0) {
		return
	}
	rs := append(t.returns[symbol], ret)
	if len(rs) > t.window {
		rs = rs[len(rs)-t.window:]
	}
	t.returns[symbol] = rs
}

// Correlation returns the Pearson correlation of the two symbols' most
// recent overlapping returns, or 0 when the overlap is too short to
// trust.
func (t *CorrelationTracker) Correlation(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := t.returns[a], t.returns[b]
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	if n < minCorrelationSamples {
		return 0
	}
	ra = ra[len(ra)-n:]
	rb = rb[len(rb)-n:]

	ma, mb := mean(ra), mean(rb)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := ra[i]-ma, rb[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	c := cov / math.Sqrt(va*vb)
	return math.Max(-1, math.Min(1, c))
}
