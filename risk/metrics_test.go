package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxDrawdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		returns []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"all_up", []float64{0.01, 0.02, 0.01}, 0},
		{"single_drop", []float64{0.10, -0.20}, 0.20},
		{"recovers", []float64{-0.10, 0.50}, 0.10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, MaxDrawdown(tt.returns), 1e-9)
		})
	}
}

func TestValueAtRiskAndShortfall(t *testing.T) {
	t.Parallel()

	// 100 returns: 95 small gains, 5 losses of growing size.
	returns := make([]float64, 0, 100)
	for i := 0; i < 95; i++ {
		returns = append(returns, 0.001)
	}
	losses := []float64{-0.05, -0.04, -0.03, -0.02, -0.01}
	returns = append(returns, losses...)

	v := valueAtRisk(returns, 0.95)
	assert.InDelta(t, 0.01, v, 1e-9, "VaR95 is the 5th-percentile loss")

	es := expectedShortfall(returns, 0.95)
	assert.InDelta(t, 0.03, es, 1e-9, "ES is the mean of the worst 5%")
	assert.GreaterOrEqual(t, es, v, "expected shortfall dominates VaR")
}

func TestValueAtRisk_AllGains(t *testing.T) {
	t.Parallel()

	returns := []float64{0.01, 0.02, 0.03}
	assert.Zero(t, valueAtRisk(returns, 0.95))
	assert.Zero(t, expectedShortfall(returns, 0.95))
}

func TestSharpeAndVol(t *testing.T) {
	t.Parallel()

	flat := []float64{0.01, 0.01, 0.01}
	assert.Zero(t, sharpe(flat), "zero variance has no Sharpe")

	mixed := []float64{0.01, -0.01, 0.02, -0.02, 0.01}
	assert.Greater(t, annualizedVol(mixed), 0.0)
	// Daily vol ~0.0158 annualizes by √252.
	assert.InDelta(t, stddev(mixed)*math.Sqrt(252), annualizedVol(mixed), 1e-12)
}

func TestHerfindahl(t *testing.T) {
	t.Parallel()

	pf := NewPortfolio(100000)
	assert.Zero(t, herfindahl(pf), "empty book has no concentration")

	pf.Positions["A"] = Position{Symbol: "A", Size: 0.05}
	assert.InDelta(t, 1.0, herfindahl(pf), 1e-9, "single position is fully concentrated")

	pf.Positions["B"] = Position{Symbol: "B", Size: 0.05}
	assert.InDelta(t, 0.5, herfindahl(pf), 1e-9)
}

func TestCorrelationTracker(t *testing.T) {
	t.Parallel()

	tr := NewCorrelationTracker(50)

	// Too little overlap: report zero rather than noise.
	tr.Record("A", 0.01)
	tr.Record("B", 0.01)
	assert.Zero(t, tr.Correlation("A", "B"))

	for i := 0; i < 40; i++ {
		r := math.Sin(float64(i) / 3)
		tr.Record("A", r)
		tr.Record("B", r)
		tr.Record("C", -r)
	}
	assert.InDelta(t, 1.0, tr.Correlation("A", "B"), 1e-6)
	assert.InDelta(t, -1.0, tr.Correlation("A", "C"), 1e-6)
	assert.Equal(t, 1.0, tr.Correlation("A", "A"))

	// NaN returns are dropped, not stored.
	tr.Record("A", math.NaN())
	assert.InDelta(t, 1.0, tr.Correlation("A", "B"), 1e-6)
}

func TestPortfolio_ApplyFill(t *testing.T) {
	t.Parallel()

	pf := NewPortfolio(100000)
	pf.ApplyFill(Position{Symbol: "BTC-USD", Size: 0.05}, -200, -0.002)
	assert.Equal(t, 1, pf.ConsecutiveLosses)
	assert.InDelta(t, -200.0, pf.DailyPnL, 1e-9)
	assert.InDelta(t, 99800.0, pf.Value, 1e-9)

	pf.ApplyFill(Position{Symbol: "BTC-USD", Size: 0}, 300, 0.003)
	assert.Zero(t, pf.ConsecutiveLosses)
	_, open := pf.Positions["BTC-USD"]
	assert.False(t, open, "zero-size fill closes the position")

	pf.ResetDay()
	assert.Zero(t, pf.DailyPnL)
}
