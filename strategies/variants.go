package strategies

import (
	"math"

	"github.com/rustyeddy/quant/regime"
)

// The variants below are deliberately small reference implementations of
// the Strategy contract. Production strategies are maintained outside this
// module and plugged in through the same interface.

// Noop never trades. Useful as a catalog arm that lets the router learn to
// sit out regimes where nothing works.
type Noop struct{}

func (Noop) ID() string { return "noop" }

func (Noop) Decide(regime.LatentState, []regime.Belief, map[string]float64) Action {
	return Action{Direction: Flat}
}

// Breakout follows momentum: it goes with the trend when momentum is
// meaningful relative to recent activity.
type Breakout struct {
	// Threshold is the minimum |momentum| that counts as a breakout.
	Threshold float64
}

func (Breakout) ID() string { return "breakout" }

func (b Breakout) Decide(state regime.LatentState, beliefs []regime.Belief, features map[string]float64) Action {
	threshold := b.Threshold
	if threshold <= 0 {
		threshold = 0.05
	}
	if math.Abs(state.Momentum) < threshold {
		return Action{Direction: Flat}
	}

	dir := Long
	if state.Momentum < 0 {
		dir = Short
	}
	trendProb := 0.0
	for _, bl := range beliefs {
		if bl.ID == regime.Trending {
			trendProb = bl.Probability
		}
	}
	return Action{
		Direction:      dir,
		Confidence:     clamp01(0.5 + 0.4*trendProb),
		ExpectedReturn: 0.02,
		WinProbability: 0.55,
		AvgWin:         0.03,
		AvgLoss:        0.02,
		Volatility:     features["vol_short"],
		StopLossPct:    0.02,
	}
}

// Reversion fades extremes: it trades against stretched imbalance when the
// mean-reversion regime carries the posterior.
type Reversion struct {
	// Stretch is the imbalance magnitude considered extreme.
	Stretch float64
}

func (Reversion) ID() string { return "mean_reversion" }

func (r Reversion) Decide(state regime.LatentState, beliefs []regime.Belief, features map[string]float64) Action {
	stretch := r.Stretch
	if stretch <= 0 {
		stretch = 0.3
	}
	mrProb := 0.0
	for _, bl := range beliefs {
		if bl.ID == regime.MeanReversion {
			mrProb = bl.Probability
		}
	}
	if mrProb < 0.4 || math.Abs(state.Imbalance) < stretch {
		return Action{Direction: Flat}
	}

	dir := Short // fade positive imbalance
	if state.Imbalance < 0 {
		dir = Long
	}
	return Action{
		Direction:      dir,
		Confidence:     clamp01(0.45 + 0.5*mrProb),
		ExpectedReturn: 0.01,
		WinProbability: 0.6,
		AvgWin:         0.015,
		AvgLoss:        0.012,
		Volatility:     features["vol_short"],
		StopLossPct:    0.015,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
