package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/quant/regime"
)

func TestNewCatalog_RejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	_, err := NewCatalog(Noop{}, Noop{})
	assert.Error(t, err)
}

func TestCatalog_StableOrder(t *testing.T) {
	t.Parallel()

	c, err := NewCatalog(Reversion{}, Noop{}, Breakout{})
	require.NoError(t, err)
	assert.Equal(t, []string{"breakout", "mean_reversion", "noop"}, c.IDs())
	assert.Equal(t, 3, c.Len())

	s, ok := c.Get("breakout")
	require.True(t, ok)
	assert.Equal(t, "breakout", s.ID())

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestBreakout_FollowsMomentum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		momentum float64
		want     Direction
	}{
		{"up", 0.5, Long},
		{"down", -0.5, Short},
		{"quiet", 0.01, Flat},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := Breakout{}.Decide(regime.LatentState{Momentum: tt.momentum}, nil, nil)
			assert.Equal(t, tt.want, a.Direction)
		})
	}
}

func TestReversion_FadesStretchedImbalance(t *testing.T) {
	t.Parallel()

	beliefs := []regime.Belief{{ID: regime.MeanReversion, Probability: 0.8}}

	a := Reversion{}.Decide(regime.LatentState{Imbalance: 0.6}, beliefs, nil)
	assert.Equal(t, Short, a.Direction)
	assert.Greater(t, a.Confidence, 0.5)

	a = Reversion{}.Decide(regime.LatentState{Imbalance: -0.6}, beliefs, nil)
	assert.Equal(t, Long, a.Direction)

	// Without mean-reversion conviction it sits out.
	a = Reversion{}.Decide(regime.LatentState{Imbalance: 0.6},
		[]regime.Belief{{ID: regime.MeanReversion, Probability: 0.1}}, nil)
	assert.Equal(t, Flat, a.Direction)
}

func TestNoop_AlwaysFlat(t *testing.T) {
	t.Parallel()

	a := Noop{}.Decide(regime.LatentState{Momentum: 99}, nil, nil)
	assert.Equal(t, Flat, a.Direction)
	assert.Zero(t, a.Confidence)
}
