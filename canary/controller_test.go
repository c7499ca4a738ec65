package canary

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func winTrade(pnl float64) Trade {
	return Trade{Symbol: "BTC-USD", PnL: pnl, Return: 0.002, Time: time.Unix(1700000000, 0)}
}

func lossTrade(pnl float64) Trade {
	return Trade{Symbol: "BTC-USD", PnL: pnl, Return: -0.002, Time: time.Unix(1700000000, 0)}
}

func TestWeights(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, StateDisabled.Weight())
	assert.Equal(t, 0.01, StateCanary.Weight())
	assert.Equal(t, 0.10, StatePartial.Weight())
	assert.Equal(t, 1.0, StateLive.Weight())
}

func TestRecordTrade_PromotesWhenAllCriteriaHold(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StateCanary, zerolog.Nop())

	// 24 trades: alternating wins (+8) and losses (-4) then a winning
	// stretch. Win rate and drawdown clear their bars early but the
	// window P&L stays under the 100 threshold until the 25th trade.
	for i := 0; i < 18; i++ {
		var promoted bool
		if i%2 == 0 {
			_, promoted = c.RecordTrade(winTrade(8))
		} else {
			_, promoted = c.RecordTrade(lossTrade(-4))
		}
		assert.False(t, promoted, "must not promote before min trade count")
	}
	for i := 0; i < 6; i++ {
		_, promoted := c.RecordTrade(winTrade(8))
		assert.False(t, promoted, "P&L threshold still unmet at trade %d", 19+i)
	}

	// 25th trade satisfies everything at once.
	state, promoted := c.RecordTrade(winTrade(20))
	assert.True(t, promoted, "all criteria hold on the 25th trade")
	assert.Equal(t, StatePartial, state)
	assert.Equal(t, 0.10, c.Weight())
}

func TestRecordTrade_IndividualCriteriaDoNotPromote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		feed func(c *Controller)
	}{
		{
			// Enough trades and P&L, win rate too low throughout.
			name: "win_rate_short",
			feed: func(c *Controller) {
				for i := 0; i < 25; i++ {
					if i%2 == 0 {
						c.RecordTrade(lossTrade(-1))
					} else {
						c.RecordTrade(winTrade(50))
					}
				}
			},
		},
		{
			// Great win rate, P&L below threshold.
			name: "pnl_short",
			feed: func(c *Controller) {
				for i := 0; i < 25; i++ {
					c.RecordTrade(winTrade(1))
				}
			},
		},
		{
			// Profitable and high win rate but too few trades.
			name: "trade_count_short",
			feed: func(c *Controller) {
				for i := 0; i < 10; i++ {
					c.RecordTrade(winTrade(50))
				}
			},
		},
		{
			// Everything fine except a deep drawdown in the window.
			name: "drawdown_breach",
			feed: func(c *Controller) {
				for i := 0; i < 5; i++ {
					c.RecordTrade(Trade{PnL: -10, Return: -0.02})
				}
				for i := 0; i < 25; i++ {
					c.RecordTrade(winTrade(50))
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewAt(DefaultConfig(), StateCanary, zerolog.Nop())
			tt.feed(c)
			assert.Equal(t, StateCanary, c.Status().State,
				"a single satisfied criterion must never promote on its own")
		})
	}
}

func TestRecordTrade_BreakerFreezesPromotion(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StateCanary, zerolog.Nop())
	c.SetCircuitBreaker(true, "exchange outage")

	for i := 0; i < 30; i++ {
		c.RecordTrade(winTrade(20))
	}
	st := c.Status()
	assert.Equal(t, StateCanary, st.State)
	require.NotEmpty(t, st.Unmet)
	assert.Contains(t, st.Unmet[0], "circuit breaker")

	c.SetCircuitBreaker(false, "recovered")
	_, promoted := c.RecordTrade(winTrade(20))
	assert.True(t, promoted, "promotion resumes once the breaker clears")
}

func TestSetCircuitBreaker_LogsOnlyOnChange(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewAt(DefaultConfig(), StateCanary, zerolog.New(&buf))

	c.SetCircuitBreaker(true, "exchange outage")
	c.SetCircuitBreaker(true, "exchange outage")
	c.SetCircuitBreaker(true, "exchange outage")
	assert.Equal(t, 1, strings.Count(buf.String(), "circuit breaker toggled"))
	assert.True(t, c.Status().BreakerActive)

	c.SetCircuitBreaker(false, "recovered")
	assert.Equal(t, 2, strings.Count(buf.String(), "circuit breaker toggled"))
	assert.False(t, c.Status().BreakerActive)
}

func TestWeight_NeverDecreasesWithoutRollback(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StateCanary, zerolog.Nop())
	prev := c.Weight()

	// A stream with losing stretches mixed in.
	for i := 0; i < 300; i++ {
		if i%3 == 0 {
			c.RecordTrade(lossTrade(-5))
		} else {
			c.RecordTrade(winTrade(10))
		}
		w := c.Weight()
		assert.GreaterOrEqual(t, w, prev, "weight is monotone without an explicit rollback")
		prev = w
	}
}

func TestRollback(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StatePartial, zerolog.Nop())

	require.NoError(t, c.Rollback(StateCanary, "operator: elevated slippage"))
	assert.Equal(t, StateCanary, c.Status().State)
	assert.Equal(t, 0.01, c.Weight())

	// Sideways or upward "rollbacks" are invalid.
	assert.ErrorIs(t, c.Rollback(StateCanary, "noop"), ErrInvalidTransition)
	assert.ErrorIs(t, c.Rollback(StateLive, "up"), ErrInvalidTransition)

	trail := c.Transitions()
	require.Len(t, trail, 1)
	assert.Equal(t, StatePartial, trail[0].From)
	assert.Equal(t, StateCanary, trail[0].To)
	assert.Equal(t, "operator: elevated slippage", trail[0].Reason)
}

func TestLiveIsTerminal(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StateLive, zerolog.Nop())
	for i := 0; i < 250; i++ {
		state, promoted := c.RecordTrade(winTrade(100))
		assert.Equal(t, StateLive, state)
		assert.False(t, promoted)
	}
	assert.Equal(t, 1.0, c.Weight())
}

func TestStatus_RanksUnmetRequirements(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StateCanary, zerolog.Nop())
	// Two wins: trade count is far short (2/20), win rate is fine.
	c.RecordTrade(winTrade(60))
	c.RecordTrade(winTrade(60))

	st := c.Status()
	assert.Equal(t, 2, st.WindowTrades)
	require.NotEmpty(t, st.Unmet)
	// Trade count (90% short) should outrank the P&L gap.
	assert.Contains(t, st.Unmet[0], "trades")
	assert.Greater(t, st.WinRate, 0.99)
}

func TestWindow_CapsAtMostRecent200(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StateLive, zerolog.Nop())
	for i := 0; i < 450; i++ {
		c.RecordTrade(winTrade(1))
	}
	st := c.Status()
	assert.Equal(t, 200, st.WindowTrades)
	assert.Equal(t, 450, st.TotalFills)
	assert.InDelta(t, 200.0, st.TotalPnL, 1e-9, "window metrics cover only the last 200 trades")
}

func TestRecordTrade_AtomicUnderConcurrency(t *testing.T) {
	t.Parallel()

	c := NewAt(DefaultConfig(), StateCanary, zerolog.Nop())

	var wg sync.WaitGroup
	promotions := make(chan State, 64)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if state, promoted := c.RecordTrade(winTrade(10)); promoted {
					promotions <- state
				}
			}
		}()
	}
	wg.Wait()
	close(promotions)

	// However the trades interleave, each stage is entered exactly once.
	seen := map[State]int{}
	for s := range promotions {
		seen[s]++
	}
	for state, n := range seen {
		assert.Equal(t, 1, n, "state %s promoted %d times", state, n)
	}
}
