package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/quant/canary"
	"github.com/rustyeddy/quant/execution"
	"github.com/rustyeddy/quant/feed"
	"github.com/rustyeddy/quant/journal"
	"github.com/rustyeddy/quant/regime"
	"github.com/rustyeddy/quant/risk"
	"github.com/rustyeddy/quant/router"
	"github.com/rustyeddy/quant/strategies"
)

// alwaysLong is a deterministic confident strategy for pipeline tests.
type alwaysLong struct{}

func (alwaysLong) ID() string { return "always_long" }

func (alwaysLong) Decide(regime.LatentState, []regime.Belief, map[string]float64) strategies.Action {
	return strategies.Action{
		Direction:      strategies.Long,
		Confidence:     0.9,
		WinProbability: 0.6,
		AvgWin:         0.04,
		AvgLoss:        0.02,
		Volatility:     0.01,
		StopLossPct:    0.02,
	}
}

func newTestPipeline(t *testing.T, state canary.State) *Pipeline {
	t.Helper()
	return newTestPipelineWith(t, canary.NewAt(canary.DefaultConfig(), state, zerolog.Nop()), nil)
}

func newTestPipelineWith(t *testing.T, ctl *canary.Controller, j journal.Journal) *Pipeline {
	t.Helper()

	log := zerolog.Nop()
	catalog, err := strategies.NewCatalog(alwaysLong{})
	require.NoError(t, err)
	rt, err := router.New(catalog, log, router.WithSeed(7))
	require.NoError(t, err)

	corr := risk.NewCorrelationTracker(100)
	p, err := New(Deps{
		Model:        regime.DefaultModel(),
		Router:       rt,
		Sizer:        risk.NewSizer(defaultLimits(t), corr, log),
		Correlations: corr,
		Execution:    execution.NewRouter(execution.DefaultConfig()),
		Canary:       ctl,
		Portfolio:    risk.NewPortfolio(100000),
		Journal:      j,
		Log:          log,
	})
	require.NoError(t, err)
	return p
}

func defaultLimits(t *testing.T) risk.Limits {
	t.Helper()
	return risk.Limits{
		DailyLossLimit:       0.03,
		MaxConsecutiveLosses: 5,
		MinConfidence:        0.55,
		KellyFraction:        0.25,
		PerSymbolCap:         0.10,
		MaxSinglePosition:    0.05,
		MaxPortfolioExposure: 0.50,
		CorrelationThreshold: 0.70,
	}
}

func calmTick(price float64, at time.Time) feed.Tick {
	return feed.Tick{
		Time:   at,
		Symbol: "BTC-USD",
		Observation: regime.Observation{
			Price:          price,
			Volume:         10,
			Spread:         1.0,
			Imbalance:      0,
			FundingRate:    0.0001,
			GasPrice:       0.0001,
			SocialMentions: 5,
		},
		DepthUSD: 5_000_000,
		Tier:     1,
	}
}

func TestPipeline_DisabledCanaryScalesToZero(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, canary.StateDisabled)

	res, err := p.OnTick(calmTick(100, time.Now()), nil)
	require.NoError(t, err)

	assert.Greater(t, res.Sizing.RecommendedSize, 0.0, "sizer itself should want this trade")
	assert.Zero(t, res.ScaledSize, "disabled canary must gate it to zero")
	assert.Nil(t, res.Plan)
	assert.Equal(t, canary.StateDisabled, res.CanaryState)
}

func TestPipeline_CanaryStateScalesSize(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, canary.StateCanary)

	res, err := p.OnTick(calmTick(100, time.Now()), nil)
	require.NoError(t, err)

	require.Greater(t, res.Sizing.RecommendedSize, 0.0)
	assert.InDelta(t, res.Sizing.RecommendedSize*0.01, res.ScaledSize, 1e-12)
	require.NotNil(t, res.Plan)
	assert.NotEqual(t, execution.StyleHalt, res.Plan.Primary.Type)
	assert.Equal(t, "always_long", res.Selection.PolicyID)
}

func TestPipeline_PosteriorsStayNormalized(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, canary.StateLive)
	at := time.Now()
	for i := 0; i < 40; i++ {
		res, err := p.OnTick(calmTick(100, at.Add(time.Duration(i)*time.Minute)), nil)
		require.NoError(t, err)

		total := 0.0
		for _, pr := range res.Estimate.Probabilities() {
			total += pr
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	}
}

func TestPipeline_OnFillBooksEverywhere(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, canary.StateLive)

	_, err := p.OnTick(calmTick(100, time.Now()), nil)
	require.NoError(t, err)

	state, promoted := p.OnFill(Fill{
		Symbol:     "BTC-USD",
		Direction:  strategies.Long,
		Size:       0,
		EntryPrice: 100,
		ExitPrice:  101,
		PnL:        50,
		Return:     0.0005,
		OpenTime:   time.Now(),
		CloseTime:  time.Now(),
	})
	assert.Equal(t, canary.StateLive, state)
	assert.False(t, promoted, "live is terminal")
	assert.Equal(t, 50.0, p.Portfolio().DailyPnL)
}

func TestPipeline_RequiresComponents(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{})
	assert.Error(t, err)
}

// memJournal captures journaled records for assertions.
type memJournal struct {
	decisions []journal.DecisionRecord
	trades    []journal.TradeRecord
}

func (m *memJournal) RecordDecision(d journal.DecisionRecord) error {
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *memJournal) RecordTrade(tr journal.TradeRecord) error {
	m.trades = append(m.trades, tr)
	return nil
}

func (m *memJournal) Close() error { return nil }

func TestPipeline_OperatorBreakerSurvivesTicks(t *testing.T) {
	t.Parallel()

	ctl := canary.NewAt(canary.DefaultConfig(), canary.StateCanary, zerolog.Nop())
	p := newTestPipelineWith(t, ctl, nil)

	ctl.SetCircuitBreaker(true, "exchange outage")

	at := time.Now()
	for i := 0; i < 10; i++ {
		_, err := p.OnTick(calmTick(100, at.Add(time.Duration(i)*time.Minute)), nil)
		require.NoError(t, err)
	}

	assert.True(t, ctl.Status().BreakerActive,
		"calm ticks must not clear an operator-set breaker")
}

func TestPipeline_AttributedFillJournalsDecisionID(t *testing.T) {
	t.Parallel()

	j := &memJournal{}
	ctl := canary.NewAt(canary.DefaultConfig(), canary.StateLive, zerolog.Nop())
	p := newTestPipelineWith(t, ctl, j)

	res, err := p.OnTick(calmTick(100, time.Now()), nil)
	require.NoError(t, err)
	require.Greater(t, res.ScaledSize, 0.0)

	p.OnFill(Fill{
		Symbol:     "BTC-USD",
		Direction:  strategies.Long,
		EntryPrice: 100,
		ExitPrice:  101,
		PnL:        50,
		Return:     0.0005,
		CloseTime:  time.Now(),
	})

	require.Len(t, j.trades, 1)
	assert.Equal(t, res.DecisionID, j.trades[0].DecisionID)
	assert.Equal(t, "always_long", j.trades[0].PolicyID)
}

func TestPipeline_UnattributedFillSkipsJournal(t *testing.T) {
	t.Parallel()

	j := &memJournal{}
	ctl := canary.NewAt(canary.DefaultConfig(), canary.StateLive, zerolog.Nop())
	p := newTestPipelineWith(t, ctl, j)

	p.OnFill(Fill{
		Symbol:     "BTC-USD",
		Direction:  strategies.Long,
		EntryPrice: 100,
		ExitPrice:  99,
		PnL:        -50,
		Return:     -0.0005,
		CloseTime:  time.Now(),
	})

	assert.Empty(t, j.trades, "a fill with no matching decision gets no journal row")
	assert.Equal(t, -50.0, p.Portfolio().DailyPnL, "it still books the portfolio")
	assert.Equal(t, 1, ctl.Status().TotalFills, "and the canary window")
}

// memFeed plays back a fixed tick slice.
type memFeed struct {
	ticks []feed.Tick
	i     int
}

func (m *memFeed) Next() (feed.Tick, bool, error) {
	if m.i >= len(m.ticks) {
		return feed.Tick{}, false, nil
	}
	t := m.ticks[m.i]
	m.i++
	return t, true, nil
}

func (m *memFeed) Close() error { return nil }

func TestRunner_ReplaysFeed(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, canary.StateLive)

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var ticks []feed.Tick
	price := 100.0
	for i := 0; i < 60; i++ {
		price *= 1.001
		ticks = append(ticks, calmTick(price, at.Add(time.Duration(i)*time.Minute)))
	}

	r := &Runner{Pipeline: p, Feed: &memFeed{ticks: ticks}}
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60, sum.Ticks)
	assert.Greater(t, sum.Decisions, 0)
	assert.Greater(t, sum.Trades, 0)
	assert.Equal(t, sum.Wins, sum.Trades, "monotone rising prices only win")
	assert.Equal(t, at, sum.Start)
	assert.Equal(t, at.Add(59*time.Minute), sum.End)
}

func TestRunner_ContextCancellation(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, canary.StateLive)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Pipeline: p, Feed: &memFeed{ticks: []feed.Tick{calmTick(100, time.Now())}}}
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_RequiresFeed(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, canary.StateLive)
	r := &Runner{Pipeline: p}
	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "replay: Feed is required", fmt.Sprint(err))
}
