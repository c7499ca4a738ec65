package execution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/quant/strategies"
)

func testOrder() Order {
	return Order{Symbol: "BTC-USD", Side: strategies.Long, SizePct: 0.05}
}

func TestRoute_CalmDeepMarketRestsLimit(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})
	plan := r.Route(testOrder(), MarketConditions{
		SpreadBps:     2,
		DepthUSD:      5_000_000,
		VolatilityPct: 1,
		LiquidityTier: 1,
	}, 0.1)

	assert.Equal(t, StyleLimit, plan.Primary.Type)
	require.NotNil(t, plan.Fallback)
	assert.Equal(t, StyleTWAP, plan.Fallback.Type)
}

func TestRoute_WideSpreadDemotesLimit(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})
	plan := r.Route(testOrder(), MarketConditions{
		SpreadBps:     80,
		VolatilityPct: 1,
		LiquidityTier: 1,
	}, 0.1)

	assert.Equal(t, StyleTWAP, plan.Primary.Type)
}

func TestRoute_ExtremeStressHalts(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})
	plan := r.Route(testOrder(), MarketConditions{
		SpreadBps:     40,
		VolatilityPct: 25,
		LiquidityTier: 3,
	}, 0.9)

	assert.Equal(t, StyleHalt, plan.Primary.Type)
	assert.Nil(t, plan.Fallback, "halt is a refusal, not a schedule")
	assert.Empty(t, plan.Primary.Slices)
}

func TestRoute_HaltIsRefusalNotDiscount(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})
	// Past the breaker the size of the order must not matter.
	for _, size := range []float64{0.001, 0.05, 0.5} {
		o := testOrder()
		o.SizePct = size
		plan := r.Route(o, MarketConditions{VolatilityPct: 30, LiquidityTier: 2}, 0.95)
		assert.Equal(t, StyleHalt, plan.Primary.Type, "size %v", size)
	}
}

func TestRoute_AlwaysEnumeratedStyle(t *testing.T) {
	t.Parallel()

	valid := map[Style]bool{
		StyleLimit: true, StyleTWAP: true, StyleVWAP: true,
		StyleIceberg: true, StyleHalt: true,
	}

	r := NewRouter(Config{})
	for _, u := range []float64{0, 0.2, 0.5, 0.8, 1.0, math.NaN()} {
		for tier := 0; tier <= 4; tier++ {
			for _, vol := range []float64{0, 3, 10, 18, 50, math.Inf(1)} {
				plan := r.Route(testOrder(), MarketConditions{
					VolatilityPct: vol,
					LiquidityTier: tier,
				}, u)
				assert.True(t, valid[plan.Primary.Type],
					"u=%v tier=%d vol=%v produced %q", u, tier, vol, plan.Primary.Type)
				if plan.Fallback != nil {
					assert.True(t, valid[plan.Fallback.Type])
				}
			}
		}
	}
}

func TestRoute_IsPure(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})
	order := testOrder()
	mkt := MarketConditions{SpreadBps: 12, DepthUSD: 100000, VolatilityPct: 8, LiquidityTier: 2}

	first := r.Route(order, mkt, 0.55)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, r.Route(order, mkt, 0.55),
			"identical inputs must always produce an identical plan")
	}
}

func TestRoute_ThinBookHighUncertaintyIcebergs(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})
	plan := r.Route(testOrder(), MarketConditions{
		VolatilityPct: 3,
		LiquidityTier: 3,
	}, 0.8)

	assert.Equal(t, StyleIceberg, plan.Primary.Type)
	require.NotEmpty(t, plan.Primary.Slices)
	total := 0.0
	for _, s := range plan.Primary.Slices {
		total += s.Fraction
		assert.Greater(t, s.Display, 0.0, "iceberg slices show a clip fraction")
	}
	assert.InDelta(t, 1.0, total, 1e-9, "child schedule must cover the full size")
	require.NotNil(t, plan.Fallback)
	assert.Equal(t, StyleHalt, plan.Fallback.Type)
}

func TestRoute_ScheduleFractionsSumToOne(t *testing.T) {
	t.Parallel()

	for _, slices := range [][]Slice{twapSlices(), vwapSlices(), icebergSlices()} {
		total := 0.0
		for _, s := range slices {
			total += s.Fraction
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	}
}

func TestUnknownTierTreatedAsThin(t *testing.T) {
	t.Parallel()

	r := NewRouter(Config{})
	got := r.Route(testOrder(), MarketConditions{VolatilityPct: 3, LiquidityTier: 99}, 0.8)
	want := r.Route(testOrder(), MarketConditions{VolatilityPct: 3, LiquidityTier: 3}, 0.8)
	assert.Equal(t, want, got)
}
