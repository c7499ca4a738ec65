// Package execution chooses how a sized order should be worked. The
// decision is an explicit lookup table keyed by uncertainty, liquidity
// tier, and volatility buckets — not a learned model, because an
// execution-style choice has to be explainable after the fact and
// auditable under stress.
package execution

import (
	"math"

	"github.com/rustyeddy/quant/strategies"
)

// Style is an order-handling style. Route never returns anything outside
// this set.
type Style string

const (
	StyleLimit   Style = "limit"
	StyleTWAP    Style = "twap"
	StyleVWAP    Style = "vwap"
	StyleIceberg Style = "iceberg"
	StyleHalt    Style = "halt"
)

// Order is a sized order awaiting an execution style.
type Order struct {
	Symbol  string
	Side    strategies.Direction
	SizePct float64
}

// MarketConditions is the microstructure snapshot at routing time.
type MarketConditions struct {
	SpreadBps     float64
	DepthUSD      float64
	VolatilityPct float64
	LiquidityTier int // 1 = deep … 3 = thin
}

// Slice is one child order in a working schedule.
type Slice struct {
	Fraction float64
	DelaySec int
	Display  float64 // iceberg visible fraction, 0 when fully shown
}

// Leg is one execution approach with its optional child schedule.
type Leg struct {
	Type   Style
	Slices []Slice
}

// Plan is the routing output: a primary leg and an optional fallback to
// try when the primary cannot fill.
type Plan struct {
	Primary  Leg
	Fallback *Leg
}

// Config holds the router's fixed thresholds.
type Config struct {
	// Circuit breaker: at or past both bounds the only answer is halt —
	// a refusal, never a smaller size.
	HaltUncertainty float64 `yaml:"halt_uncertainty" default:"0.85"`
	HaltVolatility  float64 `yaml:"halt_volatility" default:"20"`

	// MaxLimitSpreadBps demotes a limit decision to twap when the book
	// is too wide to rest passively.
	MaxLimitSpreadBps float64 `yaml:"max_limit_spread_bps" default:"20"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HaltUncertainty:   0.85,
		HaltVolatility:    20,
		MaxLimitSpreadBps: 20,
	}
}

// Router is a stateless style chooser. Route is a pure function of its
// arguments and the fixed config.
type Router struct {
	cfg Config
}

// NewRouter builds a router, filling zero thresholds from defaults.
func NewRouter(cfg Config) *Router {
	def := DefaultConfig()
	if cfg.HaltUncertainty <= 0 {
		cfg.HaltUncertainty = def.HaltUncertainty
	}
	if cfg.HaltVolatility <= 0 {
		cfg.HaltVolatility = def.HaltVolatility
	}
	if cfg.MaxLimitSpreadBps <= 0 {
		cfg.MaxLimitSpreadBps = def.MaxLimitSpreadBps
	}
	return &Router{cfg: cfg}
}

// styleTable maps [uncertainty bucket][liquidity tier-1][volatility
// bucket] to a style. Rows read calm→stressed in every dimension.
var styleTable = [3][3][3]Style{
	{ // low uncertainty
		{StyleLimit, StyleTWAP, StyleVWAP},
		{StyleLimit, StyleTWAP, StyleVWAP},
		{StyleTWAP, StyleTWAP, StyleVWAP},
	},
	{ // moderate uncertainty
		{StyleTWAP, StyleTWAP, StyleVWAP},
		{StyleTWAP, StyleVWAP, StyleVWAP},
		{StyleIceberg, StyleIceberg, StyleIceberg},
	},
	{ // high uncertainty
		{StyleTWAP, StyleVWAP, StyleVWAP},
		{StyleVWAP, StyleIceberg, StyleIceberg},
		{StyleIceberg, StyleIceberg, StyleHalt},
	},
}

// Route picks the execution style for order under mkt and the regime
// filter's uncertainty scalar. It never fails; malformed inputs are
// treated as maximally stressed.
func (r *Router) Route(order Order, mkt MarketConditions, uncertainty float64) Plan {
	if math.IsNaN(uncertainty) || math.IsInf(uncertainty, 0) || uncertainty < 0 {
		uncertainty = 1
	}
	vol := mkt.VolatilityPct
	if math.IsNaN(vol) || math.IsInf(vol, 0) || vol < 0 {
		vol = r.cfg.HaltVolatility
	}
	tier := mkt.LiquidityTier
	if tier < 1 || tier > 3 {
		tier = 3
	}

	// Hard circuit breaker before any table lookup.
	if uncertainty >= r.cfg.HaltUncertainty && vol >= r.cfg.HaltVolatility {
		return Plan{Primary: Leg{Type: StyleHalt}}
	}

	style := styleTable[uncertaintyBucket(uncertainty)][tier-1][volatilityBucket(vol)]

	if style == StyleLimit && mkt.SpreadBps > r.cfg.MaxLimitSpreadBps {
		style = StyleTWAP
	}

	return buildPlan(style)
}

func uncertaintyBucket(u float64) int {
	switch {
	case u < 0.3:
		return 0
	case u < 0.7:
		return 1
	default:
		return 2
	}
}

func volatilityBucket(volPct float64) int {
	switch {
	case volPct < 5:
		return 0
	case volPct < 15:
		return 1
	default:
		return 2
	}
}

// buildPlan attaches the fixed child schedule and fallback per style.
func buildPlan(style Style) Plan {
	switch style {
	case StyleLimit:
		return Plan{
			Primary:  Leg{Type: StyleLimit},
			Fallback: &Leg{Type: StyleTWAP, Slices: twapSlices()},
		}
	case StyleTWAP:
		return Plan{
			Primary:  Leg{Type: StyleTWAP, Slices: twapSlices()},
			Fallback: &Leg{Type: StyleIceberg, Slices: icebergSlices()},
		}
	case StyleVWAP:
		return Plan{
			Primary:  Leg{Type: StyleVWAP, Slices: vwapSlices()},
			Fallback: &Leg{Type: StyleIceberg, Slices: icebergSlices()},
		}
	case StyleIceberg:
		return Plan{
			Primary:  Leg{Type: StyleIceberg, Slices: icebergSlices()},
			Fallback: &Leg{Type: StyleHalt},
		}
	default:
		return Plan{Primary: Leg{Type: StyleHalt}}
	}
}

// twapSlices: four equal clips, 150s apart.
func twapSlices() []Slice {
	out := make([]Slice, 4)
	for i := range out {
		out[i] = Slice{Fraction: 0.25, DelaySec: i * 150}
	}
	return out
}

// vwapSlices: six clips weighted toward the session edges, the usual
// U-shaped volume profile.
func vwapSlices() []Slice {
	weights := []float64{0.25, 0.15, 0.10, 0.10, 0.15, 0.25}
	out := make([]Slice, len(weights))
	for i, w := range weights {
		out[i] = Slice{Fraction: w, DelaySec: i * 100}
	}
	return out
}

// icebergSlices: ten clips showing a tenth of each clip.
func icebergSlices() []Slice {
	out := make([]Slice, 10)
	for i := range out {
		out[i] = Slice{Fraction: 0.10, DelaySec: i * 60, Display: 0.10}
	}
	return out
}
