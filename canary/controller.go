// Package canary gates how much live capital follows the pipeline's
// decisions. A fresh deployment starts dark and earns its way through
// disabled → canary (1%) → partial (10%) → live (100%) on rolling
// empirical performance. Promotion is automatic when every criterion
// holds at once; demotion never is — rollback is an explicit operator
// call, which keeps a single bad trade from oscillating the weight.
package canary

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidTransition reports a rollback to a state that is not below the
// current one.
var ErrInvalidTransition = errors.New("canary: invalid state transition")

// windowSize is the rolling trade window metrics derive from.
const windowSize = 200

// cvarMultiplier scales max drawdown into the CVaR proxy.
const cvarMultiplier = 1.5

// State is a rollout stage.
type State int

const (
	StateDisabled State = iota
	StateCanary
	StatePartial
	StateLive
)

func (s State) String() string {
	switch s {
	case StateCanary:
		return "canary"
	case StatePartial:
		return "partial"
	case StateLive:
		return "live"
	default:
		return "disabled"
	}
}

// Weight is the live-capital fraction the stage permits.
func (s State) Weight() float64 {
	switch s {
	case StateCanary:
		return 0.01
	case StatePartial:
		return 0.10
	case StateLive:
		return 1.0
	default:
		return 0
	}
}

// Trade is one realized outcome reported by the fill subsystem.
type Trade struct {
	Symbol string
	PnL    float64
	Return float64 // portfolio-fraction return, drives drawdown
	Time   time.Time
}

// Criteria is one stage's promotion bar. Every field must hold
// simultaneously for the controller to advance.
type Criteria struct {
	MinTrades    int     `yaml:"min_trades"`
	MinWinRate   float64 `yaml:"min_win_rate"`
	MaxDrawdown  float64 `yaml:"max_drawdown"`
	PnLThreshold float64 `yaml:"pnl_threshold"`
	CVaRCap      float64 `yaml:"cvar_cap"`
}

// Config maps each non-terminal stage to its promotion criteria.
type Config struct {
	Disabled Criteria `yaml:"disabled"`
	Canary   Criteria `yaml:"canary"`
	Partial  Criteria `yaml:"partial"`
}

// DefaultConfig returns the production promotion bars.
func DefaultConfig() Config {
	return Config{
		Disabled: Criteria{MinTrades: 50, MinWinRate: 0.52, MaxDrawdown: 0.10, PnLThreshold: 0, CVaRCap: 0.15},
		Canary:   Criteria{MinTrades: 20, MinWinRate: 0.55, MaxDrawdown: 0.05, PnLThreshold: 100, CVaRCap: 0.10},
		Partial:  Criteria{MinTrades: 100, MinWinRate: 0.55, MaxDrawdown: 0.08, PnLThreshold: 1000, CVaRCap: 0.12},
	}
}

func (c Config) criteria(s State) (Criteria, bool) {
	switch s {
	case StateDisabled:
		return c.Disabled, true
	case StateCanary:
		return c.Canary, true
	case StatePartial:
		return c.Partial, true
	default:
		return Criteria{}, false
	}
}

// Transition is one audit-trail entry.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// Status is the operational surface consumed by dashboards and the CLI.
type Status struct {
	State          State
	Weight         float64
	TotalFills     int
	WindowTrades   int
	TotalPnL       float64
	WinRate        float64
	MaxDrawdown    float64
	CVaR           float64
	BreakerActive  bool
	LastTransition time.Time
	Unmet          []string
}

// Controller is the per-deployment rollout record. All methods are safe
// for concurrent use; RecordTrade's read-metrics-then-maybe-promote runs
// under one lock so concurrent trades cannot double-promote.
type Controller struct {
	mu sync.Mutex

	cfg         Config
	state       State
	window      []Trade
	totalFills  int
	breaker     bool
	lastChange  time.Time
	transitions []Transition
	now         func() time.Time
	log         zerolog.Logger
}

// New builds a controller starting in the disabled state.
func New(cfg Config, log zerolog.Logger) *Controller {
	return NewAt(cfg, StateDisabled, log)
}

// NewAt builds a controller resuming at a known state, for deployments
// restarting with a persisted rollout record.
func NewAt(cfg Config, state State, log zerolog.Logger) *Controller {
	if state < StateDisabled || state > StateLive {
		state = StateDisabled
	}
	return &Controller{
		cfg:        cfg,
		state:      state,
		lastChange: time.Now(),
		now:        time.Now,
		log:        log.With().Str("component", "canary").Logger(),
	}
}

// Weight returns the current live-capital multiplier.
func (c *Controller) Weight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Weight()
}

// SetCircuitBreaker blocks promotion while active. It does not demote.
// Re-asserting the current state is a no-op.
func (c *Controller) SetCircuitBreaker(active bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.breaker == active {
		return
	}
	c.breaker = active
	c.log.Warn().Bool("active", active).Str("reason", reason).Msg("circuit breaker toggled")
}

// RecordTrade appends one realized trade, recomputes the rolling metrics,
// and promotes when the current stage's full criteria set holds. It
// returns the state after the call and whether a promotion happened.
func (c *Controller) RecordTrade(t Trade) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Time.IsZero() {
		t.Time = c.now()
	}
	c.totalFills++
	c.window = append(c.window, t)
	if len(c.window) > windowSize {
		c.window = c.window[len(c.window)-windowSize:]
	}

	crit, promotable := c.cfg.criteria(c.state)
	if !promotable || c.breaker {
		return c.state, false
	}

	m := c.metricsLocked()
	if len(c.unmetLocked(crit, m)) > 0 {
		return c.state, false
	}

	from := c.state
	c.state++
	c.lastChange = t.Time
	c.transitions = append(c.transitions, Transition{From: from, To: c.state, Reason: "criteria met", At: t.Time})
	c.log.Info().
		Stringer("from", from).
		Stringer("to", c.state).
		Float64("win_rate", m.winRate).
		Float64("pnl", m.totalPnL).
		Msg("promoted")
	return c.state, true
}

// Rollback drops the controller to a strictly lower stage. This is the
// only path that ever decreases the weight.
func (c *Controller) Rollback(to State, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if to < StateDisabled || to >= c.state {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}

	from := c.state
	c.state = to
	c.lastChange = c.now()
	c.transitions = append(c.transitions, Transition{From: from, To: to, Reason: reason, At: c.lastChange})
	c.log.Warn().
		Stringer("from", from).
		Stringer("to", to).
		Str("reason", reason).
		Msg("rolled back")
	return nil
}

// Status returns the state, weight, rolling metrics, and the ranked
// human-readable requirements still unmet for the next stage.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.metricsLocked()
	st := Status{
		State:          c.state,
		Weight:         c.state.Weight(),
		TotalFills:     c.totalFills,
		WindowTrades:   len(c.window),
		TotalPnL:       m.totalPnL,
		WinRate:        m.winRate,
		MaxDrawdown:    m.maxDrawdown,
		CVaR:           m.cvar,
		BreakerActive:  c.breaker,
		LastTransition: c.lastChange,
	}
	if crit, ok := c.cfg.criteria(c.state); ok {
		st.Unmet = c.unmetLocked(crit, m)
		if c.breaker {
			st.Unmet = append([]string{"circuit breaker active: promotion frozen"}, st.Unmet...)
		}
	}
	return st
}

// Transitions returns the audit trail copy.
func (c *Controller) Transitions() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transition(nil), c.transitions...)
}

type rollingMetrics struct {
	totalPnL    float64
	winRate     float64
	maxDrawdown float64
	cvar        float64
}

func (c *Controller) metricsLocked() rollingMetrics {
	var m rollingMetrics
	wins := 0
	equity, peak, maxDD := 1.0, 1.0, 0.0
	for _, t := range c.window {
		m.totalPnL += t.PnL
		if t.PnL > 0 {
			wins++
		}
		equity *= 1 + t.Return
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	if len(c.window) > 0 {
		m.winRate = float64(wins) / float64(len(c.window))
	}
	m.maxDrawdown = maxDD
	m.cvar = cvarMultiplier * maxDD
	return m
}

// unmetLocked lists the unmet promotion requirements, worst shortfall
// first, phrased for a human operator.
func (c *Controller) unmetLocked(crit Criteria, m rollingMetrics) []string {
	type gap struct {
		msg      string
		severity float64
	}
	var gaps []gap

	if n := len(c.window); n < crit.MinTrades {
		gaps = append(gaps, gap{
			msg:      fmt.Sprintf("need %d trades, have %d", crit.MinTrades, n),
			severity: shortfall(float64(n), float64(crit.MinTrades)),
		})
	}
	if m.winRate < crit.MinWinRate {
		gaps = append(gaps, gap{
			msg:      fmt.Sprintf("win rate %.1f%% below required %.1f%%", 100*m.winRate, 100*crit.MinWinRate),
			severity: shortfall(m.winRate, crit.MinWinRate),
		})
	}
	if m.maxDrawdown > crit.MaxDrawdown {
		gaps = append(gaps, gap{
			msg:      fmt.Sprintf("max drawdown %.2f%% exceeds cap %.2f%%", 100*m.maxDrawdown, 100*crit.MaxDrawdown),
			severity: shortfall(crit.MaxDrawdown, m.maxDrawdown),
		})
	}
	if m.totalPnL < crit.PnLThreshold {
		gaps = append(gaps, gap{
			msg:      fmt.Sprintf("P&L %.2f below threshold %.2f", m.totalPnL, crit.PnLThreshold),
			severity: shortfall(m.totalPnL, crit.PnLThreshold),
		})
	}
	if m.cvar > crit.CVaRCap {
		gaps = append(gaps, gap{
			msg:      fmt.Sprintf("CVaR proxy %.2f%% exceeds cap %.2f%%", 100*m.cvar, 100*crit.CVaRCap),
			severity: shortfall(crit.CVaRCap, m.cvar),
		})
	}

	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].severity > gaps[j].severity })
	out := make([]string, len(gaps))
	for i, g := range gaps {
		out[i] = g.msg
	}
	return out
}

// shortfall measures how far have falls short of want, as a fraction used
// only for ranking.
func shortfall(have, want float64) float64 {
	if want == 0 {
		if have >= 0 {
			return 0
		}
		return 1
	}
	s := (want - have) / maxAbs(want, 1e-9)
	if s < 0 {
		return 0
	}
	return s
}

func maxAbs(v, floor float64) float64 {
	if v < 0 {
		v = -v
	}
	if v < floor {
		return floor
	}
	return v
}
