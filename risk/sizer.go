package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/quant/strategies"
)

// Severity grades a risk alert.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityCritical
	SeverityEmergency
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityEmergency:
		return "emergency"
	default:
		return "warning"
	}
}

// Alert is one structured risk finding attached to a decision.
type Alert struct {
	Severity Severity
	Code     string
	Message  string
}

// Limits are the sizer's hard and soft bounds. Zero values are filled by
// config defaults; the struct is plain data so tests can build it inline.
type Limits struct {
	DailyLossLimit       float64 `yaml:"daily_loss_limit" default:"0.03" validate:"gt=0,lte=1"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" default:"5" validate:"gt=0"`
	MinConfidence        float64 `yaml:"min_confidence" default:"0.55" validate:"gte=0,lte=1"`
	KellyFraction        float64 `yaml:"kelly_fraction" default:"0.25" validate:"gt=0,lte=1"`
	PerSymbolCap         float64 `yaml:"per_symbol_cap" default:"0.10" validate:"gt=0,lte=1"`
	MaxSinglePosition    float64 `yaml:"max_single_position" default:"0.05" validate:"gt=0,lte=1"`
	MaxPortfolioExposure float64 `yaml:"max_portfolio_exposure" default:"0.50" validate:"gt=0,lte=1"`
	CorrelationThreshold float64 `yaml:"correlation_threshold" default:"0.70" validate:"gte=0,lt=1"`
}

// Decision is the sizer's full, auditable output. Every call produces one,
// including refusals: the reasoning string and alert list always explain
// what drove the number.
type Decision struct {
	RecommendedSize float64 // portfolio fraction
	MaxAllowedSize  float64
	RiskAmount      float64 // size × price × stop-loss fraction
	KellyFraction   float64
	Alerts          []Alert
	Reasoning       string
	Metrics         Metrics
}

func (d Decision) noTrade() bool { return d.RecommendedSize == 0 }

// Outcome labels the decision for journaling and metrics.
func (d Decision) Outcome() string {
	if d.noTrade() {
		return "no_trade"
	}
	return "trade"
}

// Sizer applies the gate-then-shrink sizing algorithm. Not safe for
// concurrent use; the owning pipeline serializes calls.
type Sizer struct {
	limits    Limits
	corr      *CorrelationTracker
	emergency bool
	log       zerolog.Logger
}

// NewSizer builds a sizer. corr may be nil, in which case correlation
// discounts are skipped.
func NewSizer(limits Limits, corr *CorrelationTracker, log zerolog.Logger) *Sizer {
	return &Sizer{
		limits: limits,
		corr:   corr,
		log:    log.With().Str("component", "risk").Logger(),
	}
}

// EmergencyActive reports whether sizing is latched shut.
func (s *Sizer) EmergencyActive() bool { return s.emergency }

// ResetEmergency clears the emergency latch. Operator-only path.
func (s *Sizer) ResetEmergency() {
	s.emergency = false
	s.log.Warn().Msg("emergency latch reset by operator")
}

// Size turns a signal into a bounded position size for symbol at price.
// It never fails: invalid signals and limit breaches come back as
// populated no-trade decisions.
func (s *Sizer) Size(symbol string, sig strategies.Action, price float64, pf *Portfolio) Decision {
	d := Decision{Metrics: ComputeMetrics(pf)}

	// Hard gates. Order matters: the emergency latch and the daily-loss
	// breach are checked before anything signal-dependent.
	if s.emergency {
		d.addAlert(SeverityEmergency, "EMERGENCY_LATCHED",
			"sizing blocked until operator reset")
		d.Reasoning = "no trade: emergency latch active from a prior daily-loss breach"
		return d
	}

	lossFloor := -s.limits.DailyLossLimit * pf.Value
	if pf.DailyPnL <= lossFloor {
		s.emergency = true
		d.addAlert(SeverityEmergency, "DAILY_LOSS_LIMIT",
			fmt.Sprintf("daily P&L %.2f breached limit %.2f", pf.DailyPnL, lossFloor))
		d.Reasoning = fmt.Sprintf("no trade: daily loss limit hit (%.2f <= %.2f); emergency latch set", pf.DailyPnL, lossFloor)
		s.log.Error().Float64("daily_pnl", pf.DailyPnL).Float64("limit", lossFloor).Msg("daily loss limit breached")
		return d
	}

	if pf.ConsecutiveLosses >= s.limits.MaxConsecutiveLosses {
		d.addAlert(SeverityCritical, "CONSECUTIVE_LOSSES",
			fmt.Sprintf("%d consecutive losses >= limit %d", pf.ConsecutiveLosses, s.limits.MaxConsecutiveLosses))
		d.Reasoning = fmt.Sprintf("no trade: %d consecutive losses", pf.ConsecutiveLosses)
		return d
	}

	if !finiteSignal(sig) || price <= 0 {
		d.addAlert(SeverityWarning, "INVALID_SIGNAL", "non-finite or malformed signal")
		d.Reasoning = "no trade: signal rejected as non-finite"
		return d
	}

	if sig.Direction == strategies.Flat {
		d.Reasoning = "no trade: strategy is flat"
		return d
	}

	if sig.Confidence < s.limits.MinConfidence {
		d.addAlert(SeverityWarning, "LOW_CONFIDENCE",
			fmt.Sprintf("confidence %.2f below floor %.2f", sig.Confidence, s.limits.MinConfidence))
		d.Reasoning = fmt.Sprintf("no trade: confidence %.2f under floor %.2f", sig.Confidence, s.limits.MinConfidence)
		return d
	}

	kelly := kellyFraction(sig)
	d.KellyFraction = kelly
	if kelly <= 0 {
		d.addAlert(SeverityWarning, "NO_EDGE", "Kelly fraction non-positive")
		d.Reasoning = fmt.Sprintf("no trade: Kelly fraction %.4f, no positive edge", kelly)
		return d
	}

	// Shrink chain. Each step is recorded so the reasoning names the
	// factor that drove the final number.
	var steps []string
	size := kelly * s.limits.KellyFraction
	steps = append(steps, fmt.Sprintf("kelly %.4f x fraction %.2f = %.4f", kelly, s.limits.KellyFraction, size))

	volMult := volatilityMultiplier(sig.Volatility)
	size *= volMult
	steps = append(steps, fmt.Sprintf("volatility %.3f -> x%.1f = %.4f", sig.Volatility, volMult, size))
	if volMult <= 0.4 {
		d.addAlert(SeverityWarning, "EXTREME_VOLATILITY",
			fmt.Sprintf("volatility %.3f above extreme threshold", sig.Volatility))
	}

	if disc := s.correlationDiscount(symbol, pf); disc < 1 {
		size *= disc
		steps = append(steps, fmt.Sprintf("correlation discount x%.2f = %.4f", disc, size))
		d.addAlert(SeverityWarning, "CORRELATED_EXPOSURE",
			fmt.Sprintf("existing positions correlate above %.2f", s.limits.CorrelationThreshold))
	}

	// Clamp chain, fixed order; the portfolio cap is applied last so it
	// always wins.
	symbolRoom := math.Max(0, s.limits.PerSymbolCap-pf.SymbolExposure(symbol))
	portfolioRoom := math.Max(0, s.limits.MaxPortfolioExposure-pf.TotalExposure())
	d.MaxAllowedSize = math.Min(math.Min(symbolRoom, s.limits.MaxSinglePosition), portfolioRoom)

	binding := ""
	if size > symbolRoom {
		size = symbolRoom
		binding = fmt.Sprintf("per-symbol cap %.2f", s.limits.PerSymbolCap)
	}
	if size > s.limits.MaxSinglePosition {
		size = s.limits.MaxSinglePosition
		binding = fmt.Sprintf("single-position cap %.2f", s.limits.MaxSinglePosition)
	}
	if size > portfolioRoom {
		size = portfolioRoom
		binding = fmt.Sprintf("portfolio exposure cap %.2f", s.limits.MaxPortfolioExposure)
		d.addAlert(SeverityWarning, "PORTFOLIO_CAP", "total exposure cap binding")
	}
	if binding != "" {
		steps = append(steps, "clamped by "+binding)
	}

	d.RecommendedSize = size
	d.RiskAmount = size * price * sig.StopLossPct
	d.Reasoning = fmt.Sprintf("%s %s: %s", sig.Direction, symbol, strings.Join(steps, "; "))

	if size == 0 {
		d.Reasoning = "no trade: exposure caps leave no room; " + d.Reasoning
	}
	return d
}

func (d *Decision) addAlert(sev Severity, code, msg string) {
	d.Alerts = append(d.Alerts, Alert{Severity: sev, Code: code, Message: msg})
}

// kellyFraction computes f = (b·p − q)/b with b = avgWin/avgLoss, clamped
// at zero. A non-positive avgLoss would make b degenerate, so it reports
// no edge.
func kellyFraction(sig strategies.Action) float64 {
	if sig.AvgLoss <= 0 || sig.AvgWin <= 0 {
		return 0
	}
	b := sig.AvgWin / sig.AvgLoss
	p := sig.WinProbability
	q := 1 - p
	f := (b*p - q) / b
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	return f
}

// volatilityMultiplier is deliberately stepped rather than smooth so size
// bands stay predictable and auditable under stress.
func volatilityMultiplier(vol float64) float64 {
	switch {
	case vol < 0.02:
		return 1.2
	case vol < 0.05:
		return 1.0
	case vol < 0.08:
		return 0.8
	case vol <= 0.10:
		return 0.6
	default:
		return 0.4
	}
}

// correlationDiscount shrinks size in proportion to the worst excess
// correlation against open positions, bottoming out at half size.
func (s *Sizer) correlationDiscount(symbol string, pf *Portfolio) float64 {
	if s.corr == nil {
		return 1
	}
	maxExcess := 0.0
	for sym := range pf.Positions {
		if sym == symbol {
			continue
		}
		c := math.Abs(s.corr.Correlation(symbol, sym))
		if excess := c - s.limits.CorrelationThreshold; excess > maxExcess {
			maxExcess = excess
		}
	}
	if maxExcess <= 0 {
		return 1
	}
	span := 1 - s.limits.CorrelationThreshold
	return 1 - 0.5*(maxExcess/span)
}

func finiteSignal(sig strategies.Action) bool {
	for _, v := range []float64{
		sig.Confidence, sig.ExpectedReturn, sig.WinProbability,
		sig.AvgWin, sig.AvgLoss, sig.Volatility, sig.StopLossPct,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
