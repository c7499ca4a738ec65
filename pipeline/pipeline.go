// Package pipeline wires the decision chain together: regime filtering,
// policy selection, sizing, canary scaling, and execution routing, with
// every decision journaled.
package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/quant/canary"
	"github.com/rustyeddy/quant/execution"
	"github.com/rustyeddy/quant/feed"
	"github.com/rustyeddy/quant/indicators"
	"github.com/rustyeddy/quant/journal"
	"github.com/rustyeddy/quant/pkg/id"
	"github.com/rustyeddy/quant/pkg/metrics"
	"github.com/rustyeddy/quant/regime"
	"github.com/rustyeddy/quant/risk"
	"github.com/rustyeddy/quant/router"
	"github.com/rustyeddy/quant/strategies"
)

// Deps collects the components a Pipeline runs on. Model, Router, Sizer,
// Execution, Canary, and Portfolio are required; Journal defaults to
// journal.Nop and Metrics may be nil.
type Deps struct {
	Model        *regime.Model
	Router       *router.Router
	Sizer        *risk.Sizer
	Correlations *risk.CorrelationTracker
	Execution    *execution.Router
	Canary       *canary.Controller
	Portfolio    *risk.Portfolio
	Journal      journal.Journal
	Metrics      *metrics.Recorder
	Log          zerolog.Logger
}

// Result is everything one tick produced, for callers that want to act
// on or display the decision.
type Result struct {
	DecisionID  string
	Symbol      string
	Estimate    regime.Estimate
	Selection   router.Selection
	Action      strategies.Action
	Sizing      risk.Decision
	CanaryState canary.State
	ScaledSize  float64 // RecommendedSize after canary weighting
	Plan        *execution.Plan
	Halted      bool
}

// pending remembers the decision context a fill has to be attributed to.
type pending struct {
	decisionID string
	policyID   string
	ctx        router.Context
}

// Pipeline is the per-account decision engine. One mutex serializes a
// full tick so the filter, posteriors, and portfolio never see a torn
// update.
type Pipeline struct {
	mu sync.Mutex

	model     *regime.Model
	detectors map[string]*regime.Detector
	features  map[string]*indicators.FeatureTracker
	pending   map[string]pending

	router    *router.Router
	sizer     *risk.Sizer
	corr      *risk.CorrelationTracker
	exec      *execution.Router
	canary    *canary.Controller
	portfolio *risk.Portfolio
	journal   journal.Journal
	metrics   *metrics.Recorder
	log       zerolog.Logger

	// riskBreaker mirrors the sizer's emergency latch so the canary
	// breaker is only touched on latch transitions. Operator-set breakers
	// stay untouched.
	riskBreaker bool
}

func New(d Deps) (*Pipeline, error) {
	if d.Model == nil {
		return nil, fmt.Errorf("pipeline: Model is required")
	}
	if d.Router == nil {
		return nil, fmt.Errorf("pipeline: Router is required")
	}
	if d.Sizer == nil {
		return nil, fmt.Errorf("pipeline: Sizer is required")
	}
	if d.Execution == nil {
		return nil, fmt.Errorf("pipeline: Execution is required")
	}
	if d.Canary == nil {
		return nil, fmt.Errorf("pipeline: Canary is required")
	}
	if d.Portfolio == nil {
		return nil, fmt.Errorf("pipeline: Portfolio is required")
	}
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}

	return &Pipeline{
		model:     d.Model,
		detectors: make(map[string]*regime.Detector),
		features:  make(map[string]*indicators.FeatureTracker),
		pending:   make(map[string]pending),
		router:    d.Router,
		sizer:     d.Sizer,
		corr:      d.Correlations,
		exec:      d.Execution,
		canary:    d.Canary,
		portfolio: d.Portfolio,
		journal:   d.Journal,
		metrics:   d.Metrics,
		log:       d.Log,
	}, nil
}

// OnTick runs the full decision chain for one market tick. externalPrior
// may be nil; when present it nudges (never overrides) the regime
// posterior.
func (p *Pipeline) OnTick(tick feed.Tick, externalPrior []float64) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	det, err := p.detector(tick.Symbol)
	if err != nil {
		return Result{}, err
	}
	feat := p.featureTracker(tick.Symbol)
	feat.Update(tick.Observation.Price)

	est := det.Update(tick.Observation, externalPrior)
	features := p.contextFeatures(tick, feat)

	ctx := router.Context{RegimeProbs: est.Probabilities(), Features: features}
	sel := p.router.Choose(ctx)
	strat, err := p.router.Strategy(sel.PolicyID)
	if err != nil {
		return Result{}, err
	}
	action := strat.Decide(est.State, est.Beliefs, features)

	sizing := p.sizer.Size(tick.Symbol, action, tick.Observation.Price, p.portfolio)
	if latched := p.sizer.EmergencyActive(); latched != p.riskBreaker {
		p.riskBreaker = latched
		p.canary.SetCircuitBreaker(latched, "risk emergency latched")
	}

	state := p.canary.Status().State
	scaled := sizing.RecommendedSize * state.Weight()

	res := Result{
		DecisionID:  id.New(),
		Symbol:      tick.Symbol,
		Estimate:    est,
		Selection:   sel,
		Action:      action,
		Sizing:      sizing,
		CanaryState: state,
		ScaledSize:  scaled,
	}

	style := ""
	if scaled > 0 {
		// Model uncertainty squashed to [0,1) for the routing buckets.
		u := est.Uncertainty / (1 + est.Uncertainty)
		plan := p.exec.Route(
			execution.Order{Symbol: tick.Symbol, Side: action.Direction, SizePct: scaled},
			execution.MarketConditions{
				SpreadBps:     tick.Observation.Spread,
				DepthUSD:      tick.DepthUSD,
				VolatilityPct: feat.VolShort(),
				LiquidityTier: tick.Tier,
			},
			u,
		)
		res.Plan = &plan
		style = string(plan.Primary.Type)
		if plan.Primary.Type == execution.StyleHalt {
			// A halt is a refusal, not a smaller order.
			res.Halted = true
			res.ScaledSize = 0
			scaled = 0
		}
	}

	if scaled > 0 {
		p.pending[tick.Symbol] = pending{
			decisionID: res.DecisionID,
			policyID:   sel.PolicyID,
			ctx:        ctx,
		}
	}

	p.record(tick, res, style)
	return res, nil
}

// Fill is a realized trade outcome reported back to the pipeline.
type Fill struct {
	Symbol     string
	Direction  strategies.Direction
	Size       float64 // portfolio fraction remaining after this fill
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Return     float64 // portfolio-fraction return
	OpenTime   time.Time
	CloseTime  time.Time
}

// OnFill books a realized outcome: portfolio state, correlation history,
// the policy posterior, and the canary window all learn from it.
func (p *Pipeline) OnFill(f Fill) (canary.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.portfolio.ApplyFill(risk.Position{
		Symbol:       f.Symbol,
		Direction:    f.Direction,
		Size:         f.Size,
		EntryPrice:   f.EntryPrice,
		CurrentPrice: f.ExitPrice,
	}, f.PnL, f.Return)

	if p.corr != nil {
		p.corr.Record(f.Symbol, f.Return)
	}

	pend, attributed := p.pending[f.Symbol]
	if attributed {
		delete(p.pending, f.Symbol)
		reward := 0.0
		if f.PnL > 0 {
			reward = 1.0
		}
		if err := p.router.Update(pend.policyID, reward, pend.ctx); err != nil {
			p.log.Warn().Err(err).Str("policy", pend.policyID).Msg("posterior update failed")
		}
	} else {
		p.log.Debug().Str("symbol", f.Symbol).Msg("fill without a matching decision")
	}

	state, promoted := p.canary.RecordTrade(canary.Trade{
		Symbol: f.Symbol,
		PnL:    f.PnL,
		Return: f.Return,
		Time:   f.CloseTime,
	})
	if promoted {
		p.log.Info().Str("state", state.String()).Msg("canary promoted")
	}
	p.metrics.RecordCanaryWeight(f.Symbol, state.Weight())

	// Only fills that trace back to a decision here get a journal row;
	// externally reported fills are the venue's audit trail.
	if attributed {
		if err := p.journal.RecordTrade(journal.TradeRecord{
			TradeID:    id.New(),
			DecisionID: pend.decisionID,
			Symbol:     f.Symbol,
			PolicyID:   pend.policyID,
			Size:       f.Size,
			EntryPrice: f.EntryPrice,
			ExitPrice:  f.ExitPrice,
			RealizedPL: f.PnL,
			Return:     f.Return,
			OpenTime:   f.OpenTime,
			CloseTime:  f.CloseTime,
		}); err != nil {
			p.log.Warn().Err(err).Str("symbol", f.Symbol).Msg("trade journaling failed")
		}
	}

	return state, promoted
}

// Portfolio exposes the account view, for status reporting.
func (p *Pipeline) Portfolio() *risk.Portfolio {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.portfolio
}

func (p *Pipeline) detector(symbol string) (*regime.Detector, error) {
	if det, ok := p.detectors[symbol]; ok {
		return det, nil
	}
	det, err := regime.NewDetector(p.model, p.log.With().Str("symbol", symbol).Logger())
	if err != nil {
		return nil, fmt.Errorf("pipeline: detector for %s: %w", symbol, err)
	}
	p.detectors[symbol] = det
	return det, nil
}

func (p *Pipeline) featureTracker(symbol string) *indicators.FeatureTracker {
	if f, ok := p.features[symbol]; ok {
		return f
	}
	f := indicators.NewFeatureTracker()
	p.features[symbol] = f
	return f
}

func (p *Pipeline) contextFeatures(tick feed.Tick, feat *indicators.FeatureTracker) map[string]float64 {
	f := map[string]float64{
		"imbalance":    tick.Observation.Imbalance,
		"spread_bps":   tick.Observation.Spread,
		"funding_rate": tick.Observation.FundingRate,
		"sentiment":    tick.Observation.SocialMentions,
	}
	if feat.Ready() {
		f["vol_short"] = feat.VolShort()
		f["vol_long"] = feat.VolLong()
	}
	return f
}

func (p *Pipeline) record(tick feed.Tick, res Result, style string) {
	regimeName := dominantRegime(res.Estimate)

	p.metrics.RecordTick(tick.Symbol)
	p.metrics.RecordDecision(tick.Symbol, res.Sizing.Outcome())
	for _, b := range res.Estimate.Beliefs {
		p.metrics.RecordRegime(tick.Symbol, b.ID.String(), b.Probability)
	}
	p.metrics.RecordUncertainty(tick.Symbol, res.Estimate.Uncertainty)
	p.metrics.RecordRecommendedSize(tick.Symbol, res.ScaledSize)
	p.metrics.RecordCanaryWeight(tick.Symbol, res.CanaryState.Weight())

	if err := p.journal.RecordDecision(journal.DecisionRecord{
		DecisionID:      res.DecisionID,
		Symbol:          tick.Symbol,
		PolicyID:        res.Selection.PolicyID,
		Regime:          regimeName,
		RecommendedSize: res.ScaledSize,
		MaxAllowedSize:  res.Sizing.MaxAllowedSize,
		RiskAmount:      res.Sizing.RiskAmount,
		ExecutionStyle:  style,
		CanaryWeight:    res.CanaryState.Weight(),
		Outcome:         res.Sizing.Outcome(),
		Alerts:          alertString(res.Sizing.Alerts),
		Reasoning:       res.Sizing.Reasoning,
		Time:            tick.Time,
	}); err != nil {
		p.log.Warn().Err(err).Str("symbol", tick.Symbol).Msg("decision journaling failed")
	}

	p.log.Debug().
		Str("symbol", tick.Symbol).
		Str("policy", res.Selection.PolicyID).
		Str("regime", regimeName).
		Str("outcome", res.Sizing.Outcome()).
		Float64("size", res.ScaledSize).
		Msg("tick decided")
}

func dominantRegime(est regime.Estimate) string {
	best := -1.0
	name := ""
	for _, b := range est.Beliefs {
		if b.Probability > best {
			best = b.Probability
			name = b.ID.String()
		}
	}
	return name
}

func alertString(alerts []risk.Alert) string {
	if len(alerts) == 0 {
		return ""
	}
	parts := make([]string, len(alerts))
	for i, a := range alerts {
		parts[i] = a.Code + ":" + a.Severity.String()
	}
	return strings.Join(parts, ";")
}
