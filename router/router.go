// Package router selects, once per tick, which strategy from the catalog
// acts. Selection is contextual Thompson sampling: each policy keeps a
// reward belief it samples from, plus a linear adjustment learned over the
// tick's context features, plus an exploration bonus that decays as a
// policy accumulates pulls.
package router

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/quant/regime"
	"github.com/rustyeddy/quant/strategies"
)

// ErrUnknownPolicy reports a reward update for a policy id that is not in
// the catalog — a wiring bug in the fill reporter, never a market
// condition.
var ErrUnknownPolicy = errors.New("router: unknown policy id")

// featureOrder fixes the context-feature layout of every weight vector.
// Features absent from a tick's bag default to 0.
var featureOrder = []string{
	"vol_short",
	"vol_long",
	"imbalance",
	"spread_bps",
	"skew_25d",
	"risk_reversal",
	"butterfly",
	"funding_rate",
	"sentiment",
	"whale_score",
}

// Context carries the per-tick features the router conditions on.
type Context struct {
	RegimeProbs []float64
	Features    map[string]float64
}

// vector lays the context out as regime probabilities followed by the
// named features in canonical order.
func (c Context) vector() []float64 {
	v := make([]float64, featureDim())
	for i := 0; i < regime.NumRegimes && i < len(c.RegimeProbs); i++ {
		v[i] = c.RegimeProbs[i]
	}
	for i, name := range featureOrder {
		v[regime.NumRegimes+i] = c.Features[name]
	}
	return v
}

func featureDim() int {
	return regime.NumRegimes + len(featureOrder)
}

// Selection is the outcome of one Choose call.
type Selection struct {
	PolicyID         string
	Score            float64
	Sampled          float64
	ContextAdjust    float64
	ExplorationBonus float64
}

// Option configures a Router.
type Option func(*Router)

// WithSeed fixes the sampling RNG, for reproducible tests and replays.
func WithSeed(seed int64) Option {
	return func(r *Router) { r.rng = rand.New(rand.NewSource(seed)) }
}

// WithKind selects the posterior family for every policy.
func WithKind(kind PosteriorKind) Option {
	return func(r *Router) { r.kind = kind }
}

// WithExploration sets the exploration-bonus coefficient.
func WithExploration(c float64) Option {
	return func(r *Router) { r.explore = c }
}

// WithLearningRate sets the contextual-weight gradient step.
func WithLearningRate(lr float64) Option {
	return func(r *Router) { r.learningRate = lr }
}

// Router owns one posterior per catalog policy.
type Router struct {
	catalog      *strategies.Catalog
	posteriors   map[string]*Posterior
	rng          *rand.Rand
	kind         PosteriorKind
	explore      float64
	learningRate float64
	log          zerolog.Logger
}

// New builds a router over the catalog with one uninformative posterior
// per policy.
func New(catalog *strategies.Catalog, log zerolog.Logger, opts ...Option) (*Router, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("router: empty strategy catalog")
	}

	r := &Router{
		catalog:      catalog,
		posteriors:   make(map[string]*Posterior, catalog.Len()),
		rng:          rand.New(rand.NewSource(1)),
		kind:         KindBeta,
		explore:      0.5,
		learningRate: 0.01,
		log:          log.With().Str("component", "router").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, id := range catalog.IDs() {
		r.posteriors[id] = newPosterior(r.kind, featureDim())
	}
	return r, nil
}

// Choose samples every policy's belief and returns the argmax of
// sampled value + contextual adjustment + exploration bonus.
func (r *Router) Choose(ctx Context) Selection {
	features := ctx.vector()

	var best Selection
	first := true
	for _, id := range r.catalog.IDs() {
		p := r.posteriors[id]

		sampled := p.Sample(r.rng)
		adjust := dot(p.Weights, features)
		bonus := r.explore / math.Sqrt(float64(p.Chosen)+1)
		score := sampled + adjust + bonus

		if first || score > best.Score {
			best = Selection{
				PolicyID:         id,
				Score:            score,
				Sampled:          sampled,
				ContextAdjust:    adjust,
				ExplorationBonus: bonus,
			}
			first = false
		}
	}

	r.posteriors[best.PolicyID].Chosen++
	r.log.Debug().
		Str("policy", best.PolicyID).
		Float64("score", best.Score).
		Float64("bonus", best.ExplorationBonus).
		Msg("policy chosen")
	return best
}

// Update folds a realized reward into the chosen policy's belief and takes
// one gradient step on its contextual weights.
func (r *Router) Update(policyID string, reward float64, ctx Context) error {
	p, ok := r.posteriors[policyID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policyID)
	}

	p.Observe(reward)
	features := ctx.vector()
	for i := range p.Weights {
		p.Weights[i] += r.learningRate * reward * features[i]
	}
	return nil
}

// Strategy resolves a catalog id, for the pipeline after Choose.
func (r *Router) Strategy(policyID string) (strategies.Strategy, error) {
	s, ok := r.catalog.Get(policyID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policyID)
	}
	return s, nil
}

// PosteriorSnapshot exposes one policy's belief for status surfaces.
type PosteriorSnapshot struct {
	PolicyID       string
	ExpectedReward float64
	Count          int
}

// Snapshot returns every policy's belief summary in catalog order.
func (r *Router) Snapshot() []PosteriorSnapshot {
	out := make([]PosteriorSnapshot, 0, len(r.posteriors))
	for _, id := range r.catalog.IDs() {
		p := r.posteriors[id]
		out = append(out, PosteriorSnapshot{
			PolicyID:       id,
			ExpectedReward: p.ExpectedReward(),
			Count:          p.Count,
		})
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
