// Package regime estimates the latent market state and a posterior over
// discrete market regimes. It runs a bank of four linear-Gaussian filters,
// one per regime, mixed by a hidden-Markov regime posterior: a single
// linear model cannot track regime-dependent dynamics, while the mixture
// keeps every update closed-form.
package regime

import (
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/quant/pkg/mat"
)

// ErrNoModel reports a detector constructed without a regime model. This
// is a wiring bug, not a market condition, so it is the one hard error the
// package returns.
var ErrNoModel = errors.New("regime: no model configured")

const (
	// likelihoodFloor keeps a single regime from collapsing to exactly
	// zero posterior mass, which would lock it out forever.
	likelihoodFloor = 1e-10
	// maxExternalPriorWeight caps how much an externally supplied regime
	// hint can move the statistical posterior.
	maxExternalPriorWeight = 0.10
)

// Observation is one raw per-tick market snapshot.
type Observation struct {
	Price          float64
	Volume         float64
	Spread         float64
	Imbalance      float64
	FundingRate    float64
	GasPrice       float64
	SocialMentions float64
}

// Vector returns the observation in filter order.
func (o Observation) Vector() []float64 {
	return []float64{o.Price, o.Volume, o.Spread, o.Imbalance, o.FundingRate, o.GasPrice, o.SocialMentions}
}

// Finite reports whether every component is a usable number.
func (o Observation) Finite() bool {
	for _, v := range o.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LatentState is the filtered market state.
type LatentState struct {
	Microprice  float64
	Spread      float64
	Imbalance   float64
	Momentum    float64
	Volatility  float64
	OnChainBias float64
	Sentiment   float64
}

// Vector returns the state in filter order.
func (s LatentState) Vector() []float64 {
	return []float64{s.Microprice, s.Spread, s.Imbalance, s.Momentum, s.Volatility, s.OnChainBias, s.Sentiment}
}

func stateFromVector(v []float64) LatentState {
	return LatentState{
		Microprice:  v[0],
		Spread:      v[1],
		Imbalance:   v[2],
		Momentum:    v[3],
		Volatility:  v[4],
		OnChainBias: v[5],
		Sentiment:   v[6],
	}
}

// Belief is one regime's posterior entry.
type Belief struct {
	ID            ID
	Probability   float64
	MeanReversion float64
	Volatility    float64
	Momentum      float64
}

// Estimate is the detector output for one tick.
type Estimate struct {
	State       LatentState
	Covariance  [][]float64
	Beliefs     []Belief
	Uncertainty float64 // trace of the mixed covariance
}

// Probabilities returns just the posterior probabilities in regime order.
func (e Estimate) Probabilities() []float64 {
	out := make([]float64, len(e.Beliefs))
	for i, b := range e.Beliefs {
		out[i] = b.Probability
	}
	return out
}

// Detector runs the filter bank. It is not safe for concurrent use; the
// owning pipeline serializes ticks.
type Detector struct {
	model       *Model
	states      [][]float64   // per-regime state vector
	covs        [][][]float64 // per-regime covariance
	posterior   []float64
	initialized bool
	log         zerolog.Logger
}

// NewDetector builds a detector from a validated model.
func NewDetector(m *Model, log zerolog.Logger) (*Detector, error) {
	if m == nil {
		return nil, ErrNoModel
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		model:     m,
		states:    make([][]float64, NumRegimes),
		covs:      make([][][]float64, NumRegimes),
		posterior: append([]float64(nil), m.InitialPrior...),
		log:       log.With().Str("component", "regime").Logger(),
	}
	for r := 0; r < NumRegimes; r++ {
		d.states[r] = make([]float64, StateDim)
		d.covs[r] = mat.New(StateDim, StateDim)
		for i := 0; i < StateDim; i++ {
			d.covs[r][i][i] = m.InitialVariance
		}
	}
	return d, nil
}

// Update advances every regime filter one tick and returns the mixed
// estimate. externalPrior, when non-nil, is a categorical regime hint
// blended at a fixed weight so it can nudge but never dominate the
// statistical posterior. Update never fails: malformed observations and
// numeric degeneracies degrade the belief toward uniform instead of
// corrupting state.
func (d *Detector) Update(obs Observation, externalPrior []float64) Estimate {
	if !obs.Finite() {
		d.log.Warn().Msg("non-finite observation, decaying toward uniform belief")
		d.decayToUniform()
		return d.estimate()
	}

	z := obs.Vector()
	if !d.initialized {
		d.seed(z)
		return d.estimate()
	}

	likelihoods := make([]float64, NumRegimes)
	for r := 0; r < NumRegimes; r++ {
		likelihoods[r] = d.stepRegime(r, z)
	}

	// HMM predict: push last posterior through the regime chain.
	prior := make([]float64, NumRegimes)
	for next := 0; next < NumRegimes; next++ {
		for cur := 0; cur < NumRegimes; cur++ {
			prior[next] += d.posterior[cur] * d.model.RegimeTransition[cur][next]
		}
	}
	if w := externalPriorWeight(externalPrior); w > 0 {
		for r := 0; r < NumRegimes; r++ {
			prior[r] = (1-w)*prior[r] + w*externalPrior[r]
		}
	}

	total := 0.0
	for r := 0; r < NumRegimes; r++ {
		d.posterior[r] = prior[r] * likelihoods[r]
		total += d.posterior[r]
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		// Every regime underflowed; a uniform reset beats propagating
		// non-finite mass.
		d.log.Warn().Msg("regime likelihoods underflowed, resetting to uniform posterior")
		for r := 0; r < NumRegimes; r++ {
			d.posterior[r] = 1.0 / NumRegimes
		}
	} else {
		for r := 0; r < NumRegimes; r++ {
			d.posterior[r] /= total
		}
	}

	return d.estimate()
}

// stepRegime runs one Kalman predict/update for regime r and returns the
// innovation likelihood.
func (d *Detector) stepRegime(r int, z []float64) float64 {
	rm := &d.model.Regimes[r]

	// Predict.
	xPred := mat.MulVec(rm.Transition, d.states[r])
	pPred := mat.Add(mat.Mul(mat.Mul(rm.Transition, d.covs[r]), mat.Transpose(rm.Transition)), rm.ProcessNoise)

	// Innovate.
	innov := mat.SubVec(z, mat.MulVec(rm.Observation, xPred))
	ct := mat.Transpose(rm.Observation)
	s := mat.Add(mat.Mul(mat.Mul(rm.Observation, pPred), ct), rm.ObservationNoise)
	sInv := mat.Inverse(s)

	// Gain and update.
	gain := mat.Mul(mat.Mul(pPred, ct), sInv)
	corr := mat.MulVec(gain, innov)
	for i := 0; i < StateDim; i++ {
		d.states[r][i] = xPred[i] + corr[i]
	}
	ikc := mat.Sub(mat.Identity(StateDim), mat.Mul(gain, rm.Observation))
	d.covs[r] = mat.Mul(ikc, pPred)
	mat.Symmetrize(d.covs[r])

	return gaussianLikelihood(innov, s, sInv)
}

// gaussianLikelihood evaluates the innovation density under N(0, s),
// floored so no regime ever reports exactly zero mass.
func gaussianLikelihood(innov []float64, s, sInv [][]float64) float64 {
	det := mat.Determinant(s)
	if det < likelihoodFloor {
		det = likelihoodFloor
	}

	quad := 0.0
	tmp := mat.MulVec(sInv, innov)
	for i := range innov {
		quad += innov[i] * tmp[i]
	}
	if quad < 0 || math.IsNaN(quad) {
		quad = 0
	}

	norm := math.Pow(2*math.Pi, float64(len(innov))/2) * math.Sqrt(det)
	lk := math.Exp(-0.5*quad) / norm
	if lk < likelihoodFloor || math.IsNaN(lk) {
		return likelihoodFloor
	}
	return lk
}

// seed initializes every regime filter from the first usable observation,
// which avoids a giant first-tick innovation transient.
func (d *Detector) seed(z []float64) {
	for r := 0; r < NumRegimes; r++ {
		d.states[r][0] = z[0] // microprice from price
		d.states[r][1] = z[2] // spread
		d.states[r][2] = z[3] // imbalance
		d.states[r][3] = 0
		d.states[r][4] = z[1] // activity from volume
		d.states[r][5] = z[4] // on-chain bias from funding
		d.states[r][6] = z[6] // sentiment from social mentions
	}
	d.initialized = true
}

func (d *Detector) decayToUniform() {
	const blend = 0.10
	uniform := 1.0 / NumRegimes
	for r := 0; r < NumRegimes; r++ {
		d.posterior[r] = (1-blend)*d.posterior[r] + blend*uniform
	}
	normalize(d.posterior)
}

// estimate collapses the bank into the probability-weighted mixture.
func (d *Detector) estimate() Estimate {
	mixed := make([]float64, StateDim)
	for r := 0; r < NumRegimes; r++ {
		for i := 0; i < StateDim; i++ {
			mixed[i] += d.posterior[r] * d.states[r][i]
		}
	}

	// Mixture covariance: Σ p_r (P_r + (x_r-x̄)(x_r-x̄)ᵀ).
	cov := mat.New(StateDim, StateDim)
	for r := 0; r < NumRegimes; r++ {
		p := d.posterior[r]
		for i := 0; i < StateDim; i++ {
			di := d.states[r][i] - mixed[i]
			for j := 0; j < StateDim; j++ {
				cov[i][j] += p * (d.covs[r][i][j] + di*(d.states[r][j]-mixed[j]))
			}
		}
	}

	beliefs := make([]Belief, NumRegimes)
	for r := 0; r < NumRegimes; r++ {
		rm := &d.model.Regimes[r]
		beliefs[r] = Belief{
			ID:            ID(r),
			Probability:   d.posterior[r],
			MeanReversion: rm.MeanReversion,
			Volatility:    rm.Volatility,
			Momentum:      rm.Momentum,
		}
	}

	return Estimate{
		State:       stateFromVector(mixed),
		Covariance:  cov,
		Beliefs:     beliefs,
		Uncertainty: mat.Trace(cov),
	}
}

func externalPriorWeight(prior []float64) float64 {
	if len(prior) != NumRegimes {
		return 0
	}
	sum := 0.0
	for _, p := range prior {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return 0
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		return 0
	}
	return maxExternalPriorWeight
}

func normalize(p []float64) {
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	if sum <= 0 {
		for i := range p {
			p[i] = 1.0 / float64(len(p))
		}
		return
	}
	for i := range p {
		p[i] /= sum
	}
}
