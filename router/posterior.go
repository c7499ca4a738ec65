package router

import (
	"math"
	"math/rand"
)

// PosteriorKind selects the reward-belief family a posterior uses.
type PosteriorKind int

const (
	// KindBeta models binary win/loss rewards with a Beta(α, β) belief.
	KindBeta PosteriorKind = iota
	// KindNormal models continuous rewards with a conjugate Normal belief.
	KindNormal
)

// Posterior is one policy's reward belief plus its contextual weights.
type Posterior struct {
	Kind PosteriorKind

	// Beta parameters (KindBeta).
	Alpha float64
	Beta  float64

	// Normal parameters (KindNormal).
	Mean      float64
	Precision float64

	// Count is the number of realized rewards folded in; Chosen is the
	// number of times the router picked this policy. The exploration
	// bonus decays with Chosen so unpicked arms keep getting looks even
	// when their rewards lag.
	Count   int
	Chosen  int
	Weights []float64
}

func newPosterior(kind PosteriorKind, dim int) *Posterior {
	// Uninformative priors on purpose: early choices should be close to
	// uniform until real rewards arrive.
	return &Posterior{
		Kind:      kind,
		Alpha:     1,
		Beta:      1,
		Mean:      0,
		Precision: 1,
		Weights:   make([]float64, dim),
	}
}

// Sample draws an expected-reward estimate from the belief.
func (p *Posterior) Sample(rng *rand.Rand) float64 {
	switch p.Kind {
	case KindNormal:
		return p.Mean + rng.NormFloat64()/math.Sqrt(p.Precision)
	default:
		return sampleBeta(rng, p.Alpha, p.Beta)
	}
}

// Observe folds one realized reward into the belief.
func (p *Posterior) Observe(reward float64) {
	p.Count++
	switch p.Kind {
	case KindNormal:
		// Conjugate update with unit observation noise.
		newPrec := p.Precision + 1
		p.Mean = (p.Mean*p.Precision + reward) / newPrec
		p.Precision = newPrec
	default:
		if reward > 0 {
			p.Alpha++
		} else {
			p.Beta++
		}
	}
}

// ExpectedReward returns the belief mean, used for status reporting.
func (p *Posterior) ExpectedReward() float64 {
	if p.Kind == KindNormal {
		return p.Mean
	}
	return p.Alpha / (p.Alpha + p.Beta)
}

// sampleBeta draws Beta(α, β) as Gamma(α,1)/(Gamma(α,1)+Gamma(β,1)).
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	ga := sampleGamma(rng, alpha)
	gb := sampleGamma(rng, beta)
	if ga+gb == 0 {
		return 0.5
	}
	return ga / (ga + gb)
}

// sampleGamma draws Gamma(shape, 1) with Marsaglia and Tsang's method.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		return sampleGamma(rng, shape+1) * math.Pow(rng.Float64(), 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rng.NormFloat64()
		v := 1.0 + c*x
		v = v * v * v
		if v <= 0 {
			continue
		}
		u := rng.Float64()
		x2 := x * x
		if u < 1.0-0.0331*x2*x2 {
			return d * v
		}
		if math.Log(u) < 0.5*x2+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
