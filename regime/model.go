package regime

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// StateDim is the latent-state dimension tracked by every filter.
	StateDim = 7
	// NumRegimes is the number of parallel regime filters in the bank.
	NumRegimes = 4
)

// ID identifies one of the four canonical regimes.
type ID int

const (
	MeanReversion ID = iota // low-volatility mean-reversion
	Trending                // high-volatility trending
	EventDriven             // news/event-driven
	Blackout                // macro-stress blackout
)

func (id ID) String() string {
	switch id {
	case MeanReversion:
		return "mean_reversion"
	case Trending:
		return "trending"
	case EventDriven:
		return "event_driven"
	case Blackout:
		return "blackout"
	default:
		return fmt.Sprintf("regime(%d)", int(id))
	}
}

// RegimeModel holds one regime's linear-Gaussian dynamics.
type RegimeModel struct {
	Name             string      `yaml:"name"`
	Transition       [][]float64 `yaml:"transition"`        // A: 7x7 state transition
	Observation      [][]float64 `yaml:"observation"`       // C: 7x7 state -> observation map
	ProcessNoise     [][]float64 `yaml:"process_noise"`     // Q
	ObservationNoise [][]float64 `yaml:"observation_noise"` // R
	MeanReversion    float64     `yaml:"mean_reversion"`
	Volatility       float64     `yaml:"volatility"`
	Momentum         float64     `yaml:"momentum"`
}

// Model is the versioned regime-bank configuration, loaded once at startup.
// Matrices live in config rather than code so they stay tunable without a
// rebuild.
type Model struct {
	Version          string        `yaml:"version"`
	Regimes          []RegimeModel `yaml:"regimes"`
	RegimeTransition [][]float64   `yaml:"regime_transition"` // HMM: row r = P(next | current=r)
	InitialPrior     []float64     `yaml:"initial_prior"`
	InitialVariance  float64       `yaml:"initial_variance"`
}

// LoadModel reads and validates a regime model from a YAML file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regime model: %w", err)
	}

	m := &Model{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse regime model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid regime model %q: %w", path, err)
	}
	return m, nil
}

// Save writes the model as YAML, so `quant model init` can emit a tunable
// starting point.
func (m *Model) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal regime model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write regime model: %w", err)
	}
	return nil
}

// Validate checks dimensions and stochastic-matrix constraints.
func (m *Model) Validate() error {
	if len(m.Regimes) != NumRegimes {
		return fmt.Errorf("expected %d regimes, got %d", NumRegimes, len(m.Regimes))
	}
	for i, r := range m.Regimes {
		for _, mat := range []struct {
			name string
			a    [][]float64
		}{
			{"transition", r.Transition},
			{"observation", r.Observation},
			{"process_noise", r.ProcessNoise},
			{"observation_noise", r.ObservationNoise},
		} {
			if len(mat.a) != StateDim {
				return fmt.Errorf("regime %d: %s must be %dx%d", i, mat.name, StateDim, StateDim)
			}
			for _, row := range mat.a {
				if len(row) != StateDim {
					return fmt.Errorf("regime %d: %s must be %dx%d", i, mat.name, StateDim, StateDim)
				}
			}
		}
	}

	if len(m.RegimeTransition) != NumRegimes {
		return fmt.Errorf("regime_transition must be %dx%d", NumRegimes, NumRegimes)
	}
	for r, row := range m.RegimeTransition {
		if len(row) != NumRegimes {
			return fmt.Errorf("regime_transition must be %dx%d", NumRegimes, NumRegimes)
		}
		sum := 0.0
		for _, p := range row {
			if p < 0 || p > 1 {
				return fmt.Errorf("regime_transition[%d]: probability out of [0,1]", r)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("regime_transition[%d]: row sums to %.9f, want 1", r, sum)
		}
	}

	if len(m.InitialPrior) != NumRegimes {
		return fmt.Errorf("initial_prior must have %d entries", NumRegimes)
	}
	sum := 0.0
	for _, p := range m.InitialPrior {
		if p < 0 || p > 1 {
			return fmt.Errorf("initial_prior: probability out of [0,1]")
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("initial_prior sums to %.9f, want 1", sum)
	}

	if m.InitialVariance <= 0 {
		return fmt.Errorf("initial_variance must be positive")
	}
	return nil
}

// DefaultModel returns the built-in four-regime bank. Each regime shares
// the same observation map and differs in momentum persistence and noise
// scale: the calm regime expects small innovations, the blackout regime
// enormous ones, which is what lets flat markets and stress markets
// separate in the posterior.
func DefaultModel() *Model {
	return &Model{
		Version: "v1",
		Regimes: []RegimeModel{
			regimeDynamics("mean_reversion", 0.80, 0.2, 1e-4, 0.01, 0.85, 0.02, 0.10),
			regimeDynamics("trending", 0.98, 1.0, 1e-2, 1.0, 0.15, 0.06, 0.85),
			regimeDynamics("event_driven", 0.90, 0.6, 1e-1, 4.0, 0.30, 0.12, 0.50),
			regimeDynamics("blackout", 0.85, 0.3, 1.0, 25.0, 0.10, 0.25, 0.20),
		},
		RegimeTransition: [][]float64{
			{0.94, 0.03, 0.02, 0.01},
			{0.04, 0.92, 0.03, 0.01},
			{0.05, 0.05, 0.85, 0.05},
			{0.02, 0.02, 0.06, 0.90},
		},
		InitialPrior:    []float64{0.25, 0.25, 0.25, 0.25},
		InitialVariance: 1.0,
	}
}

// regimeDynamics builds one regime's matrices. momentumDecay controls how
// long trends persist, priceMomentum couples momentum back into the
// microprice, qScale/rScale set process and observation noise.
func regimeDynamics(name string, momentumDecay, priceMomentum, qScale, rScale, meanRev, vol, mom float64) RegimeModel {
	a := eye(StateDim)
	a[3][3] = momentumDecay // momentum persistence
	a[0][3] = priceMomentum // price follows momentum
	a[4][4] = 0.95          // activity decays slowly

	// Observation map: price <- microprice, volume <- activity,
	// spread/imbalance direct, funding and gas <- on-chain bias,
	// social <- sentiment. Momentum is never observed directly.
	c := make([][]float64, StateDim)
	for i := range c {
		c[i] = make([]float64, StateDim)
	}
	c[0][0] = 1
	c[1][4] = 1
	c[2][1] = 1
	c[3][2] = 1
	c[4][5] = 1
	c[5][5] = 1
	c[6][6] = 1

	return RegimeModel{
		Name:             name,
		Transition:       a,
		Observation:      c,
		ProcessNoise:     scaledEye(StateDim, qScale),
		ObservationNoise: scaledEye(StateDim, rScale),
		MeanReversion:    meanRev,
		Volatility:       vol,
		Momentum:         mom,
	}
}

func eye(n int) [][]float64 {
	return scaledEye(n, 1)
}

func scaledEye(n int, s float64) [][]float64 {
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
		a[i][i] = s
	}
	return a
}
