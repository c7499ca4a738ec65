// Package strategies defines the contract trading strategies must satisfy
// and a catalog the router selects from. Strategy bodies live outside the
// decision pipeline; the pipeline only cares that each variant can turn
// the filtered state into an Action.
package strategies

import (
	"fmt"
	"sort"

	"github.com/rustyeddy/quant/regime"
)

// Direction is the side of a proposed trade.
type Direction int

const (
	Flat Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Action is a strategy's raw trading signal, before any risk sizing.
// Flat direction or zero confidence means "do nothing this tick".
type Action struct {
	Direction      Direction
	Confidence     float64 // [0,1]
	ExpectedReturn float64
	WinProbability float64
	AvgWin         float64
	AvgLoss        float64
	Volatility     float64
	StopLossPct    float64
}

// Strategy is the capability a pluggable trading strategy exposes.
type Strategy interface {
	// ID returns the stable catalog identifier, e.g. "breakout".
	ID() string

	// Decide produces an Action from the filtered market state, the
	// regime posterior, and the raw context features. It must be a pure
	// function of its inputs.
	Decide(state regime.LatentState, beliefs []regime.Belief, features map[string]float64) Action
}

// Catalog is the fixed set of strategies a pipeline routes between. It is
// built once at startup and passed by reference; there is no package-level
// registry.
type Catalog struct {
	byID  map[string]Strategy
	order []string
}

// NewCatalog builds a catalog from the given strategies. Duplicate ids are
// a wiring bug.
func NewCatalog(strats ...Strategy) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Strategy, len(strats))}
	for _, s := range strats {
		if _, dup := c.byID[s.ID()]; dup {
			return nil, fmt.Errorf("strategies: duplicate id %q", s.ID())
		}
		c.byID[s.ID()] = s
		c.order = append(c.order, s.ID())
	}
	sort.Strings(c.order)
	return c, nil
}

// Get returns the strategy for id.
func (c *Catalog) Get(id string) (Strategy, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// IDs returns all catalog ids in stable order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Len returns the catalog size.
func (c *Catalog) Len() int {
	return len(c.byID)
}
