// Package risk converts a strategy's qualitative signal into a bounded,
// auditable position size. It is the pipeline's primary defense against
// catastrophic loss: hard gates first, then Kelly sizing shrunk by
// volatility, correlation, and exposure caps.
package risk

import "github.com/rustyeddy/quant/strategies"

// Position is one open holding, sized as a fraction of portfolio value.
type Position struct {
	Symbol       string
	Direction    strategies.Direction
	Size         float64 // portfolio fraction, always positive
	EntryPrice   float64
	CurrentPrice float64
}

// Portfolio is the sizer's read-only view of account state. It is written
// by the external fill reporter (via the pipeline) and read here.
type Portfolio struct {
	Value             float64
	DailyPnL          float64
	ConsecutiveLosses int
	Positions         map[string]Position
	DailyReturns      []float64
}

// NewPortfolio returns an empty portfolio with the given starting value.
func NewPortfolio(value float64) *Portfolio {
	return &Portfolio{
		Value:     value,
		Positions: make(map[string]Position),
	}
}

// TotalExposure is the summed absolute size of all open positions.
func (p *Portfolio) TotalExposure() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += pos.Size
	}
	return total
}

// SymbolExposure is the open size in one symbol.
func (p *Portfolio) SymbolExposure(symbol string) float64 {
	return p.Positions[symbol].Size
}

// ApplyFill records a position open or close and the realized outcome.
// pnl is in account currency; ret is the trade's portfolio-fraction return
// appended to the daily series.
func (p *Portfolio) ApplyFill(pos Position, pnl, ret float64) {
	if pos.Size <= 0 {
		delete(p.Positions, pos.Symbol)
	} else {
		p.Positions[pos.Symbol] = pos
	}

	p.DailyPnL += pnl
	p.Value += pnl
	if pnl < 0 {
		p.ConsecutiveLosses++
	} else if pnl > 0 {
		p.ConsecutiveLosses = 0
	}
	p.DailyReturns = append(p.DailyReturns, ret)
}

// ResetDay clears the daily P&L accumulator at a session boundary.
func (p *Portfolio) ResetDay() {
	p.DailyPnL = 0
}
