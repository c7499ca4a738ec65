// Package indicators provides streaming estimators over tick inputs.
package indicators

// Indicator computes a single streaming value from scalar updates.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EWMAVol(0.94)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next input value and updates internal state.
	Update(v float64)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current indicator value. If !Ready(), it returns 0 —
	// callers should always check Ready().
	Value() float64
}
