// Package journal persists the pipeline's audit trail: one record per
// sizing decision (including refusals) and one per realized trade. The
// reasoning string and alert summary land here verbatim so an operator
// can reconstruct why any size was what it was.
package journal

import "time"

// DecisionRecord is one sizing decision as journaled.
type DecisionRecord struct {
	DecisionID      string
	Symbol          string
	PolicyID        string
	Regime          string
	RecommendedSize float64
	MaxAllowedSize  float64
	RiskAmount      float64
	ExecutionStyle  string
	CanaryWeight    float64
	Outcome         string // "trade" or "no_trade"
	Alerts          string // "CODE:severity;CODE:severity"
	Reasoning       string
	Time            time.Time
}

// TradeRecord is one realized fill outcome as journaled.
type TradeRecord struct {
	TradeID    string
	DecisionID string
	Symbol     string
	PolicyID   string
	Size       float64
	EntryPrice float64
	ExitPrice  float64
	RealizedPL float64
	Return     float64
	OpenTime   time.Time
	CloseTime  time.Time
}

// Journal is the persistence contract the pipeline writes through.
type Journal interface {
	RecordDecision(DecisionRecord) error
	RecordTrade(TradeRecord) error
	Close() error
}

// Nop discards everything, for tests and dry runs.
type Nop struct{}

func (Nop) RecordDecision(DecisionRecord) error { return nil }
func (Nop) RecordTrade(TradeRecord) error       { return nil }
func (Nop) Close() error                        { return nil }
