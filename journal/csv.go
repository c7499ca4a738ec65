package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CSV writes decisions and trades into two csv files under dir, one row
// per record. Handy for spreadsheet review of a replay run.
type CSV struct {
	decFile   *os.File
	tradeFile *os.File
	dec       *csv.Writer
	trades    *csv.Writer
}

// NewCSV creates dir if needed and opens decisions.csv and trades.csv
// inside it, writing a header row to each.
func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
	}
	decFile, err := os.Create(filepath.Join(dir, "decisions.csv"))
	if err != nil {
		return nil, err
	}
	tradeFile, err := os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		decFile.Close()
		return nil, err
	}

	c := &CSV{
		decFile:   decFile,
		tradeFile: tradeFile,
		dec:       csv.NewWriter(decFile),
		trades:    csv.NewWriter(tradeFile),
	}
	c.dec.Write([]string{
		"decision_id", "symbol", "policy_id", "regime",
		"recommended_size", "max_allowed_size", "risk_amount",
		"execution_style", "canary_weight", "outcome", "alerts",
		"reasoning", "decided_at",
	})
	c.trades.Write([]string{
		"trade_id", "decision_id", "symbol", "policy_id", "size",
		"entry_price", "exit_price", "realized_pl", "return",
		"open_time", "close_time",
	})
	return c, nil
}

func (c *CSV) RecordDecision(d DecisionRecord) error {
	return c.dec.Write([]string{
		d.DecisionID, d.Symbol, d.PolicyID, d.Regime,
		f(d.RecommendedSize), f(d.MaxAllowedSize), f(d.RiskAmount),
		d.ExecutionStyle, f(d.CanaryWeight), d.Outcome, d.Alerts,
		d.Reasoning, d.Time.UTC().Format(time.RFC3339Nano),
	})
}

func (c *CSV) RecordTrade(t TradeRecord) error {
	return c.trades.Write([]string{
		t.TradeID, t.DecisionID, t.Symbol, t.PolicyID, f(t.Size),
		f(t.EntryPrice), f(t.ExitPrice), f(t.RealizedPL), f(t.Return),
		t.OpenTime.UTC().Format(time.RFC3339Nano),
		t.CloseTime.UTC().Format(time.RFC3339Nano),
	})
}

func (c *CSV) Close() error {
	c.dec.Flush()
	c.trades.Flush()
	err := c.decFile.Close()
	if err2 := c.tradeFile.Close(); err == nil {
		err = err2
	}
	return err
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
