package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite journals decisions and trades into a single sqlite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the journal database at path and
// ensures the schema exists.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := s.db.Exec(`INSERT INTO decisions
		(decision_id, symbol, policy_id, regime, recommended_size,
		 max_allowed_size, risk_amount, execution_style, canary_weight,
		 outcome, alerts, reasoning, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.Symbol, d.PolicyID, d.Regime, d.RecommendedSize,
		d.MaxAllowedSize, d.RiskAmount, d.ExecutionStyle, d.CanaryWeight,
		d.Outcome, d.Alerts, d.Reasoning, d.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record decision %s: %w", d.DecisionID, err)
	}
	return nil
}

func (s *SQLite) RecordTrade(t TradeRecord) error {
	_, err := s.db.Exec(`INSERT INTO trades
		(trade_id, decision_id, symbol, policy_id, size, entry_price,
		 exit_price, realized_pl, return, open_time, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.DecisionID, t.Symbol, t.PolicyID, t.Size,
		t.EntryPrice, t.ExitPrice, t.RealizedPL, t.Return,
		t.OpenTime.UTC().Format(time.RFC3339Nano),
		t.CloseTime.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.TradeID, err)
	}
	return nil
}

// GetDecision fetches a single decision by id.
func (s *SQLite) GetDecision(id string) (DecisionRecord, error) {
	row := s.db.QueryRow(`SELECT decision_id, symbol, policy_id, regime,
		recommended_size, max_allowed_size, risk_amount, execution_style,
		canary_weight, outcome, alerts, reasoning, decided_at
		FROM decisions WHERE decision_id = ?`, id)
	return scanDecision(row)
}

// ListDecisionsBetween returns decisions for symbol decided in [from, to),
// oldest first. An empty symbol matches all symbols.
func (s *SQLite) ListDecisionsBetween(symbol string, from, to time.Time) ([]DecisionRecord, error) {
	q := `SELECT decision_id, symbol, policy_id, regime, recommended_size,
		max_allowed_size, risk_amount, execution_style, canary_weight,
		outcome, alerts, reasoning, decided_at
		FROM decisions WHERE decided_at >= ? AND decided_at < ?`
	args := []any{from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano)}
	if symbol != "" {
		q += ` AND symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY decided_at ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListTradesBetween returns trades for symbol closed in [from, to),
// oldest first. An empty symbol matches all symbols.
func (s *SQLite) ListTradesBetween(symbol string, from, to time.Time) ([]TradeRecord, error) {
	q := `SELECT trade_id, decision_id, symbol, policy_id, size,
		entry_price, exit_price, realized_pl, return, open_time, close_time
		FROM trades WHERE close_time >= ? AND close_time < ?`
	args := []any{from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano)}
	if symbol != "" {
		q += ` AND symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY close_time ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var opened, closed string
		if err := rows.Scan(&t.TradeID, &t.DecisionID, &t.Symbol, &t.PolicyID,
			&t.Size, &t.EntryPrice, &t.ExitPrice, &t.RealizedPL, &t.Return,
			&opened, &closed); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.OpenTime, _ = time.Parse(time.RFC3339Nano, opened)
		t.CloseTime, _ = time.Parse(time.RFC3339Nano, closed)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(r rowScanner) (DecisionRecord, error) {
	var d DecisionRecord
	var decided string
	err := r.Scan(&d.DecisionID, &d.Symbol, &d.PolicyID, &d.Regime,
		&d.RecommendedSize, &d.MaxAllowedSize, &d.RiskAmount,
		&d.ExecutionStyle, &d.CanaryWeight, &d.Outcome, &d.Alerts,
		&d.Reasoning, &decided)
	if err != nil {
		return d, fmt.Errorf("scan decision: %w", err)
	}
	d.Time, _ = time.Parse(time.RFC3339Nano, decided)
	return d, nil
}
