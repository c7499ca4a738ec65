package journal

// Schema creates the decision and trade tables. Times are stored RFC3339
// so rows stay readable with the sqlite3 shell.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	decision_id      TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	policy_id        TEXT,
	regime           TEXT,
	recommended_size REAL,
	max_allowed_size REAL,
	risk_amount      REAL,
	execution_style  TEXT,
	canary_weight    REAL,
	outcome          TEXT,
	alerts           TEXT,
	reasoning        TEXT,
	decided_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_symbol_time
	ON decisions (symbol, decided_at);

CREATE TABLE IF NOT EXISTS trades (
	trade_id    TEXT PRIMARY KEY,
	decision_id TEXT,
	symbol      TEXT NOT NULL,
	policy_id   TEXT,
	size        REAL,
	entry_price REAL,
	exit_price  REAL,
	realized_pl REAL,
	return      REAL,
	open_time   TEXT,
	close_time  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_time
	ON trades (symbol, close_time);
`
