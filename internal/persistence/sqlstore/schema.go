package sqlstore

// Dialect selects the SQL flavour of a store.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    instrument      TEXT NOT NULL,
    sleeves         TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ NOT NULL,
    first_date      DATE,
    last_date       DATE,
    days            INTEGER NOT NULL DEFAULT 0,
    final_equity    DOUBLE PRECISION NOT NULL DEFAULT 1,
    sharpe          DOUBLE PRECISION,
    max_drawdown    DOUBLE PRECISION,
    regime_switches INTEGER NOT NULL DEFAULT 0,
    degeneracies    INTEGER NOT NULL DEFAULT 0,
    warnings        INTEGER NOT NULL DEFAULT 0,
    summary         JSONB
);

CREATE TABLE IF NOT EXISTS daily_records (
    run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    date          DATE NOT NULL,
    vol_state     TEXT NOT NULL,
    crisis_regime TEXT NOT NULL,
    chop_regime   TEXT NOT NULL,
    macro_state   TEXT NOT NULL,
    composite     DOUBLE PRECISION,
    realized_vol  DOUBLE PRECISION,
    leverage      DOUBLE PRECISION,
    position      DOUBLE PRECISION,
    pnl_gross     DOUBLE PRECISION,
    pnl_net       DOUBLE PRECISION,
    equity        DOUBLE PRECISION,
    allocation    JSONB,
    PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS regime_snapshots (
    instrument      TEXT PRIMARY KEY,
    date            DATE NOT NULL,
    run_id          TEXT NOT NULL,
    macro_state     TEXT NOT NULL,
    vol_state       TEXT NOT NULL,
    crisis_regime   TEXT NOT NULL,
    chop_regime     TEXT NOT NULL,
    composite       DOUBLE PRECISION,
    leverage        DOUBLE PRECISION NOT NULL,
    stop_multiplier DOUBLE PRECISION NOT NULL,
    allocation      JSONB,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_runs_instrument ON runs(instrument, started_at DESC);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    instrument      TEXT NOT NULL,
    sleeves         TEXT NOT NULL,
    started_at      DATETIME NOT NULL,
    finished_at     DATETIME NOT NULL,
    first_date      DATETIME,
    last_date       DATETIME,
    days            INTEGER NOT NULL DEFAULT 0,
    final_equity    REAL NOT NULL DEFAULT 1,
    sharpe          REAL,
    max_drawdown    REAL,
    regime_switches INTEGER NOT NULL DEFAULT 0,
    degeneracies    INTEGER NOT NULL DEFAULT 0,
    warnings        INTEGER NOT NULL DEFAULT 0,
    summary         TEXT
);

CREATE TABLE IF NOT EXISTS daily_records (
    run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    date          DATETIME NOT NULL,
    vol_state     TEXT NOT NULL,
    crisis_regime TEXT NOT NULL,
    chop_regime   TEXT NOT NULL,
    macro_state   TEXT NOT NULL,
    composite     REAL,
    realized_vol  REAL,
    leverage      REAL,
    position      REAL,
    pnl_gross     REAL,
    pnl_net       REAL,
    equity        REAL,
    allocation    TEXT,
    PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS regime_snapshots (
    instrument      TEXT PRIMARY KEY,
    date            DATETIME NOT NULL,
    run_id          TEXT NOT NULL,
    macro_state     TEXT NOT NULL,
    vol_state       TEXT NOT NULL,
    crisis_regime   TEXT NOT NULL,
    chop_regime     TEXT NOT NULL,
    composite       REAL,
    leverage        REAL NOT NULL,
    stop_multiplier REAL NOT NULL,
    allocation      TEXT,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_instrument ON runs(instrument, started_at DESC);
`

// Schema returns the DDL for d.
func Schema(d Dialect) string {
	if d == SQLite {
		return sqliteSchema
	}
	return postgresSchema
}
