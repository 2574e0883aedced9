package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/sawpanic/regimeblend/internal/persistence"
)

const sqlitePrefix = "sqlite://"

// ParseDSN splits a storage DSN into dialect, driver name and the
// driver's own DSN. sqlite://path selects SQLite; anything else is handed
// to lib/pq.
func ParseDSN(dsn string) (Dialect, string, string) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return SQLite, "sqlite", strings.TrimPrefix(dsn, sqlitePrefix)
	}
	return Postgres, "postgres", dsn
}

// Open connects to dsn without pinging.
func Open(dsn string) (*sqlx.DB, Dialect, error) {
	dialect, driver, target := ParseDSN(dsn)
	if target == "" {
		return nil, dialect, fmt.Errorf("empty %s DSN", dialect)
	}
	db, err := sqlx.Open(driver, target)
	if err != nil {
		return nil, dialect, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// single writer
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}

// Migrate applies the schema for d.
func Migrate(ctx context.Context, db *sqlx.DB, d Dialect) error {
	if _, err := db.ExecContext(ctx, Schema(d)); err != nil {
		return fmt.Errorf("failed to apply %s schema: %w", d, err)
	}
	return nil
}

// NewRepository wires both repositories on db.
func NewRepository(db *sqlx.DB, timeout time.Duration) *persistence.Repository {
	return &persistence.Repository{
		Runs:    NewRunRepo(db, timeout),
		Regimes: NewRegimeRepo(db, timeout),
	}
}
