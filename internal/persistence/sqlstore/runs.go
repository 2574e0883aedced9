// Package sqlstore implements the persistence repositories on sqlx for
// Postgres (lib/pq) and SQLite (modernc). Queries are written with ?
// placeholders and rebound for the connection's driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/regimeblend/internal/persistence"
)

type runRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunRepo returns a RunRepo bound to db.
func NewRunRepo(db *sqlx.DB, timeout time.Duration) persistence.RunRepo {
	return &runRepo{db: db, timeout: timeout}
}

const runColumns = `id, instrument, sleeves, started_at, finished_at, first_date, last_date, days,
		final_equity, sharpe, max_drawdown, regime_switches, degeneracies, warnings, summary`

func (r *runRepo) SaveRun(ctx context.Context, run persistence.Run) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	query := r.db.Rebind(`
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			last_date = EXCLUDED.last_date,
			days = EXCLUDED.days,
			final_equity = EXCLUDED.final_equity,
			sharpe = EXCLUDED.sharpe,
			max_drawdown = EXCLUDED.max_drawdown,
			regime_switches = EXCLUDED.regime_switches,
			degeneracies = EXCLUDED.degeneracies,
			warnings = EXCLUDED.warnings,
			summary = EXCLUDED.summary`)

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Instrument, run.Sleeves, run.StartedAt, run.FinishedAt,
		nullTime(run.FirstDate), nullTime(run.LastDate), run.Days,
		run.FinalEquity, run.Sharpe, run.MaxDrawdown,
		run.RegimeSwitches, run.Degeneracies, run.Warnings, nullString(run.Summary))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (r *runRepo) SaveDaily(ctx context.Context, records []persistence.DailyRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin daily insert: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO daily_records
		(run_id, date, vol_state, crisis_regime, chop_regime, macro_state, composite,
		 realized_vol, leverage, position, pnl_gross, pnl_net, equity, allocation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, date) DO NOTHING`)

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			rec.RunID, rec.Date, rec.VolState, rec.CrisisRegime, rec.ChopRegime, rec.MacroState,
			rec.Composite, rec.RealizedVol, rec.Leverage, rec.Position,
			rec.Gross, rec.Net, rec.Equity, nullString(rec.Allocation)); err != nil {
			return fmt.Errorf("failed to insert daily record %s/%s: %w", rec.RunID, rec.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit daily records: %w", err)
	}
	return nil
}

// runRow mirrors runs with nullable columns.
type runRow struct {
	ID             string          `db:"id"`
	Instrument     string          `db:"instrument"`
	Sleeves        string          `db:"sleeves"`
	StartedAt      time.Time       `db:"started_at"`
	FinishedAt     time.Time       `db:"finished_at"`
	FirstDate      sql.NullTime    `db:"first_date"`
	LastDate       sql.NullTime    `db:"last_date"`
	Days           int             `db:"days"`
	FinalEquity    float64         `db:"final_equity"`
	Sharpe         sql.NullFloat64 `db:"sharpe"`
	MaxDrawdown    sql.NullFloat64 `db:"max_drawdown"`
	RegimeSwitches int             `db:"regime_switches"`
	Degeneracies   int             `db:"degeneracies"`
	Warnings       int             `db:"warnings"`
	Summary        sql.NullString  `db:"summary"`
}

func (row runRow) run() persistence.Run {
	return persistence.Run{
		ID:             row.ID,
		Instrument:     row.Instrument,
		Sleeves:        row.Sleeves,
		StartedAt:      row.StartedAt,
		FinishedAt:     row.FinishedAt,
		FirstDate:      row.FirstDate.Time,
		LastDate:       row.LastDate.Time,
		Days:           row.Days,
		FinalEquity:    row.FinalEquity,
		Sharpe:         floatPtr(row.Sharpe),
		MaxDrawdown:    floatPtr(row.MaxDrawdown),
		RegimeSwitches: row.RegimeSwitches,
		Degeneracies:   row.Degeneracies,
		Warnings:       row.Warnings,
		Summary:        row.Summary.String,
	}
}

func (r *runRepo) GetRun(ctx context.Context, id string) (*persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run := row.run()
	return &run, nil
}

func (r *runRepo) ListRuns(ctx context.Context, instrument string, limit int) ([]persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if instrument != "" {
		query += ` WHERE instrument = ?`
		args = append(args, instrument)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	out := make([]persistence.Run, len(rows))
	for i, row := range rows {
		out[i] = row.run()
	}
	return out, nil
}

// dailyRow mirrors daily_records with nullable columns.
type dailyRow struct {
	RunID        string          `db:"run_id"`
	Date         time.Time       `db:"date"`
	VolState     string          `db:"vol_state"`
	CrisisRegime string          `db:"crisis_regime"`
	ChopRegime   string          `db:"chop_regime"`
	MacroState   string          `db:"macro_state"`
	Composite    sql.NullFloat64 `db:"composite"`
	RealizedVol  sql.NullFloat64 `db:"realized_vol"`
	Leverage     sql.NullFloat64 `db:"leverage"`
	Position     sql.NullFloat64 `db:"position"`
	Gross        sql.NullFloat64 `db:"pnl_gross"`
	Net          sql.NullFloat64 `db:"pnl_net"`
	Equity       sql.NullFloat64 `db:"equity"`
	Allocation   sql.NullString  `db:"allocation"`
}

func (r *runRepo) ListDaily(ctx context.Context, runID string) ([]persistence.DailyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT run_id, date, vol_state, crisis_regime, chop_regime, macro_state, composite,
		       realized_vol, leverage, position, pnl_gross, pnl_net, equity, allocation
		FROM daily_records
		WHERE run_id = ?
		ORDER BY date ASC`)

	var rows []dailyRow
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list daily records for %s: %w", runID, err)
	}
	out := make([]persistence.DailyRecord, len(rows))
	for i, row := range rows {
		out[i] = persistence.DailyRecord{
			RunID:        row.RunID,
			Date:         row.Date,
			VolState:     row.VolState,
			CrisisRegime: row.CrisisRegime,
			ChopRegime:   row.ChopRegime,
			MacroState:   row.MacroState,
			Composite:    floatPtr(row.Composite),
			RealizedVol:  floatPtr(row.RealizedVol),
			Leverage:     floatPtr(row.Leverage),
			Position:     floatPtr(row.Position),
			Gross:        floatPtr(row.Gross),
			Net:          floatPtr(row.Net),
			Equity:       floatPtr(row.Equity),
			Allocation:   row.Allocation.String,
		}
	}
	return out, nil
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
