package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/regimeblend/internal/persistence"
)

type regimeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRegimeRepo returns a RegimeRepo bound to db.
func NewRegimeRepo(db *sqlx.DB, timeout time.Duration) persistence.RegimeRepo {
	return &regimeRepo{db: db, timeout: timeout}
}

// Upsert replaces the instrument's snapshot unless the stored one is for a
// later date.
func (r *regimeRepo) Upsert(ctx context.Context, snap persistence.RegimeSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if snap.Instrument == "" {
		return fmt.Errorf("snapshot instrument is required")
	}
	alloc, err := json.Marshal(snap.Allocation)
	if err != nil {
		return fmt.Errorf("failed to marshal allocation: %w", err)
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO regime_snapshots
		(instrument, date, run_id, macro_state, vol_state, crisis_regime, chop_regime,
		 composite, leverage, stop_multiplier, allocation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instrument) DO UPDATE SET
			date = EXCLUDED.date,
			run_id = EXCLUDED.run_id,
			macro_state = EXCLUDED.macro_state,
			vol_state = EXCLUDED.vol_state,
			crisis_regime = EXCLUDED.crisis_regime,
			chop_regime = EXCLUDED.chop_regime,
			composite = EXCLUDED.composite,
			leverage = EXCLUDED.leverage,
			stop_multiplier = EXCLUDED.stop_multiplier,
			allocation = EXCLUDED.allocation,
			updated_at = EXCLUDED.updated_at
		WHERE regime_snapshots.date <= EXCLUDED.date`)

	_, err = r.db.ExecContext(ctx, query,
		snap.Instrument, snap.Date, snap.RunID, snap.MacroState, snap.VolState,
		snap.CrisisRegime, snap.ChopRegime, snap.Composite, snap.Leverage, snap.StopMult,
		string(alloc), snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert regime snapshot for %s: %w", snap.Instrument, err)
	}
	return nil
}

type snapshotRow struct {
	Instrument   string          `db:"instrument"`
	Date         time.Time       `db:"date"`
	RunID        string          `db:"run_id"`
	MacroState   string          `db:"macro_state"`
	VolState     string          `db:"vol_state"`
	CrisisRegime string          `db:"crisis_regime"`
	ChopRegime   string          `db:"chop_regime"`
	Composite    sql.NullFloat64 `db:"composite"`
	Leverage     float64         `db:"leverage"`
	StopMult     float64         `db:"stop_multiplier"`
	Allocation   sql.NullString  `db:"allocation"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r *regimeRepo) Latest(ctx context.Context, instrument string) (*persistence.RegimeSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`
		SELECT instrument, date, run_id, macro_state, vol_state, crisis_regime, chop_regime,
		       composite, leverage, stop_multiplier, allocation, updated_at
		FROM regime_snapshots
		WHERE instrument = ?`)

	var row snapshotRow
	err := r.db.GetContext(ctx, &row, query, instrument)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest regime for %s: %w", instrument, err)
	}

	snap := &persistence.RegimeSnapshot{
		Instrument:   row.Instrument,
		Date:         row.Date,
		RunID:        row.RunID,
		MacroState:   row.MacroState,
		VolState:     row.VolState,
		CrisisRegime: row.CrisisRegime,
		ChopRegime:   row.ChopRegime,
		Composite:    floatPtr(row.Composite),
		Leverage:     row.Leverage,
		StopMult:     row.StopMult,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.Allocation.Valid && row.Allocation.String != "" {
		if err := json.Unmarshal([]byte(row.Allocation.String), &snap.Allocation); err != nil {
			return nil, fmt.Errorf("failed to decode allocation for %s: %w", instrument, err)
		}
	}
	return snap, nil
}
