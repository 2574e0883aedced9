// Package persistence defines the run store: completed runs, their daily
// records and the latest regime snapshot per instrument.
package persistence

import (
	"context"
	"time"
)

// Run is one completed backtest.
type Run struct {
	ID             string    `json:"id" db:"id"`
	Instrument     string    `json:"instrument" db:"instrument"`
	Sleeves        string    `json:"sleeves" db:"sleeves"` // comma separated
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	FinishedAt     time.Time `json:"finished_at" db:"finished_at"`
	FirstDate      time.Time `json:"first_date" db:"first_date"`
	LastDate       time.Time `json:"last_date" db:"last_date"`
	Days           int       `json:"days" db:"days"`
	FinalEquity    float64   `json:"final_equity" db:"final_equity"`
	Sharpe         *float64  `json:"sharpe,omitempty" db:"sharpe"`
	MaxDrawdown    *float64  `json:"max_drawdown,omitempty" db:"max_drawdown"`
	RegimeSwitches int       `json:"regime_switches" db:"regime_switches"`
	Degeneracies   int       `json:"degeneracies" db:"degeneracies"`
	Warnings       int       `json:"warnings" db:"warnings"`
	Summary        string    `json:"summary" db:"summary"` // summary.json document
}

// DailyRecord is the persisted subset of one day of a run. Undefined
// values are stored as NULL.
type DailyRecord struct {
	RunID        string    `json:"run_id" db:"run_id"`
	Date         time.Time `json:"date" db:"date"`
	VolState     string    `json:"vol_state" db:"vol_state"`
	CrisisRegime string    `json:"crisis_regime" db:"crisis_regime"`
	ChopRegime   string    `json:"chop_regime" db:"chop_regime"`
	MacroState   string    `json:"macro_state" db:"macro_state"`
	Composite    *float64  `json:"composite,omitempty" db:"composite"`
	RealizedVol  *float64  `json:"realized_vol,omitempty" db:"realized_vol"`
	Leverage     *float64  `json:"leverage,omitempty" db:"leverage"`
	Position     *float64  `json:"position,omitempty" db:"position"`
	Gross        *float64  `json:"pnl_gross,omitempty" db:"pnl_gross"`
	Net          *float64  `json:"pnl_net,omitempty" db:"pnl_net"`
	Equity       *float64  `json:"equity,omitempty" db:"equity"`
	Allocation   string    `json:"allocation" db:"allocation"` // JSON object
}

// RegimeSnapshot is the most recent classification of an instrument.
type RegimeSnapshot struct {
	Instrument   string             `json:"instrument" db:"instrument"`
	Date         time.Time          `json:"date" db:"date"`
	RunID        string             `json:"run_id" db:"run_id"`
	MacroState   string             `json:"macro_state" db:"macro_state"`
	VolState     string             `json:"vol_state" db:"vol_state"`
	CrisisRegime string             `json:"crisis_regime" db:"crisis_regime"`
	ChopRegime   string             `json:"chop_regime" db:"chop_regime"`
	Composite    *float64           `json:"composite,omitempty" db:"composite"`
	Leverage     float64            `json:"leverage" db:"leverage"`
	StopMult     float64            `json:"stop_multiplier" db:"stop_multiplier"`
	Allocation   map[string]float64 `json:"allocation" db:"-"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}

// RunRepo stores runs and their daily records.
type RunRepo interface {
	// SaveRun inserts or replaces the run row.
	SaveRun(ctx context.Context, run Run) error

	// SaveDaily writes all records of one run atomically.
	SaveDaily(ctx context.Context, records []DailyRecord) error

	// GetRun returns nil, nil when id is unknown.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the newest runs first, optionally for one instrument.
	ListRuns(ctx context.Context, instrument string, limit int) ([]Run, error)

	// ListDaily returns a run's records in date order.
	ListDaily(ctx context.Context, runID string) ([]DailyRecord, error)
}

// RegimeRepo keeps one snapshot per instrument.
type RegimeRepo interface {
	Upsert(ctx context.Context, snap RegimeSnapshot) error

	// Latest returns nil, nil when the instrument has no snapshot.
	Latest(ctx context.Context, instrument string) (*RegimeSnapshot, error)
}

// Repository groups the repositories of one store.
type Repository struct {
	Runs    RunRepo
	Regimes RegimeRepo
}

// HealthCheck reports store status.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth probes the underlying connection.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
