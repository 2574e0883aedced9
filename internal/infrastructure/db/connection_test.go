package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/persistence"
	"github.com/sawpanic/regimeblend/internal/persistence/sqlstore"
)

func TestDisabledManager(t *testing.T) {
	m, err := NewManager(context.Background(), config.StorageConfig{})
	require.NoError(t, err)

	assert.False(t, m.IsEnabled())
	assert.Nil(t, m.Repository())
	assert.NoError(t, m.Health().Ping(context.Background()))

	h := m.Health().Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Contains(t, h.Errors, "run store disabled")
	assert.NoError(t, m.Close())
}

func TestManagerWithMock(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectPing()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPing()

	db := sqlx.NewDb(mockDB, "postgres")
	m, err := NewManagerWithDB(context.Background(), db, sqlstore.Postgres, time.Second)
	require.NoError(t, err)

	assert.True(t, m.IsEnabled())
	assert.Equal(t, sqlstore.Postgres, m.Dialect())
	require.NotNil(t, m.Repository())

	h := m.Health().Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Empty(t, h.Errors)
	assert.Contains(t, h.ConnectionPool, "open")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "runs.db")
	m, err := NewManager(context.Background(), config.StorageConfig{DSN: dsn, MaxOpenConns: 1, QueryTimeoutSec: 5})
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, sqlstore.SQLite, m.Dialect())

	ctx := context.Background()
	repo := m.Repository()
	sharpe := 0.8
	run := persistence.Run{
		ID:          "run-1",
		Instrument:  "HG",
		Sleeves:     "carry,trend",
		StartedAt:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2024, 5, 1, 9, 0, 3, 0, time.UTC),
		FirstDate:   time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		LastDate:    time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		Days:        1000,
		FinalEquity: 1.31,
		Sharpe:      &sharpe,
		Summary:     `{"run_id":"run-1"}`,
	}
	require.NoError(t, repo.Runs.SaveRun(ctx, run))

	lev := 1.5
	require.NoError(t, repo.Runs.SaveDaily(ctx, []persistence.DailyRecord{
		{RunID: "run-1", Date: run.FirstDate, MacroState: "NORMAL", Leverage: &lev, Allocation: `{"carry":0.5,"trend":0.5}`},
		{RunID: "run-1", Date: run.FirstDate.AddDate(0, 0, 1), MacroState: "CHOP", Allocation: `{"carry":0.7,"trend":0.3}`},
	}))

	got, err := repo.Runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "HG", got.Instrument)
	require.NotNil(t, got.Sharpe)
	assert.InDelta(t, 0.8, *got.Sharpe, 1e-12)
	assert.Nil(t, got.MaxDrawdown)

	runs, err := repo.Runs.ListRuns(ctx, "HG", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	daily, err := repo.Runs.ListDaily(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "NORMAL", daily[0].MacroState)
	require.NotNil(t, daily[0].Leverage)
	assert.Nil(t, daily[1].Leverage)

	require.NoError(t, repo.Regimes.Upsert(ctx, persistence.RegimeSnapshot{
		Instrument: "HG",
		Date:       run.LastDate,
		RunID:      "run-1",
		MacroState: "CRISIS",
		Allocation: map[string]float64{"Cash": 1},
	}))
	snap, err := repo.Regimes.Latest(ctx, "HG")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "CRISIS", snap.MacroState)
	assert.InDelta(t, 1.0, snap.Allocation["Cash"], 1e-12)

	missing, err := repo.Regimes.Latest(ctx, "CL")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
