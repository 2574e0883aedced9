// Package db opens the run store named by the storage configuration and
// hands out its repositories.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/persistence"
	"github.com/sawpanic/regimeblend/internal/persistence/sqlstore"
)

// Manager owns the store connection and its repositories. A manager
// built from an empty DSN is disabled and returns a nil Repository.
type Manager struct {
	db      *sqlx.DB
	dialect sqlstore.Dialect
	repos   *persistence.Repository
	health  *healthChecker
}

// NewManager opens, pings and migrates the store.
func NewManager(ctx context.Context, cfg config.StorageConfig) (*Manager, error) {
	if cfg.DSN == "" {
		return &Manager{health: &healthChecker{enabled: false}}, nil
	}

	db, dialect, err := sqlstore.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if dialect == sqlstore.Postgres {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	m, err := NewManagerWithDB(ctx, db, dialect, time.Duration(cfg.QueryTimeoutSec)*time.Second)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewManagerWithDB wraps an open connection.
func NewManagerWithDB(ctx context.Context, db *sqlx.DB, dialect sqlstore.Dialect, timeout time.Duration) (*Manager, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping %s store: %w", dialect, err)
	}
	if err := sqlstore.Migrate(ctx, db, dialect); err != nil {
		return nil, err
	}

	log.Debug().Str("dialect", string(dialect)).Msg("run store ready")
	return &Manager{
		db:      db,
		dialect: dialect,
		repos:   sqlstore.NewRepository(db, timeout),
		health:  &healthChecker{enabled: true, db: db, timeout: timeout},
	}, nil
}

// Repository returns the repositories, or nil when disabled.
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// Health returns the store health probe.
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// Dialect reports the connected SQL flavour.
func (m *Manager) Dialect() sqlstore.Dialect {
	return m.dialect
}

// IsEnabled reports whether a store is connected.
func (m *Manager) IsEnabled() bool {
	return m.db != nil
}

// Close closes the connection.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	if !h.enabled {
		return persistence.HealthCheck{
			Healthy:        true,
			Errors:         []string{"run store disabled"},
			ConnectionPool: map[string]int{"status": 0},
			LastCheck:      time.Now(),
		}
	}

	start := time.Now()
	var errs []string
	healthy := true
	if err := h.Ping(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open":      stats.MaxOpenConnections,
			"open":          stats.OpenConnections,
			"in_use":        stats.InUse,
			"idle":          stats.Idle,
			"wait_count":    int(stats.WaitCount),
			"wait_duration": int(stats.WaitDuration.Milliseconds()),
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}
