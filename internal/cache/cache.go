// Package cache publishes the latest regime snapshot per instrument for
// consumers that should not query the run store.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sawpanic/regimeblend/internal/config"
	"github.com/sawpanic/regimeblend/internal/persistence"
)

// SnapshotCache holds one snapshot per instrument.
type SnapshotCache interface {
	Set(ctx context.Context, snap persistence.RegimeSnapshot) error

	// Latest returns nil, nil on a miss.
	Latest(ctx context.Context, instrument string) (*persistence.RegimeSnapshot, error)

	Close() error
}

// New builds the configured backend.
func New(ctx context.Context, cfg config.CacheConfig) (SnapshotCache, error) {
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(ttl), nil
	case "redis":
		return NewRedis(ctx, cfg.Addr, cfg.Password, cfg.DB, ttl)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type memoryEntry struct {
	snap    persistence.RegimeSnapshot
	expires time.Time
}

// Memory is an in-process SnapshotCache with expiry.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemory returns an empty cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Set(_ context.Context, snap persistence.RegimeSnapshot) error {
	if snap.Instrument == "" {
		return fmt.Errorf("snapshot instrument is required")
	}
	snap.Allocation = copyAlloc(snap.Allocation)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[snap.Instrument] = memoryEntry{snap: snap, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Latest(_ context.Context, instrument string) (*persistence.RegimeSnapshot, error) {
	m.mu.RLock()
	e, ok := m.entries[instrument]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, instrument)
		m.mu.Unlock()
		return nil, nil
	}
	snap := e.snap
	snap.Allocation = copyAlloc(e.snap.Allocation)
	return &snap, nil
}

func (m *Memory) Close() error { return nil }

func copyAlloc(a map[string]float64) map[string]float64 {
	if a == nil {
		return nil
	}
	out := make(map[string]float64, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
