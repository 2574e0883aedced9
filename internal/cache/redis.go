package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sawpanic/regimeblend/internal/persistence"
)

const (
	keyPrefix = "regimeblend:regime:"
	opTimeout = 500 * time.Millisecond
)

// Redis stores snapshots as JSON under regimeblend:regime:<instrument>.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisWithClient(rdb, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Key returns the redis key of instrument.
func Key(instrument string) string { return keyPrefix + instrument }

func (r *Redis) Set(ctx context.Context, snap persistence.RegimeSnapshot) error {
	if snap.Instrument == "" {
		return fmt.Errorf("snapshot instrument is required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := r.client.Set(ctx, Key(snap.Instrument), string(payload), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Latest(ctx context.Context, instrument string) (*persistence.RegimeSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, Key(instrument)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap persistence.RegimeSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", instrument, err)
	}
	return &snap, nil
}

func (r *Redis) Close() error { return r.client.Close() }
