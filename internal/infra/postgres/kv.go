package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds database configuration
type Config struct {
	URL             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// KV stores key-value pairs in a Postgres table.
type KV struct {
	pool *pgxpool.Pool
}

// Connect opens a pool, verifies it and ensures the schema exists.
func Connect(ctx context.Context, cfg Config) (*KV, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("Connect: parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	} else {
		config.MaxConns = 4
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		config.MaxConnLifetime = time.Hour
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("Connect: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Connect: ping: %w", err)
	}

	kv := &KV{pool: pool}
	if err := kv.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return kv, nil
}

// NewKV wraps an existing pool. The schema must already exist.
func NewKV(pool *pgxpool.Pool) *KV {
	return &KV{pool: pool}
}

func (k *KV) migrate(ctx context.Context) error {
	_, err := k.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("migrate: create kv_store: %w", err)
	}
	return nil
}

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := k.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("Get %s: %w", key, err)
	}
	return value, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	_, err := k.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("Set %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if _, err := k.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("Delete %s: %w", key, err)
	}
	return nil
}

// Close closes the pool.
func (k *KV) Close() {
	k.pool.Close()
}

var _ store.KV = (*KV)(nil)
