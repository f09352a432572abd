package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/pixtracker/internal/store"
	_ "modernc.org/sqlite"
)

// KV stores key-value pairs in a single SQLite table. It is the default
// device-local backend.
type KV struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*KV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: create schema: %w", err)
	}
	return &KV{db: db}, nil
}

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("Get %s: %w", key, err)
	}
	return value, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		key, value)
	if err != nil {
		return fmt.Errorf("Set %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if _, err := k.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("Delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (k *KV) Close() error {
	return k.db.Close()
}

var _ store.KV = (*KV)(nil)
