// Package backend opens the key-value store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/dvloznov/pixtracker/internal/config"
	"github.com/dvloznov/pixtracker/internal/infra/gcs"
	"github.com/dvloznov/pixtracker/internal/infra/postgres"
	"github.com/dvloznov/pixtracker/internal/infra/redis"
	"github.com/dvloznov/pixtracker/internal/infra/sqlite"
	"github.com/dvloznov/pixtracker/internal/store"
)

// OpenKV opens cfg.StoreBackend. The returned func releases its resources.
func OpenKV(ctx context.Context, cfg *config.Config) (store.KV, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		kv, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenKV: %w", err)
		}
		return kv, func() { kv.Close() }, nil

	case config.BackendPostgres:
		kv, err := postgres.Connect(ctx, postgres.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("OpenKV: %w", err)
		}
		return kv, kv.Close, nil

	case config.BackendRedis:
		kv, err := redis.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenKV: %w", err)
		}
		return kv, func() { kv.Close() }, nil

	case config.BackendGCS:
		bucket, err := gcs.NewBucket(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenKV: %w", err)
		}
		return gcs.NewKV(bucket, cfg.GCSPrefix), func() { bucket.Close() }, nil

	case config.BackendMemory:
		return store.NewMemoryKV(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("OpenKV: unsupported backend %q", cfg.StoreBackend)
	}
}
