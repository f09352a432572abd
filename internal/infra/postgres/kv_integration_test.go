//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pixtracker_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestKV_Integration(t *testing.T) {
	ctx := context.Background()
	kv, err := Connect(ctx, Config{URL: startPostgres(t)})
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.Get(ctx, store.KeyTransactions)
	assert.ErrorIs(t, err, store.ErrNotFound)

	txs := store.NewTransactionStore(kv, zerolog.Nop())
	require.NoError(t, kv.Set(ctx, store.KeyTransactions, `[{"id":"a","type":"sent","amount":12,"date":"2025-08-29T22:05:00.000Z","contact":"X"}]`))

	loaded := txs.Load(ctx)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)

	require.NoError(t, txs.Clear(ctx))
	assert.Empty(t, txs.Load(ctx))
}
