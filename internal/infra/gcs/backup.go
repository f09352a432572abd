package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/dvloznov/pixtracker/internal/store"
)

// Backup writes timestamped snapshots of the transaction log.
type Backup struct {
	objects ObjectStore
	prefix  string
}

// NewBackup creates a backup writer storing snapshots under prefix/backups.
func NewBackup(objects ObjectStore, prefix string) *Backup {
	return &Backup{objects: objects, prefix: prefix}
}

// SnapshotName returns the object name for a snapshot taken at t.
func (b *Backup) SnapshotName(t time.Time) string {
	return path.Join(b.prefix, "backups", fmt.Sprintf("%s-%s.json", store.KeyTransactions, t.UTC().Format("20060102T150405.000Z")))
}

// Snapshot serializes txs in the persisted format and uploads it.
func (b *Backup) Snapshot(ctx context.Context, txs []domain.Transaction, at time.Time) (string, error) {
	raw, err := store.EncodeTransactions(txs)
	if err != nil {
		return "", fmt.Errorf("Snapshot: %w", err)
	}
	name := b.SnapshotName(at)
	if err := b.objects.Write(ctx, name, "application/json", []byte(raw)); err != nil {
		return "", fmt.Errorf("Snapshot: %w", err)
	}
	return name, nil
}

// Restore reads the snapshot stored under name. A bare file name is looked up
// in the backups folder.
func (b *Backup) Restore(ctx context.Context, name string) ([]domain.Transaction, error) {
	if !strings.Contains(name, "/") {
		name = path.Join(b.prefix, "backups", name)
	}
	data, err := b.objects.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("Restore: %w", err)
	}
	txs, skipped, err := store.DecodeTransactions(string(data))
	if err != nil {
		return nil, fmt.Errorf("Restore: %s: %w", name, err)
	}
	log := logger.FromContext(ctx)
	for _, err := range skipped {
		log.Warn().Err(err).Str("object", name).Msg("Skipped unreadable backup record")
	}
	return txs, nil
}
