package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/pixtracker/internal/jobs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(store jobs.JobStore) *Queue {
	return NewQueue(Options{BufferSize: 10, Workers: 2, Backoff: time.Millisecond}, store, zerolog.Nop())
}

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.SyncJob {
	t.Helper()
	var got *jobs.SyncJob
	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = job
		return job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := newTestQueue(store)
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (string, error) {
		return "exported 3", nil
	}))

	job := &jobs.SyncJob{Type: jobs.JobTypeExportBigQuery, Trigger: "ingest"}
	require.NoError(t, q.Publish(ctx, job))
	assert.NotEmpty(t, job.JobID)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "exported 3", got.Result)
	assert.Equal(t, jobs.DefaultMaxRetries, got.MaxRetries)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := newTestQueue(store)
	defer q.Close()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("warehouse unavailable")
		}
		return "ok", nil
	}))

	job := &jobs.SyncJob{Type: jobs.JobTypeBackupGCS}
	require.NoError(t, q.Publish(ctx, job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, got.RetryCount)
	assert.Empty(t, got.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := newTestQueue(store)
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (string, error) {
		return "", errors.New("notion down")
	}))

	job := &jobs.SyncJob{Type: jobs.JobTypeSyncNotion, MaxRetries: 1}
	require.NoError(t, q.Publish(ctx, job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "notion down", got.Error)
}

func TestQueue_Closed(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(nil)
	require.NoError(t, q.Stop(ctx))
	require.NoError(t, q.Stop(ctx))

	assert.ErrorIs(t, q.Publish(ctx, &jobs.SyncJob{Type: jobs.JobTypeBackupGCS}), ErrQueueClosed)
	assert.ErrorIs(t, q.Start(ctx, nil), ErrQueueClosed)
}

func TestQueue_Coalesce(t *testing.T) {
	tests := []struct {
		name     string
		coalesce bool
		types    []jobs.JobType
		wantJobs int
	}{
		{"same type folds into queued job", true, []jobs.JobType{jobs.JobTypeBackupGCS, jobs.JobTypeBackupGCS, jobs.JobTypeBackupGCS}, 1},
		{"different types stay separate", true, []jobs.JobType{jobs.JobTypeBackupGCS, jobs.JobTypeSyncNotion}, 2},
		{"disabled", false, []jobs.JobType{jobs.JobTypeBackupGCS, jobs.JobTypeBackupGCS}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore()
			q := NewQueue(Options{BufferSize: 10, Workers: 1, Backoff: time.Millisecond, Coalesce: tt.coalesce}, store, zerolog.Nop())
			defer q.Close()

			// Nothing consumes yet, so every job is still queued.
			var published []*jobs.SyncJob
			for _, typ := range tt.types {
				job := &jobs.SyncJob{Type: typ, Trigger: "ingest"}
				require.NoError(t, q.Publish(ctx, job))
				published = append(published, job)
			}

			queued, err := store.ListJobs(ctx, jobs.JobFilter{})
			require.NoError(t, err)
			assert.Len(t, queued, tt.wantJobs)

			var calls atomic.Int32
			require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (string, error) {
				calls.Add(1)
				return "ok", nil
			}))
			for _, job := range published {
				waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
			}
			assert.Equal(t, int32(tt.wantJobs), calls.Load())
		})
	}
}

func TestQueue_CoalesceAfterStart(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(Options{BufferSize: 10, Workers: 1, Coalesce: true}, store, zerolog.Nop())
	defer q.Close()

	release := make(chan struct{})
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SyncJob) (string, error) {
		<-release
		return "ok", nil
	}))

	first := &jobs.SyncJob{Type: jobs.JobTypeExportBigQuery}
	require.NoError(t, q.Publish(ctx, first))
	waitForStatus(t, store, first.JobID, jobs.JobStatusRunning)

	// A running job does not absorb new changes.
	second := &jobs.SyncJob{Type: jobs.JobTypeExportBigQuery}
	require.NoError(t, q.Publish(ctx, second))
	assert.NotEqual(t, first.JobID, second.JobID)

	close(release)
	waitForStatus(t, store, first.JobID, jobs.JobStatusCompleted)
	waitForStatus(t, store, second.JobID, jobs.JobStatusCompleted)
}

func TestJobStatus_Done(t *testing.T) {
	assert.True(t, jobs.JobStatusCompleted.Done())
	assert.True(t, jobs.JobStatusFailed.Done())
	assert.False(t, jobs.JobStatusPending.Done())
	assert.False(t, jobs.JobStatusRunning.Done())
	assert.False(t, jobs.JobStatusRetrying.Done())
}
