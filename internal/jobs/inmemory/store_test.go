package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/pixtracker/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.SyncJob{}))

	job := &jobs.SyncJob{JobID: "j1", Type: jobs.JobTypeBackupGCS, Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status, "store keeps its own copy")

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	seed := []*jobs.SyncJob{
		{JobID: "a", Type: jobs.JobTypeExportBigQuery, Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", Type: jobs.JobTypeBackupGCS, Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Minute)},
		{JobID: "c", Type: jobs.JobTypeExportBigQuery, Status: jobs.JobStatusPending, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range seed {
		require.NoError(t, s.SaveJob(ctx, j))
	}

	ids := func(list []*jobs.SyncJob) []string {
		out := []string{}
		for _, j := range list {
			out = append(out, j.JobID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by type", jobs.JobFilter{Type: jobs.JobTypeExportBigQuery}, []string{"c", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 1, Limit: 1}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveJob(ctx, &jobs.SyncJob{JobID: "j1", Status: jobs.JobStatusRunning}))

	require.NoError(t, s.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "boom"))
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}

func TestStore_Retention(t *testing.T) {
	ctx := context.Background()
	s := NewStoreWithRetention(2)
	base := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	seed := []*jobs.SyncJob{
		{JobID: "old-done", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "old-pending", Status: jobs.JobStatusPending, CreatedAt: base.Add(time.Minute)},
		{JobID: "new-done", Status: jobs.JobStatusFailed, CreatedAt: base.Add(2 * time.Minute)},
		{JobID: "newest", Status: jobs.JobStatusRunning, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, j := range seed {
		require.NoError(t, s.SaveJob(ctx, j))
	}

	list, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	var ids []string
	for _, j := range list {
		ids = append(ids, j.JobID)
	}
	// Unfinished jobs survive pruning even past the retention.
	assert.Equal(t, []string{"newest", "old-pending"}, ids)

	// Updating an existing job does not prune.
	require.NoError(t, s.SaveJob(ctx, &jobs.SyncJob{JobID: "newest", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(3 * time.Minute)}))
	_, err = s.GetJob(ctx, "old-pending")
	assert.NoError(t, err)
}
