package inmemory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dvloznov/pixtracker/internal/jobs"
)

// DefaultRetention bounds how many jobs a Store keeps.
const DefaultRetention = 1000

// Store is a JobStore held in memory. Once it holds more than its retention,
// the oldest finished jobs are dropped; unfinished jobs are always kept.
type Store struct {
	mu        sync.RWMutex
	byID      map[string]*jobs.SyncJob
	retention int
}

// NewStore returns a Store with DefaultRetention.
func NewStore() *Store {
	return NewStoreWithRetention(DefaultRetention)
}

// NewStoreWithRetention returns a Store keeping at most n finished jobs.
// n <= 0 disables pruning.
func NewStoreWithRetention(n int) *Store {
	return &Store{byID: make(map[string]*jobs.SyncJob), retention: n}
}

// SaveJob stores a copy of job.
func (s *Store) SaveJob(ctx context.Context, job *jobs.SyncJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}
	stored := *job

	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.byID[job.JobID]
	s.byID[job.JobID] = &stored
	if !existed {
		s.prune()
	}
	return nil
}

// prune drops the oldest finished jobs beyond the retention. Caller holds mu.
func (s *Store) prune() {
	if s.retention <= 0 || len(s.byID) <= s.retention {
		return
	}
	var finished []*jobs.SyncJob
	for _, job := range s.byID {
		if job.Status.Done() {
			finished = append(finished, job)
		}
	}
	slices.SortFunc(finished, newestFirst)
	for len(s.byID) > s.retention && len(finished) > 0 {
		oldest := finished[len(finished)-1]
		finished = finished[:len(finished)-1]
		delete(s.byID, oldest.JobID)
	}
}

// GetJob returns a copy of the job with jobID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	s.mu.RLock()
	job, ok := s.byID[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("GetJob: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	out := *job
	return &out, nil
}

// ListJobs returns copies of the matching jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	s.mu.RLock()
	out := make([]*jobs.SyncJob, 0, len(s.byID))
	for _, job := range s.byID {
		if (filter.Type == "" || job.Type == filter.Type) && (filter.Status == "" || job.Status == filter.Status) {
			c := *job
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, newestFirst)

	out = out[min(max(filter.Offset, 0), len(out)):]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateJobStatus sets the status, and the error message when non-empty.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

func newestFirst(a, b *jobs.SyncJob) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.JobID, b.JobID)
}

var _ jobs.JobStore = (*Store)(nil)
