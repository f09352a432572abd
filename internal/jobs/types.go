package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// JobType names a downstream sink.
type JobType string

const (
	JobTypeExportBigQuery JobType = "export_bigquery"
	JobTypeBackupGCS      JobType = "backup_gcs"
	JobTypeSyncNotion     JobType = "sync_notion"
)

// JobStatus is the lifecycle state of a SyncJob.
//
//	pending -> running -> completed
//	                   -> retrying -> running ...
//	                   -> failed (retries exhausted)
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// Done reports whether no further attempt will be made.
func (s JobStatus) Done() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DefaultMaxRetries is used when a published job sets no MaxRetries.
const DefaultMaxRetries = 3

// SyncJob is one downstream side effect of a transaction log change. Jobs
// carry no transactions; handlers read the log when they run.
type SyncJob struct {
	JobID   string    `json:"job_id"`
	Type    JobType   `json:"type"`
	Trigger string    `json:"trigger,omitempty"` // "ingest", "delete", "schedule"...
	Status  JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is the handler's summary of a successful run, e.g. a backup
	// object name. Error holds the last failure.
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, job *SyncJob) error
	Close() error
}

// Consumer runs a JobHandler for every published job. Stop waits for
// in-flight handlers.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
}

// JobHandler runs one job and returns a short result summary. A returned
// error makes the job eligible for retry.
type JobHandler func(ctx context.Context, job *SyncJob) (string, error)

// JobStore keeps job state so it can be queried over the API.
type JobStore interface {
	SaveJob(ctx context.Context, job *SyncJob) error
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)
	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs. Zero fields match everything.
type JobFilter struct {
	Type   JobType
	Status JobStatus
	Limit  int
	Offset int
}
