package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/pixtracker/internal/jobs"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

const (
	DefaultWorkers = 5
	// DefaultBackoff is multiplied by the retry count between attempts.
	DefaultBackoff = time.Second
)

// Options tune a Queue. Zero values select the defaults.
type Options struct {
	BufferSize int
	Workers    int
	Backoff    time.Duration

	// Coalesce folds a fresh job into a queued, not yet started job of the
	// same type. Handlers read the log when they run, so the queued job
	// already covers the newer change.
	Coalesce bool
}

// Queue publishes and consumes SyncJobs over a buffered channel. It is meant
// for a single process; jobs do not survive a restart.
type Queue struct {
	opts  Options
	store jobs.JobStore
	log   zerolog.Logger

	ch   chan *jobs.SyncJob
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	queuedMu sync.Mutex
	queued   map[jobs.JobType]string // type -> id of the job waiting in ch
}

// NewQueue creates a queue. store may be nil.
func NewQueue(opts Options, store jobs.JobStore, log zerolog.Logger) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &Queue{
		opts:   opts,
		store:  store,
		log:    logger.WithComponent(log, "jobs"),
		ch:     make(chan *jobs.SyncJob, opts.BufferSize),
		done:   make(chan struct{}),
		queued: make(map[jobs.JobType]string),
	}
}

// Publish enqueues job, filling in its id and defaults. It blocks while the
// buffer is full. A coalesced job takes the id of the queued job it joined.
func (q *Queue) Publish(ctx context.Context, job *jobs.SyncJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("Publish: %w", ErrQueueClosed)
	}

	if q.joinQueued(job) {
		q.log.Debug().Str("job_id", job.JobID).Str("job_type", string(job.Type)).Msg("Job coalesced")
		return nil
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}
	job.Status = jobs.JobStatusPending
	q.save(ctx, job)

	q.markQueued(job)
	select {
	case q.ch <- job:
		q.log.Debug().Str("job_id", job.JobID).Str("job_type", string(job.Type)).Msg("Job enqueued")
		return nil
	case <-ctx.Done():
		q.unmarkQueued(job)
		return ctx.Err()
	case <-q.done:
		q.unmarkQueued(job)
		return fmt.Errorf("Publish: %w", ErrQueueClosed)
	}
}

func (q *Queue) joinQueued(job *jobs.SyncJob) bool {
	if !q.opts.Coalesce || job.RetryCount > 0 {
		return false
	}
	q.queuedMu.Lock()
	defer q.queuedMu.Unlock()
	id, ok := q.queued[job.Type]
	if !ok {
		return false
	}
	job.JobID = id
	job.Status = jobs.JobStatusPending
	return true
}

func (q *Queue) markQueued(job *jobs.SyncJob) {
	q.queuedMu.Lock()
	q.queued[job.Type] = job.JobID
	q.queuedMu.Unlock()
}

func (q *Queue) unmarkQueued(job *jobs.SyncJob) {
	q.queuedMu.Lock()
	if q.queued[job.Type] == job.JobID {
		delete(q.queued, job.Type)
	}
	q.queuedMu.Unlock()
}

// Start launches the workers; handler runs concurrently, one job per worker.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return fmt.Errorf("Start: %w", ErrQueueClosed)
	}

	q.wg.Add(q.opts.Workers)
	for range q.opts.Workers {
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case job := <-q.ch:
					q.unmarkQueued(job)
					q.run(ctx, job, handler)
				}
			}
		}()
	}

	q.log.Info().Int("workers", q.opts.Workers).Bool("coalesce", q.opts.Coalesce).Msg("Job queue started")
	return nil
}

func (q *Queue) run(ctx context.Context, job *jobs.SyncJob, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Str("job_type", string(job.Type)).Logger()

	started := time.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	q.save(ctx, job)

	result, err := handler(logger.WithContext(ctx, log), job)

	finished := time.Now()
	job.CompletedAt = &finished
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Result = result
		job.Error = ""
	case job.RetryCount < job.MaxRetries:
		job.Status = jobs.JobStatusRetrying
		job.RetryCount++
		job.Error = err.Error()
	default:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
	}
	q.save(ctx, job)

	switch job.Status {
	case jobs.JobStatusCompleted:
		log.Info().Str("result", result).Dur("took", finished.Sub(started)).Msg("Job completed")
	case jobs.JobStatusFailed:
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("Job failed")
	case jobs.JobStatusRetrying:
		// Re-enqueue only once the retrying state is stored.
		backoff := time.Duration(job.RetryCount) * q.opts.Backoff
		log.Warn().Err(err).Int("retry", job.RetryCount).Dur("backoff", backoff).Msg("Job failed, retrying")
		time.AfterFunc(backoff, func() {
			job.StartedAt, job.CompletedAt = nil, nil
			if err := q.Publish(ctx, job); err != nil {
				log.Warn().Err(err).Msg("Failed to re-enqueue job")
			}
		})
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.SyncJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop closes the queue and waits for running handlers. Queued jobs that
// never started stay pending in the store.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		q.log.Info().Msg("Job queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Stop: %w", ctx.Err())
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
