package gui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"codeberg.org/snonux/yomibackfill/internal/backfill"
)

// RunFunc performs one backfill
type RunFunc func(ctx context.Context) (*backfill.Result, error)

// Job is a queued backfill run
type Job struct {
	ID          int
	Label       string
	DryRun      bool
	Status      JobStatus
	Result      *backfill.Result
	Error       error
	StartedAt   time.Time
	CompletedAt time.Time

	run RunFunc
}

// JobStatus represents the current state of a job
type JobStatus int

const (
	StatusQueued JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s JobStatus) String() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusProcessing:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Done reports whether the job has finished
func (s JobStatus) Done() bool {
	return s >= StatusCompleted
}

// JobQueue runs backfill jobs one at a time. Two runs never write to the
// collection concurrently.
type JobQueue struct {
	jobs    chan *Job
	results map[int]*Job
	order   []int

	nextID  int
	current context.CancelFunc
	mu      sync.RWMutex

	// Callback for UI updates, called from the worker goroutine
	onStatusUpdate func(job Job)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// sendMu orders Add against the drain in Stop
	sendMu sync.Mutex
}

// NewJobQueue creates a queue and starts its worker
func NewJobQueue(ctx context.Context) *JobQueue {
	queueCtx, cancel := context.WithCancel(ctx)

	q := &JobQueue{
		jobs:    make(chan *Job, 100),
		results: make(map[int]*Job),
		nextID:  1,
		ctx:     queueCtx,
		cancel:  cancel,
	}

	q.wg.Add(1)
	go q.worker()

	return q
}

// SetCallback sets the function notified about status changes
func (q *JobQueue) SetCallback(onStatusUpdate func(Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onStatusUpdate = onStatusUpdate
}

// Add queues a run
func (q *JobQueue) Add(label string, dryRun bool, run RunFunc) Job {
	q.mu.Lock()
	job := &Job{
		ID:     q.nextID,
		Label:  label,
		DryRun: dryRun,
		Status: StatusQueued,
		run:    run,
	}
	q.nextID++
	q.results[job.ID] = job
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	if q.ctx.Err() == nil {
		select {
		case q.jobs <- job:
			q.notify(job)
			return q.snapshot(job)
		case <-q.ctx.Done():
		}
	}
	q.finish(job, nil, fmt.Errorf("queue is shutting down: %w", context.Canceled))
	return q.snapshot(job)
}

// Get returns a copy of a job by ID
func (q *JobQueue) Get(id int) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.results[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns copies of all jobs in the order they were added
func (q *JobQueue) Jobs() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		jobs = append(jobs, *q.results[id])
	}
	return jobs
}

// Status returns the current queue statistics
func (q *JobQueue) Status() (queued, processing, completed, failed int) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, job := range q.results {
		switch job.Status {
		case StatusQueued:
			queued++
		case StatusProcessing:
			processing++
		case StatusCompleted:
			completed++
		case StatusFailed, StatusCancelled:
			failed++
		}
	}
	return
}

// CancelCurrent cancels the running job. Notes finished before the
// cancellation are still written.
func (q *JobQueue) CancelCurrent() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return false
	}
	q.current()
	return true
}

// Stop cancels all work and waits for the worker to exit
func (q *JobQueue) Stop() {
	q.cancel()
	q.wg.Wait()

	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	// Jobs still waiting in the channel never ran
	for {
		select {
		case job := <-q.jobs:
			q.finish(job, nil, context.Canceled)
		default:
			return
		}
	}
}

func (q *JobQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.process(job)
		}
	}
}

func (q *JobQueue) process(job *Job) {
	ctx, cancel := context.WithCancel(q.ctx)
	defer cancel()

	q.mu.Lock()
	q.current = cancel
	job.Status = StatusProcessing
	job.StartedAt = time.Now()
	q.mu.Unlock()
	q.notify(job)

	result, err := job.run(ctx)

	q.mu.Lock()
	q.current = nil
	q.mu.Unlock()
	q.finish(job, result, err)
}

func (q *JobQueue) finish(job *Job, result *backfill.Result, err error) {
	q.mu.Lock()
	job.Result = result
	job.Error = err
	job.CompletedAt = time.Now()
	switch {
	case err == nil:
		job.Status = StatusCompleted
	case errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
	default:
		job.Status = StatusFailed
	}
	q.mu.Unlock()
	q.notify(job)
}

// notify calls the callback with a copy so it never races the worker
func (q *JobQueue) notify(job *Job) {
	q.mu.RLock()
	cb := q.onStatusUpdate
	snapshot := *job
	q.mu.RUnlock()

	if cb != nil {
		cb(snapshot)
	}
}

func (q *JobQueue) snapshot(job *Job) Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return *job
}
