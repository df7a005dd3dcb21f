package gui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"codeberg.org/snonux/yomibackfill/internal/backfill"
)

// noLeaks fails the test if it leaves goroutines behind. Goroutines that
// were already running, such as toolkit internals, are ignored.
func noLeaks(t *testing.T) {
	t.Helper()
	opt := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, opt) })
}

// recorder collects status callbacks
type recorder struct {
	mu   sync.Mutex
	jobs []Job
	done chan Job
}

func newRecorder() *recorder {
	return &recorder{done: make(chan Job, 10)}
}

func (r *recorder) update(job Job) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	if job.Status.Done() {
		r.done <- job
	}
}

func (r *recorder) wait(t *testing.T) Job {
	t.Helper()
	select {
	case job := <-r.done:
		return job
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job")
		return Job{}
	}
}

func TestJobQueue_Completes(t *testing.T) {
	noLeaks(t)
	q := NewJobQueue(context.Background())
	defer q.Stop()
	rec := newRecorder()
	q.SetCallback(rec.update)

	job := q.Add("Japanese::Mining", false, func(ctx context.Context) (*backfill.Result, error) {
		return &backfill.Result{Processed: 3, Updated: 2}, nil
	})
	if job.ID != 1 {
		t.Errorf("first job ID = %d, want 1", job.ID)
	}

	done := rec.wait(t)
	if done.Status != StatusCompleted {
		t.Fatalf("Status = %v, want Completed", done.Status)
	}
	if done.Result.Updated != 2 {
		t.Errorf("Updated = %d, want 2", done.Result.Updated)
	}
	if done.StartedAt.IsZero() || done.CompletedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	queued, processing, completed, failed := q.Status()
	if queued != 0 || processing != 0 || completed != 1 || failed != 0 {
		t.Errorf("Status() = %d %d %d %d", queued, processing, completed, failed)
	}
}

func TestJobQueue_RunsSequentially(t *testing.T) {
	noLeaks(t)
	q := NewJobQueue(context.Background())
	defer q.Stop()
	rec := newRecorder()
	q.SetCallback(rec.update)

	var mu sync.Mutex
	running := 0
	overlap := false
	run := func(ctx context.Context) (*backfill.Result, error) {
		mu.Lock()
		running++
		if running > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return &backfill.Result{}, nil
	}

	for i := 0; i < 3; i++ {
		q.Add("deck", false, run)
	}
	for i := 0; i < 3; i++ {
		rec.wait(t)
	}

	if overlap {
		t.Error("jobs ran concurrently")
	}

	jobs := q.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("Jobs() = %d, want 3", len(jobs))
	}
	for i, job := range jobs {
		if job.ID != i+1 {
			t.Errorf("jobs[%d].ID = %d", i, job.ID)
		}
	}
}

func TestJobQueue_Failure(t *testing.T) {
	noLeaks(t)
	q := NewJobQueue(context.Background())
	defer q.Stop()
	rec := newRecorder()
	q.SetCallback(rec.update)

	boom := errors.New("boom")
	q.Add("deck", false, func(ctx context.Context) (*backfill.Result, error) {
		return nil, boom
	})

	done := rec.wait(t)
	if done.Status != StatusFailed || !errors.Is(done.Error, boom) {
		t.Errorf("job = %v / %v, want Failed / boom", done.Status, done.Error)
	}
	if _, _, _, failed := q.Status(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestJobQueue_CancelCurrent(t *testing.T) {
	noLeaks(t)
	q := NewJobQueue(context.Background())
	defer q.Stop()
	rec := newRecorder()

	started := make(chan struct{})
	q.SetCallback(func(job Job) {
		if job.Status == StatusProcessing {
			close(started)
		}
		rec.update(job)
	})

	q.Add("deck", false, func(ctx context.Context) (*backfill.Result, error) {
		<-ctx.Done()
		return &backfill.Result{Processed: 1, Updated: 1}, ctx.Err()
	})

	<-started
	if !q.CancelCurrent() {
		t.Fatal("CancelCurrent() = false while a job runs")
	}

	done := rec.wait(t)
	if done.Status != StatusCancelled {
		t.Errorf("Status = %v, want Cancelled", done.Status)
	}
	if done.Result == nil || done.Result.Updated != 1 {
		t.Error("partial result should be kept")
	}
	if q.CancelCurrent() {
		t.Error("CancelCurrent() = true with nothing running")
	}
}

func TestJobQueue_AddAfterStop(t *testing.T) {
	noLeaks(t)
	q := NewJobQueue(context.Background())
	q.Stop()

	job := q.Add("deck", false, func(ctx context.Context) (*backfill.Result, error) {
		t.Error("job should not run after Stop")
		return nil, nil
	})
	if job.Status != StatusCancelled {
		t.Errorf("Status = %v after Stop, want Cancelled", job.Status)
	}
	if !errors.Is(job.Error, context.Canceled) {
		t.Errorf("Error = %v, want context.Canceled", job.Error)
	}
	if got, ok := q.Get(job.ID); !ok || got.Status != StatusCancelled {
		t.Errorf("Get() = %v, %v", got.Status, ok)
	}
	if queued, _, _, _ := q.Status(); queued != 0 {
		t.Errorf("queued = %d after Stop, want 0", queued)
	}
}

func TestJobStatus_String(t *testing.T) {
	tests := map[JobStatus]string{
		StatusQueued:     "Queued",
		StatusProcessing: "Processing",
		StatusCompleted:  "Completed",
		StatusFailed:     "Failed",
		StatusCancelled:  "Cancelled",
		JobStatus(99):    "Unknown",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}
