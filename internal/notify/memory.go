package notify

import (
	"context"
	"fmt"
	"sync"

	appLog "delfin/internal/log"
)

// MemoryQueue is a buffered channel drained by a fixed worker pool. Jobs
// are lost on restart; use RedisQueue when that matters.
type MemoryQueue struct {
	jobs    chan Job
	workers int

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewMemoryQueue(buffer, workers int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 100
	}
	if workers <= 0 {
		workers = 1
	}
	return &MemoryQueue{
		jobs:    make(chan Job, buffer),
		workers: workers,
	}
}

// Enqueue never blocks: a full buffer yields ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		appLog.Debug("notification queued", "kind", job.Kind, "reservation_id", job.ReservationID)
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume may start after Close; the workers then drain what is left.
func (q *MemoryQueue) Consume(ctx context.Context, h Handler) {
	q.mu.Lock()
	q.started = true
	q.wg.Add(q.workers)
	q.mu.Unlock()
	for i := 0; i < q.workers; i++ {
		go q.worker(ctx, i, h)
	}
	q.wg.Wait()
}

func (q *MemoryQueue) worker(ctx context.Context, id int, h Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				appLog.Debug("notification worker stopped", "worker", id)
				return
			}
			runJob(ctx, id, h, job)
		}
	}
}

// Close stops accepting jobs and waits for workers to drain what is queued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	started := q.started
	q.mu.Unlock()
	if started {
		q.wg.Wait()
	}
	return nil
}

// Len reports the number of jobs waiting.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

func runJob(ctx context.Context, worker int, h Handler, job Job) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("notification handler panic", fmt.Errorf("%v", r), "worker", worker, "kind", job.Kind, "job_id", job.ID)
		}
	}()
	if err := h(ctx, job); err != nil {
		appLog.Error("notification job failed", err, "worker", worker, "kind", job.Kind, "job_id", job.ID, "reservation_id", job.ReservationID)
		return
	}
	appLog.Debug("notification job done", "worker", worker, "kind", job.Kind, "job_id", job.ID)
}
