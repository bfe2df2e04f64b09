package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/shared"
)

// Queue carries [models.SyncJob] payloads from the scheduler to the workers.
//
// Delivery is at-least-once: a job may be handed out again until it is acknowledged.
type Queue interface {
	Enqueue(ctx context.Context, job models.SyncJob, delay time.Duration) error
	Dequeue(ctx context.Context) (models.SyncJob, error)
	Ack(ctx context.Context, job models.SyncJob) error
}

var (
	_ Queue = (*MemoryQueue)(nil)
	_ Queue = (*repositories.JobQueue)(nil)
)

// MemoryQueue is an in-process [Queue] for a single worker process and for tests.
//
// Ready jobs are served FIFO. Delayed jobs sit on a timer until they become ready.
// Jobs are lost when the process exits.
type MemoryQueue struct {
	mu     sync.Mutex
	ready  []models.SyncJob
	timers map[string]*time.Timer
	notify chan struct{}
	done   chan struct{}
	closed bool
}

// NewMemoryQueue creates an empty [MemoryQueue].
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		timers: make(map[string]*time.Timer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job models.SyncJob, delay time.Duration) error {
	if err := job.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return shared.ErrQueueClosed
	}

	if delay <= 0 {
		q.push(job)
		return nil
	}

	q.timers[job.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, job.ID)
		if !q.closed {
			q.push(job)
		}
	})
	return nil
}

// push appends a ready job and wakes one waiter. Callers hold mu.
func (q *MemoryQueue) push(job models.SyncJob) {
	q.ready = append(q.ready, job)
	q.signal()
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue blocks until a job is ready, ctx ends or the queue is closed.
func (q *MemoryQueue) Dequeue(ctx context.Context) (models.SyncJob, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return models.SyncJob{}, shared.ErrQueueClosed
		}
		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready = q.ready[1:]
			if len(q.ready) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.SyncJob{}, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

// Ack is a no-op: a dequeued job has already left the queue.
func (q *MemoryQueue) Ack(ctx context.Context, job models.SyncJob) error {
	return nil
}

// Len returns the number of ready and delayed jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.timers)
}

// Pending counts ready and delayed jobs as queued; the shape matches [repositories.JobQueue.Pending].
func (q *MemoryQueue) Pending(ctx context.Context) (map[models.JobState]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[models.JobState]int{models.JobQueued: len(q.ready) + len(q.timers)}, nil
}

// Close stops pending timers and wakes every blocked Dequeue with [shared.ErrQueueClosed].
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	close(q.done)
	return nil
}
