package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// JobExecutor runs a single job to completion. [*Executor] is the production implementation.
type JobExecutor interface {
	Execute(ctx context.Context, job models.SyncJob) Outcome
}

// Worker is a pool of goroutines draining a [Queue].
type Worker struct {
	queue    Queue
	executor JobExecutor
	size     int
	logger   *log.Logger
	pause    time.Duration
}

// NewWorker creates a pool of size goroutines.
func NewWorker(queue Queue, executor JobExecutor, size int, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{queue: queue, executor: executor, size: max(size, 1), logger: logger, pause: time.Second}
}

// Run blocks until ctx ends or the queue is closed. Jobs already executing are allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range w.size {
		logger := shared.WithLogger(w.logger, "worker", i)
		g.Go(func() error { return w.loop(ctx, logger) })
	}

	w.logger.Info("worker pool started", "size", w.size)
	err := g.Wait()
	w.logger.Info("worker pool stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, logger *log.Logger) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, shared.ErrQueueClosed) {
				return nil
			}
			logger.Error("dequeue failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.pause):
			}
			continue
		}

		out := w.executor.Execute(ctx, job)
		logger.Debug("job finished", "job", job.ID, "state", out.State)

		if err := w.queue.Ack(context.WithoutCancel(ctx), job); err != nil {
			logger.Error("failed to ack job", "job", job.ID, "err", err)
		}
	}
}
