package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/tubesync/internal/formatter"
	"github.com/desertthunder/tubesync/internal/server"
	"github.com/desertthunder/tubesync/internal/shared"
	"github.com/desertthunder/tubesync/internal/tasks"
)

// workerQueue is what the worker needs from a queue backend: delivery plus counts for /healthz.
type workerQueue interface {
	tasks.Queue
	server.QueueStats
}

// newWorkerQueue picks the backend. The memory queue lives and dies with this process, so it only sees
// jobs this worker's own sweep and retries produce.
func (r *Runner) newWorkerQueue(backend string) (workerQueue, func(), error) {
	switch backend {
	case shared.QueueBackendSQLite:
		return r.queue(), func() {}, nil
	case shared.QueueBackendMemory:
		q := tasks.NewMemoryQueue()
		r.logger.Warn("memory queue selected; jobs queued by other processes are not seen")
		return q, func() { q.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown queue backend %q", shared.ErrInvalidArgument, backend)
	}
}

// SyncWorker runs the worker pool until interrupted, with the cron sweep and the health endpoint alongside.
func (r *Runner) SyncWorker(ctx context.Context, cmd *cli.Command) error {
	store, err := r.open()
	if err != nil {
		return err
	}

	backend := cmd.String("queue")
	if backend == "" {
		backend = r.config.Queue.Backend
	}
	queue, closeQueue, err := r.newWorkerQueue(backend)
	if err != nil {
		return err
	}
	defer closeQueue()

	executor, err := r.executor(ctx, store, queue)
	if err != nil {
		return err
	}
	events := make(chan tasks.JobEvent, 64)
	executor.Notify(events)

	size := cmd.Int("workers")
	if size <= 0 {
		size = r.config.Sync.Workers
	}
	worker := tasks.NewWorker(queue, executor, size, r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var nextSweep func() time.Time
	if !cmd.Bool("no-sweep") {
		driver, err := tasks.NewSweepDriver(r.scheduler(store, queue), r.config.Sync.SweepSchedule, r.logger)
		if err != nil {
			return err
		}
		driver.Start()
		defer driver.Stop(context.Background())
		nextSweep = driver.Next
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })

	if !cmd.Bool("no-server") {
		router := server.NewBasicRouter()
		router.Use(server.Recover(r.logger), server.Logging(r.logger))
		router.Handler(server.NewHealthHandler(queue, nextSweep))
		srv := server.New(r.config.Server.Addr(), router, r.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				r.writePlain("%s %s\n", ev.At.Format(time.TimeOnly), ev.Message())
			}
		}
	})

	r.logger.Info("sync worker started", "workers", size, "queue", backend, "sweep", nextSweep != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("sync worker stopped")
	return nil
}

// SyncSweep runs one sweep immediately: every channel of every owner gets a staggered refresh.
func (r *Runner) SyncSweep(ctx context.Context, cmd *cli.Command) error {
	store, err := r.open()
	if err != nil {
		return err
	}

	result, err := r.scheduler(store, r.queue()).Sweep(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	return r.writePlain("✓ Swept %d channels: %d refreshes queued over %s (every %s), %d failed\n",
		result.Channels, result.Enqueued, result.Window, result.Step, result.Failed)
}

// SyncRuns prints recorded job attempts, newest first.
func (r *Runner) SyncRuns(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	criteria := map[string]any{
		"owner_id": owner.ID,
		"state":    cmd.String("state"),
		"limit":    cmd.Int("limit"),
	}
	if ref := cmd.String("channel"); ref != "" {
		channel, err := r.channel(ctx, store, owner.ID, ref)
		if err != nil {
			return err
		}
		criteria["channel_id"] = channel.ID
	}

	runs, err := store.Runs.List(ctx, criteria)
	if err != nil {
		return err
	}
	return r.render(cmd, runs, func(w io.Writer, f formatter.Format) error {
		return formatter.Runs(w, f, runs)
	})
}
