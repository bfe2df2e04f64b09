package tasks

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/services"
	tu "github.com/desertthunder/tubesync/internal/testing"
)

type countingExecutor struct {
	mu   sync.Mutex
	seen []string
	done chan struct{}
	want int
}

func (c *countingExecutor) Execute(ctx context.Context, job models.SyncJob) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, job.ChannelID)
	if len(c.seen) == c.want {
		close(c.done)
	}
	return Outcome{State: models.JobSucceeded}
}

func TestWorker(t *testing.T) {
	logger := log.New(io.Discard)

	t.Run("pool drains the queue and stops with ctx", func(t *testing.T) {
		q := NewMemoryQueue()
		defer q.Close()
		exec := &countingExecutor{done: make(chan struct{}), want: 5}

		for _, ch := range []string{"a", "b", "c", "d", "e"} {
			require.NoError(t, q.Enqueue(context.Background(), testJob(ch), 0))
		}

		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() { errc <- NewWorker(q, exec, 3, logger).Run(ctx) }()

		select {
		case <-exec.done:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs were not executed")
		}
		cancel()

		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
		assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, exec.seen)
	})

	t.Run("closing the queue stops the pool", func(t *testing.T) {
		q := NewMemoryQueue()
		errc := make(chan error, 1)
		go func() { errc <- NewWorker(q, &countingExecutor{}, 2, logger).Run(context.Background()) }()

		q.Close()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	})

	t.Run("sqlite queue end to end", func(t *testing.T) {
		ctx := context.Background()
		db := tu.NewTestDB(t)
		store := repositories.NewStore(db)
		user, err := store.Users.Ensure(ctx, "owner@example.com")
		require.NoError(t, err)
		channel := &models.Channel{OwnerID: user.ID, ExternalID: testExternalID}
		require.NoError(t, store.Channels.Create(ctx, channel))

		queue := repositories.NewJobQueue(db, 10*time.Millisecond, time.Minute)
		source := &tu.MockSource{Snapshots: []*services.ChannelSnapshot{snapshotWith("v1", "v2")}}
		exec := NewExecutor(store, queue, Sources{API: source}, ExecutorConfig{MaxAttempts: 1}, logger)
		events := make(chan JobEvent, 4)
		exec.Notify(events)

		require.NoError(t, NewScheduler(store.Channels, queue, time.Hour, logger).OnChannelCreated(ctx, user.ID, channel.ID))

		runCtx, cancel := context.WithCancel(ctx)
		errc := make(chan error, 1)
		go func() { errc <- NewWorker(queue, exec, 1, logger).Run(runCtx) }()

		for range 2 {
			select {
			case ev := <-events:
				assert.Equal(t, models.JobSucceeded, ev.Outcome.State, ev.Message())
			case <-time.After(5 * time.Second):
				t.Fatal("jobs did not finish")
			}
		}
		cancel()
		require.NoError(t, <-errc)

		pending, err := queue.Pending(ctx)
		require.NoError(t, err)
		assert.Zero(t, pending[models.JobQueued]+pending[models.JobRunning])

		videos, err := store.Videos.List(ctx, user.ID, map[string]any{"channel_id": channel.ID})
		require.NoError(t, err)
		assert.Len(t, videos, 2)
	})
}
