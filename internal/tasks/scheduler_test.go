package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	tu "github.com/desertthunder/tubesync/internal/testing"
)

type staticLister struct {
	refs []models.ChannelRef
	err  error
}

func (l staticLister) ListForSweep(ctx context.Context) ([]models.ChannelRef, error) {
	return l.refs, l.err
}

func channelRefs(n int) []models.ChannelRef {
	refs := make([]models.ChannelRef, n)
	for i := range refs {
		refs[i] = models.ChannelRef{ID: fmt.Sprintf("ch-%03d", i), OwnerID: "owner", Sequence: i + 1}
	}
	return refs
}

func TestScheduler(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)

	t.Run("channel creation queues full fetch and playlists now", func(t *testing.T) {
		queue := &tu.RecordingQueue{}
		s := NewScheduler(staticLister{}, queue, time.Hour, logger)

		require.NoError(t, s.OnChannelCreated(ctx, "owner", "ch-1"))
		assert.Equal(t, []models.JobKind{models.JobFullFetch, models.JobSyncPlaylists}, queue.Kinds())
		for _, call := range queue.Calls {
			assert.Zero(t, call.Delay)
			assert.Equal(t, 1, call.Job.Attempt)
			assert.Equal(t, "ch-1", call.Job.ChannelID)
		}
	})

	t.Run("manual refresh queues one refresh now", func(t *testing.T) {
		queue := &tu.RecordingQueue{}
		s := NewScheduler(staticLister{}, queue, time.Hour, logger)

		require.NoError(t, s.OnManualRefreshRequested(ctx, "owner", "ch-1"))
		require.Len(t, queue.Calls, 1)
		assert.Equal(t, models.JobRefresh, queue.Calls[0].Job.Kind)
		assert.Zero(t, queue.Calls[0].Delay)
	})

	t.Run("enqueue failures surface to the caller", func(t *testing.T) {
		queue := &tu.RecordingQueue{FailOn: map[string]bool{"ch-1": true}}
		s := NewScheduler(staticLister{}, queue, time.Hour, logger)
		assert.Error(t, s.OnChannelCreated(ctx, "owner", "ch-1"))
	})

	t.Run("sweep staggers 120 channels across the window", func(t *testing.T) {
		queue := &tu.RecordingQueue{}
		s := NewScheduler(staticLister{refs: channelRefs(120)}, queue, time.Hour, logger)

		result, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 120, result.Channels)
		assert.Equal(t, 120, result.Enqueued)
		assert.Equal(t, 30*time.Second, result.Step)

		require.Len(t, queue.Calls, 120)
		seen := make(map[time.Duration]bool, 120)
		for i, call := range queue.Calls {
			assert.Equal(t, models.JobRefresh, call.Job.Kind)
			assert.Equal(t, fmt.Sprintf("ch-%03d", i), call.Job.ChannelID, "sequence order")
			assert.Less(t, call.Delay, time.Hour)
			assert.False(t, seen[call.Delay], "delay %s repeated", call.Delay)
			seen[call.Delay] = true
		}
		assert.Zero(t, queue.Calls[0].Delay)
		assert.Equal(t, 59*time.Minute+30*time.Second, queue.Calls[119].Delay)
	})

	t.Run("sweep keeps going past enqueue failures", func(t *testing.T) {
		queue := &tu.RecordingQueue{FailOn: map[string]bool{"ch-001": true}}
		s := NewScheduler(staticLister{refs: channelRefs(3)}, queue, time.Hour, logger)

		result, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Enqueued)
		assert.Equal(t, 1, result.Failed)
	})

	t.Run("listing failure aborts the sweep", func(t *testing.T) {
		queue := &tu.RecordingQueue{}
		s := NewScheduler(staticLister{err: errors.New("db gone")}, queue, time.Hour, logger)

		_, err := s.Sweep(ctx)
		assert.Error(t, err)
		assert.Empty(t, queue.Calls)
	})

	t.Run("sweep over the store covers every owner", func(t *testing.T) {
		store := repositories.NewStore(tu.NewTestDB(t))
		for _, email := range []string{"a@example.com", "b@example.com"} {
			user, err := store.Users.Ensure(ctx, email)
			require.NoError(t, err)
			require.NoError(t, store.Channels.Create(ctx, &models.Channel{OwnerID: user.ID, ExternalID: "UC" + email}))
		}

		queue := &tu.RecordingQueue{}
		result, err := NewScheduler(store.Channels, queue, time.Hour, logger).Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Enqueued)
		assert.NotEqual(t, queue.Calls[0].Job.OwnerID, queue.Calls[1].Job.OwnerID)
	})
}

func TestStaggerDelays(t *testing.T) {
	assert.Equal(t, []time.Duration{0}, StaggerDelays(1, time.Hour))
	assert.Equal(t, []time.Duration{0, 20 * time.Minute, 40 * time.Minute}, StaggerDelays(3, time.Hour))
	assert.Empty(t, StaggerDelays(0, time.Hour))
}

func TestSweepDriver(t *testing.T) {
	logger := log.New(io.Discard)
	s := NewScheduler(staticLister{}, &tu.RecordingQueue{}, time.Hour, logger)

	t.Run("rejects a bad schedule", func(t *testing.T) {
		_, err := NewSweepDriver(s, "every hour please", logger)
		assert.Error(t, err)
	})

	t.Run("starts and stops", func(t *testing.T) {
		d, err := NewSweepDriver(s, "", logger)
		require.NoError(t, err)
		d.Start()
		assert.False(t, d.Next().IsZero())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, d.Stop(ctx))
	})
}
