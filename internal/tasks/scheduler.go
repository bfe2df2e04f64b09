package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tubesync/internal/models"
)

// SweepLister enumerates every saved channel of every owner, ordered by sequence.
type SweepLister interface {
	ListForSweep(ctx context.Context) ([]models.ChannelRef, error)
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Channels int
	Enqueued int
	Failed   int
	Window   time.Duration
	Step     time.Duration // gap between consecutive channels
}

// Scheduler turns library events and the periodic sweep into queued jobs.
type Scheduler struct {
	channels SweepLister
	queue    Queue
	window   time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// NewScheduler creates a [Scheduler] that spreads each sweep over window.
func NewScheduler(channels SweepLister, queue Queue, window time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Scheduler{channels: channels, queue: queue, window: window, logger: logger, now: time.Now}
}

// OnChannelCreated queues the initial upload history and playlist sync of a new channel.
func (s *Scheduler) OnChannelCreated(ctx context.Context, ownerID, channelID string) error {
	now := s.now()
	return errors.Join(
		s.enqueue(ctx, models.NewSyncJob(models.JobFullFetch, ownerID, channelID, now, 0), 0),
		s.enqueue(ctx, models.NewSyncJob(models.JobSyncPlaylists, ownerID, channelID, now, 0), 0),
	)
}

// OnManualRefreshRequested queues an immediate refresh of one channel.
func (s *Scheduler) OnManualRefreshRequested(ctx context.Context, ownerID, channelID string) error {
	return s.enqueue(ctx, models.NewSyncJob(models.JobRefresh, ownerID, channelID, s.now(), 0), 0)
}

func (s *Scheduler) enqueue(ctx context.Context, job models.SyncJob, delay time.Duration) error {
	if err := s.queue.Enqueue(ctx, job, delay); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", job, err)
	}
	s.logger.Debug("job enqueued", "job", job.ID, "kind", job.Kind, "channel", job.ChannelID, "delay", delay)
	return nil
}

// Sweep enqueues one refresh per channel, staggered evenly across the window.
//
// Enqueue failures are counted and the sweep moves on. Failing to list channels aborts this sweep only.
// Sweeps keep no state, so overlapping sweeps may queue duplicate refreshes.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepResult, error) {
	refs, err := s.channels.ListForSweep(ctx)
	if err != nil {
		s.logger.Error("sweep aborted: could not list channels", "err", err)
		return nil, fmt.Errorf("sweep: %w", err)
	}

	result := &SweepResult{Channels: len(refs), Window: s.window}
	if len(refs) == 0 {
		s.logger.Info("sweep found no channels")
		return result, nil
	}

	delays := StaggerDelays(len(refs), s.window)
	result.Step = s.window / time.Duration(len(refs))
	now := s.now()

	for i, ref := range refs {
		job := models.NewSyncJob(models.JobRefresh, ref.OwnerID, ref.ID, now, delays[i])
		if err := s.enqueue(ctx, job, delays[i]); err != nil {
			result.Failed++
			s.logger.Warn("sweep could not enqueue channel", "channel", ref.ID, "err", err)
			continue
		}
		result.Enqueued++
	}

	s.logger.Info("sweep enqueued refreshes",
		"channels", result.Channels, "enqueued", result.Enqueued, "failed", result.Failed, "step", result.Step)
	return result, nil
}

// StaggerDelays returns i*window/n for i in [0, n). Every delay is below window.
func StaggerDelays(n int, window time.Duration) []time.Duration {
	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = time.Duration(int64(window) * int64(i) / int64(n))
	}
	return delays
}
