package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/reconcile"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
)

// Outcome is the terminal state of one job attempt.
type Outcome struct {
	State      models.JobState
	Retries    int // attempts made before this one
	ErrorClass models.ErrorClass
	Err        error
	Skipped    bool          // channel was deleted before the job ran
	RetryIn    time.Duration // set when State is retrying
	Videos     *reconcile.VideoResult
	Playlists  *reconcile.PlaylistResult
}

// Summary renders the reconciliation counts.
func (o Outcome) Summary() string {
	var v reconcile.VideoResult
	var p reconcile.PlaylistResult
	if o.Videos != nil {
		v = *o.Videos
	}
	if o.Playlists != nil {
		p = *o.Playlists
	}
	return fmt.Sprintf("videos +%d ~%d =%d, playlists +%d ~%d =%d -%d, %d item errors",
		v.Inserted, v.Updated, v.Unchanged,
		p.Inserted, p.Updated, p.Unchanged, p.Deactivated,
		len(v.Errors)+len(p.Errors))
}

// Sources selects the backend for each job kind.
//
// API serves full_fetch and sync_playlists. Refresh serves refresh and falls back to API when nil.
type Sources struct {
	API     services.Source
	Refresh services.Source
}

// ExecutorConfig holds the retry and timeout policy.
type ExecutorConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JobTimeout     time.Duration
}

// ExecutorConfigFromConfig reads the executor policy from the sync section.
func ExecutorConfigFromConfig(c shared.SyncConfig) ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		JobTimeout:     c.JobTimeout,
	}
}

// Executor runs one [models.SyncJob] to a terminal [Outcome].
//
// A run fetches a snapshot, then reconciles it in a single transaction: either every write of the
// run commits or none does. Failures are classified and either retried through the queue or
// recorded as failed; they never escape as panics or errors.
type Executor struct {
	store   *repositories.Store
	queue   Queue
	engine  *reconcile.Engine
	sources Sources
	config  ExecutorConfig
	backoff Backoff
	logger  *log.Logger
	events  chan<- JobEvent
	now     func() time.Time
}

// NewExecutor creates an [Executor]. Retries are re-enqueued on queue.
func NewExecutor(
	store *repositories.Store, queue Queue, sources Sources, config ExecutorConfig, logger *log.Logger,
) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 10 * time.Minute
	}
	return &Executor{
		store:   store,
		queue:   queue,
		engine:  reconcile.NewEngine(logger),
		sources: sources,
		config:  config,
		backoff: NewBackoff(config.InitialBackoff, config.MaxBackoff),
		logger:  logger,
		now:     time.Now,
	}
}

// Notify sends a [JobEvent] to events after every attempt. Sends never block.
func (e *Executor) Notify(events chan<- JobEvent) {
	e.events = events
}

// Execute runs job and returns its outcome.
//
// The job is detached from ctx cancellation and bounded by the job timeout instead, so a worker
// shutting down lets in-flight jobs finish.
func (e *Executor) Execute(ctx context.Context, job models.SyncJob) (out Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.JobTimeout)
	defer cancel()

	started := e.now().UTC()
	logger := shared.WithLogger(e.logger, "job", job.ID, "kind", job.Kind, "channel", job.ChannelID, "attempt", job.Attempt)

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				State:      models.JobFailed,
				ErrorClass: models.ClassInternal,
				Err:        fmt.Errorf("job panicked: %v", r),
			}
			logger.Error("job panicked", "panic", r)
		}
		out.Retries = job.Attempt - 1

		e.record(ctx, job, out, started, logger)
		sendEvent(e.events, JobEvent{Job: job, Outcome: out, At: e.now().UTC()})
	}()

	logger.Debug("job started")
	return e.run(ctx, job, logger)
}

func (e *Executor) run(ctx context.Context, job models.SyncJob, logger *log.Logger) Outcome {
	channel, err := e.store.Channels.Get(ctx, job.OwnerID, job.ChannelID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Info("channel deleted, skipping job")
		return Outcome{State: models.JobSucceeded, Skipped: true}
	}
	if err != nil {
		return e.retryOrFail(ctx, job, models.ClassTransient, err, logger)
	}

	source, req, err := e.request(ctx, job, channel)
	if err != nil {
		return e.retryOrFail(ctx, job, models.ClassTransient, err, logger)
	}

	snap, err := source.FetchChannelSnapshot(ctx, req)
	if err != nil {
		return e.sourceFailed(ctx, job, channel, err, logger)
	}

	return e.apply(ctx, job, channel, snap, logger)
}

// request picks the source for job and builds its snapshot request.
func (e *Executor) request(
	ctx context.Context, job models.SyncJob, channel *models.Channel,
) (services.Source, services.SnapshotRequest, error) {
	req := services.SnapshotRequest{
		ExternalChannelID: channel.ExternalID,
		UploadsPlaylistID: channel.UploadsPlaylistID,
	}

	var source services.Source
	switch job.Kind {
	case models.JobFullFetch:
		source, req.Mode = e.sources.API, services.ModeFull
	case models.JobRefresh:
		source, req.Mode = e.sources.Refresh, services.ModeLatest
		if source == nil {
			source = e.sources.API
		}
	case models.JobSyncPlaylists:
		source, req.Mode = e.sources.API, services.ModePlaylists
	default:
		return nil, req, fmt.Errorf("%w: job kind %q", shared.ErrInvalidInput, job.Kind)
	}
	if source == nil {
		return nil, req, fmt.Errorf("%w: no source for %s jobs", shared.ErrServiceMissing, job.Kind)
	}

	if req.Mode != services.ModePlaylists {
		known, err := e.store.Videos.ExternalIDs(ctx, channel.OwnerID, channel.ID)
		if err != nil {
			return nil, req, err
		}
		req.KnownVideoIDs = known
	}
	return source, req, nil
}

// sourceFailed applies the error taxonomy to a failed fetch.
func (e *Executor) sourceFailed(
	ctx context.Context, job models.SyncJob, channel *models.Channel, err error, logger *log.Logger,
) Outcome {
	class := Classify(err)
	switch class {
	case models.ClassQuotaExceeded:
		logger.Error("quota exhausted, not retrying", "class", class, "err", err)
		return Outcome{State: models.JobFailed, ErrorClass: class, Err: err}

	case models.ClassNotFound:
		logger.Warn("channel not found upstream, marking unreachable", "class", class, "err", err)
		markErr := e.store.WithTx(ctx, func(tx *repositories.Tx) error {
			return tx.Channels.MarkUnreachable(ctx, channel.OwnerID, channel.ID, e.now())
		})
		if markErr != nil && !errors.Is(markErr, shared.ErrNotFound) {
			logger.Error("failed to mark channel unreachable", "err", markErr)
		}
		return Outcome{State: models.JobFailed, ErrorClass: class, Err: err}
	}

	return e.retryOrFail(ctx, job, class, err, logger)
}

// retryOrFail re-enqueues the next attempt after a backoff, or fails once attempts are spent.
func (e *Executor) retryOrFail(
	ctx context.Context, job models.SyncJob, class models.ErrorClass, err error, logger *log.Logger,
) Outcome {
	if job.Attempt >= e.config.MaxAttempts {
		logger.Error("attempts exhausted", "class", class, "max", e.config.MaxAttempts, "err", err)
		return Outcome{State: models.JobFailed, ErrorClass: class, Err: err}
	}

	delay := e.backoff.Delay(job.Attempt)
	next := job.Next(e.now(), delay)
	if qErr := e.queue.Enqueue(ctx, next, delay); qErr != nil {
		logger.Error("failed to enqueue retry", "err", qErr)
		return Outcome{State: models.JobFailed, ErrorClass: class, Err: errors.Join(err, qErr)}
	}

	logger.Warn("job will retry", "class", class, "in", delay, "next", next.ID, "err", err)
	return Outcome{State: models.JobRetrying, ErrorClass: class, Err: err, RetryIn: delay}
}

// apply reconciles snap inside one transaction and marks the channel synced.
func (e *Executor) apply(
	ctx context.Context, job models.SyncJob, channel *models.Channel, snap *services.ChannelSnapshot, logger *log.Logger,
) Outcome {
	var (
		videos    *reconcile.VideoResult
		playlists *reconcile.PlaylistResult
	)

	err := e.store.WithTx(ctx, func(tx *repositories.Tx) error {
		if _, err := e.engine.ReconcileChannel(ctx, tx, channel, snap.Channel); err != nil {
			return err
		}

		var err error
		if videos, err = e.engine.ReconcileVideos(ctx, tx, channel, snap.Videos); err != nil {
			return err
		}
		if job.Kind == models.JobSyncPlaylists {
			playlists, err = e.engine.ReconcilePlaylists(ctx, tx, channel, snap.Playlists, snap.PlaylistsComplete)
			if err != nil {
				return err
			}
		}

		return tx.Channels.MarkSynced(ctx, channel.OwnerID, channel.ID, e.now())
	})
	if err != nil {
		logger.Error("reconciliation rolled back", "class", models.ClassCommitFailure, "err", err)
		return Outcome{State: models.JobFailed, ErrorClass: models.ClassCommitFailure, Err: err}
	}

	out := Outcome{State: models.JobSucceeded, Videos: videos, Playlists: playlists}
	logger.Info("job succeeded", "source", snap.Source, "result", out.Summary())
	return out
}

// record writes the attempt to sync_runs. A failure to record never changes the outcome.
func (e *Executor) record(ctx context.Context, job models.SyncJob, out Outcome, started time.Time, logger *log.Logger) {
	run := &models.SyncRun{
		JobID:      job.ID,
		Kind:       job.Kind,
		ChannelID:  job.ChannelID,
		OwnerID:    job.OwnerID,
		Attempt:    job.Attempt,
		State:      out.State,
		ErrorClass: out.ErrorClass,
		StartedAt:  started,
		FinishedAt: e.now().UTC(),
	}
	if out.Err != nil {
		run.ErrorMessage = out.Err.Error()
	}
	if v := out.Videos; v != nil {
		run.VideosInserted, run.VideosUpdated, run.VideosUnchanged = v.Inserted, v.Updated, v.Unchanged
		run.ItemErrors += len(v.Errors)
	}
	if p := out.Playlists; p != nil {
		run.PlaylistsInserted, run.PlaylistsUpdated, run.PlaylistsUnchanged = p.Inserted, p.Updated, p.Unchanged
		run.PlaylistsDeactivated = p.Deactivated
		run.ItemErrors += len(p.Errors)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.Runs.Create(ctx, run); err != nil {
		logger.Error("failed to record sync run", "err", err)
	}
}

// Classify maps an error onto the job error taxonomy.
//
// Errors that match no source sentinel, including job timeouts, count as transient.
func Classify(err error) models.ErrorClass {
	switch {
	case err == nil:
		return models.ClassNone
	case errors.Is(err, shared.ErrQuotaExceeded):
		return models.ClassQuotaExceeded
	case errors.Is(err, shared.ErrNotFound):
		return models.ClassNotFound
	case errors.Is(err, shared.ErrRateLimited):
		return models.ClassRateLimited
	case errors.Is(err, shared.ErrCommitFailed):
		return models.ClassCommitFailure
	default:
		return models.ClassTransient
	}
}
