package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
)

// JobQueue is a durable [models.SyncJob] queue stored in the sync_jobs table.
//
// Delivery is at-least-once: a claimed job that is not acknowledged within the lease becomes claimable again,
// so a crashed worker's job is eventually picked up by another process.
type JobQueue struct {
	db           *sql.DB
	pollInterval time.Duration
	lease        time.Duration
	now          func() time.Time
}

// NewJobQueue creates a queue polling every pollInterval for ready jobs.
func NewJobQueue(db *sql.DB, pollInterval, lease time.Duration) *JobQueue {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &JobQueue{db: db, pollInterval: pollInterval, lease: lease, now: time.Now}
}

// Enqueue stores job as runnable after delay.
func (q *JobQueue) Enqueue(ctx context.Context, job models.SyncJob, delay time.Duration) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}

	now := q.now().UTC()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	runAt := now.Add(delay)

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, kind, channel_id, owner_id, attempt, enqueued_at, run_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'queued')`,
		job.ID, string(job.Kind), job.ChannelID, job.OwnerID, job.Attempt, job.EnqueuedAt.UTC(), runAt,
	)
	if err != nil {
		return wrapWriteErr("enqueue job", err)
	}
	return nil
}

// Dequeue blocks until a job is ready to run or ctx ends.
func (q *JobQueue) Dequeue(ctx context.Context) (models.SyncJob, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		job, err := q.claim(ctx)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return models.SyncJob{}, err
		}

		select {
		case <-ctx.Done():
			return models.SyncJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// claim marks the oldest ready row running in a single statement, so two processes never claim the same row.
func (q *JobQueue) claim(ctx context.Context) (models.SyncJob, error) {
	now := q.now().UTC()
	expired := now.Add(-q.lease)

	var (
		job  models.SyncJob
		kind string
	)
	err := q.db.QueryRowContext(ctx, `
		UPDATE sync_jobs SET state = 'running', claimed_at = ?
		WHERE id = (
			SELECT id FROM sync_jobs
			WHERE (state = 'queued' AND run_at <= ?) OR (state = 'running' AND claimed_at <= ?)
			ORDER BY run_at, enqueued_at
			LIMIT 1
		)
		RETURNING id, kind, channel_id, owner_id, attempt, enqueued_at, run_at`,
		now, now, expired,
	).Scan(&job.ID, &kind, &job.ChannelID, &job.OwnerID, &job.Attempt, &job.EnqueuedAt, &job.RunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncJob{}, err
	}
	if err != nil {
		return models.SyncJob{}, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Kind = models.JobKind(kind)
	return job, nil
}

// Ack removes a finished job.
func (q *JobQueue) Ack(ctx context.Context, job models.SyncJob) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM sync_jobs WHERE id = ?`, job.ID)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	if err := checkAffected(result, "job", job.ID); err != nil {
		return fmt.Errorf("%w (lease may have expired)", err)
	}
	return nil
}

// Pending counts jobs not yet acknowledged, split by state.
func (q *JobQueue) Pending(ctx context.Context) (map[models.JobState]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM sync_jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobState]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[models.JobState(state)] = n
	}
	return counts, rows.Err()
}

// Close is a no-op; the database handle belongs to the caller.
func (q *JobQueue) Close() error {
	return nil
}
