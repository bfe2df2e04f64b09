package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

func newTestQueue(t *testing.T, clock *time.Time) *JobQueue {
	t.Helper()
	q := NewJobQueue(setupTestDB(t), 5*time.Millisecond, time.Minute)
	q.now = func() time.Time { return *clock }
	return q
}

func TestJobQueue(t *testing.T) {
	t.Run("delayed job waits for its run time", func(t *testing.T) {
		clock := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		q := newTestQueue(t, &clock)
		ctx := context.Background()

		job := models.NewSyncJob(models.JobRefresh, "o1", "c1", clock, 0)
		if err := q.Enqueue(ctx, job, 30*time.Second); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}

		if _, err := q.claim(ctx); err == nil {
			t.Fatal("expected no ready job before run time")
		}

		clock = clock.Add(31 * time.Second)
		got, err := q.claim(ctx)
		if err != nil {
			t.Fatalf("expected job to be ready: %v", err)
		}
		if got.ID != job.ID || got.Kind != models.JobRefresh || got.Attempt != 1 {
			t.Errorf("unexpected job %+v", got)
		}
	})

	t.Run("claimed job is not handed out twice within the lease", func(t *testing.T) {
		clock := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		q := newTestQueue(t, &clock)
		ctx := context.Background()

		job := models.NewSyncJob(models.JobFullFetch, "o1", "c1", clock, 0)
		q.Enqueue(ctx, job, 0)

		if _, err := q.claim(ctx); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if _, err := q.claim(ctx); err == nil {
			t.Fatal("expected second claim to find nothing")
		}

		clock = clock.Add(2 * time.Minute)
		again, err := q.claim(ctx)
		if err != nil {
			t.Fatalf("expected expired lease to be reclaimed: %v", err)
		}
		if again.ID != job.ID {
			t.Errorf("expected reclaimed %s, got %s", job.ID, again.ID)
		}
	})

	t.Run("Ack removes the row", func(t *testing.T) {
		clock := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		q := newTestQueue(t, &clock)
		ctx := context.Background()

		job := models.NewSyncJob(models.JobSyncPlaylists, "o1", "c1", clock, 0)
		q.Enqueue(ctx, job, 0)

		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if err := q.Ack(ctx, got); err != nil {
			t.Fatalf("Ack failed: %v", err)
		}
		if err := q.Ack(ctx, got); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected second ack to miss, got %v", err)
		}

		pending, _ := q.Pending(ctx)
		if len(pending) != 0 {
			t.Errorf("expected empty queue, got %v", pending)
		}
	})

	t.Run("Dequeue honours context", func(t *testing.T) {
		clock := time.Now().UTC()
		q := newTestQueue(t, &clock)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("Enqueue validates", func(t *testing.T) {
		clock := time.Now().UTC()
		q := newTestQueue(t, &clock)

		err := q.Enqueue(context.Background(), models.SyncJob{ID: "x", Kind: "bogus"}, 0)
		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}
