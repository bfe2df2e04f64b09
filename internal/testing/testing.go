// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
)

// MockSource is a test double for [services.Source].
//
// Responses are served in order from Snapshots and Errors; the last entry repeats once they run out.
type MockSource struct {
	mu        sync.Mutex
	Snapshots []*services.ChannelSnapshot
	Errors    []error
	Panic     any
	Requests  []services.SnapshotRequest
	Block     chan struct{} // when set, fetches wait until it is closed or ctx ends
	Hook      func(services.SnapshotRequest)
}

func (m *MockSource) FetchChannelSnapshot(ctx context.Context, req services.SnapshotRequest) (*services.ChannelSnapshot, error) {
	m.mu.Lock()
	call := len(m.Requests)
	m.Requests = append(m.Requests, req)
	block := m.Block
	m.mu.Unlock()

	if m.Hook != nil {
		m.Hook(req)
	}
	if m.Panic != nil {
		panic(m.Panic)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := pick(m.Errors, call); err != nil {
		return nil, err
	}
	if snap := pick(m.Snapshots, call); snap != nil {
		return snap, nil
	}
	return &services.ChannelSnapshot{Source: models.SourceAPI}, nil
}

// Calls returns how many snapshots were requested.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func pick[T any](items []T, i int) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	if i >= len(items) {
		i = len(items) - 1
	}
	return items[i]
}

// EnqueueCall is one recorded [RecordingQueue.Enqueue].
type EnqueueCall struct {
	Job   models.SyncJob
	Delay time.Duration
}

// RecordingQueue remembers every job it is handed and never delivers them.
//
// FailOn makes Enqueue fail for the listed channel IDs.
type RecordingQueue struct {
	mu     sync.Mutex
	Calls  []EnqueueCall
	Acked  []models.SyncJob
	FailOn map[string]bool
}

func (q *RecordingQueue) Enqueue(ctx context.Context, job models.SyncJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailOn[job.ChannelID] {
		return errors.New("enqueue refused")
	}
	q.Calls = append(q.Calls, EnqueueCall{Job: job, Delay: delay})
	return nil
}

func (q *RecordingQueue) Dequeue(ctx context.Context) (models.SyncJob, error) {
	<-ctx.Done()
	return models.SyncJob{}, ctx.Err()
}

func (q *RecordingQueue) Ack(ctx context.Context, job models.SyncJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Acked = append(q.Acked, job)
	return nil
}

// Kinds returns the kinds of every recorded job, in order.
func (q *RecordingQueue) Kinds() []models.JobKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	kinds := make([]models.JobKind, 0, len(q.Calls))
	for _, c := range q.Calls {
		kinds = append(kinds, c.Job.Kind)
	}
	return kinds
}

// NewTestDB opens a migrated in-memory database that is closed when the test ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewTestDatabase()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// AssertFileExists fails the test when path is missing.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
