// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tubesync/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// DBTX is satisfied by both [*sql.DB] and [*sql.Tx], so every repository can run inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers provide stable ordering for entities independent of UUIDs.
// The sweep walks channels in sequence order so stagger offsets are deterministic.
func NextSequence(ctx context.Context, db DBTX, table string) (int, error) {
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)

	var sequence int
	if err := db.QueryRowContext(ctx, query).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to increment %s sequence: %w", table, err)
	}
	return sequence, nil
}

// Store bundles every repository over one database handle.
type Store struct {
	db        *sql.DB
	Users     *UserRepository
	Channels  *ChannelRepository
	Videos    *VideoRepository
	Playlists *PlaylistRepository
	Folders   *FolderRepository
	Tags      *TagRepository
	Runs      *SyncRunRepository
}

// NewStore creates a [Store] whose repositories use db directly.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		Users:     NewUserRepository(db),
		Channels:  NewChannelRepository(db),
		Videos:    NewVideoRepository(db),
		Playlists: NewPlaylistRepository(db),
		Folders:   NewFolderRepository(db),
		Tags:      NewTagRepository(db),
		Runs:      NewSyncRunRepository(db),
	}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tx bundles the repositories a reconciliation run writes through, all bound to one transaction.
type Tx struct {
	tx        *sql.Tx
	Channels  *ChannelRepository
	Videos    *VideoRepository
	Playlists *PlaylistRepository
}

// WithTx runs fn inside a single transaction and commits if it returns nil.
//
// Any error from fn rolls everything back. A failed commit is reported as [shared.ErrCommitFailed].
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", shared.ErrCommitFailed, err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{
		tx:        sqlTx,
		Channels:  NewChannelRepository(sqlTx),
		Videos:    NewVideoRepository(sqlTx),
		Playlists: NewPlaylistRepository(sqlTx),
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCommitFailed, err)
	}
	return nil
}

// Savepoint runs fn inside a nested SAVEPOINT; when fn fails only its own writes are undone.
func (t *Tx) Savepoint(ctx context.Context, fn func() error) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT item"); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	if fnErr := fn(); fnErr != nil {
		if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO item"); err != nil {
			return errors.Join(fnErr, fmt.Errorf("failed to roll back savepoint: %w", err))
		}
		if _, err := t.tx.ExecContext(ctx, "RELEASE item"); err != nil {
			return errors.Join(fnErr, fmt.Errorf("failed to release savepoint: %w", err))
		}
		return fnErr
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE item"); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func notFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, id)
}

// wrapWriteErr maps SQLite constraint violations onto [shared.ErrConflict].
func wrapWriteErr(action string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s: %v", shared.ErrConflict, action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func checkAffected(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound(entity, id)
	}
	return nil
}
