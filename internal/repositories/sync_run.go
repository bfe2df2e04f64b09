package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

const syncRunColumns = `
	id, sequence, job_id, kind, channel_id, owner_id, attempt, state, error_class, error_message,
	videos_inserted, videos_updated, videos_unchanged,
	playlists_inserted, playlists_updated, playlists_unchanged, playlists_deactivated,
	item_errors, started_at, finished_at`

// SyncRunRepository records one [models.SyncRun] per executed job attempt.
//
// Runs are append-only history; nothing in the sync path reads them back.
type SyncRunRepository struct {
	db DBTX
}

// NewSyncRunRepository creates a new [SyncRunRepository] with the given database connection
func NewSyncRunRepository(db DBTX) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a run with generated ID and sequence
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return err
	}

	sequence, err := NextSequence(ctx, r.db, "sync_runs")
	if err != nil {
		return err
	}

	run.ID = shared.GenerateID()
	run.Sequence = sequence

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_runs (`+syncRunColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Sequence, run.JobID, string(run.Kind), run.ChannelID, run.OwnerID, run.Attempt,
		string(run.State), string(run.ErrorClass), nullString(run.ErrorMessage),
		run.VideosInserted, run.VideosUpdated, run.VideosUnchanged,
		run.PlaylistsInserted, run.PlaylistsUpdated, run.PlaylistsUnchanged, run.PlaylistsDeactivated,
		run.ItemErrors, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return wrapWriteErr("insert sync run", err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *SyncRunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, id)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("sync run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}
	return run, nil
}

// List retrieves runs newest first.
//
// Supported criteria: "owner_id" (string), "channel_id" (string), "state" (string),
// "error_class" (string), "limit" (int).
func (r *SyncRunRepository) List(ctx context.Context, criteria map[string]any) ([]*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE 1 = 1`
	args := []any{}

	for _, column := range []string{"owner_id", "channel_id", "state", "error_class"} {
		if v, ok := criteria[column].(string); ok && v != "" {
			query += " AND " + column + " = ?"
			args = append(args, v)
		}
	}
	query += " ORDER BY sequence DESC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run for a channel.
func (r *SyncRunRepository) Latest(ctx context.Context, ownerID, channelID string) (*models.SyncRun, error) {
	runs, err := r.List(ctx, map[string]any{"owner_id": ownerID, "channel_id": channelID, "limit": 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, notFound("sync run for channel", channelID)
	}
	return runs[0], nil
}

func scanSyncRun(s scanner) (*models.SyncRun, error) {
	var (
		run          models.SyncRun
		kind         string
		state        string
		class        string
		errorMessage sql.NullString
	)
	err := s.Scan(
		&run.ID, &run.Sequence, &run.JobID, &kind, &run.ChannelID, &run.OwnerID, &run.Attempt,
		&state, &class, &errorMessage,
		&run.VideosInserted, &run.VideosUpdated, &run.VideosUnchanged,
		&run.PlaylistsInserted, &run.PlaylistsUpdated, &run.PlaylistsUnchanged, &run.PlaylistsDeactivated,
		&run.ItemErrors, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Kind = models.JobKind(kind)
	run.State = models.JobState(state)
	run.ErrorClass = models.ErrorClass(class)
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
