package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

const channelColumns = `
	id, sequence, owner_id, external_id, title, handle, description, thumbnail_url,
	uploads_playlist_id, is_favorited, folder_id, last_synced_at, unreachable_at,
	created_at, updated_at`

// ChannelRepository persists [models.Channel]. Every method except [ChannelRepository.ListForSweep] is owner-scoped.
type ChannelRepository struct {
	db DBTX
}

// NewChannelRepository creates a new [ChannelRepository] with the given database connection
func NewChannelRepository(db DBTX) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Create inserts a channel with generated ID and sequence.
//
// A second channel with the same (owner, external id) fails with [shared.ErrConflict].
func (r *ChannelRepository) Create(ctx context.Context, c *models.Channel) error {
	if err := c.Validate(); err != nil {
		return err
	}

	sequence, err := NextSequence(ctx, r.db, "channels")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	c.ID = shared.GenerateID()
	c.Sequence = sequence
	c.CreatedAt, c.UpdatedAt = now, now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Sequence, c.OwnerID, c.ExternalID, c.Title, c.Handle, c.Description, c.ThumbnailURL,
		c.UploadsPlaylistID, c.IsFavorited, nullString(c.FolderID), nullTime(c.LastSyncedAt), nullTime(c.UnreachableAt),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert channel", err)
	}
	return nil
}

// Get retrieves a channel by owner and ID.
func (r *ChannelRepository) Get(ctx context.Context, ownerID, id string) (*models.Channel, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE owner_id = ? AND id = ?`, ownerID, id)
	return r.scanOne(row, id)
}

// GetByExternalID retrieves a channel by owner and external platform ID.
func (r *ChannelRepository) GetByExternalID(ctx context.Context, ownerID, externalID string) (*models.Channel, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE owner_id = ? AND external_id = ?`, ownerID, externalID)
	return r.scanOne(row, externalID)
}

// List retrieves an owner's channels matching criteria, ordered by sequence.
//
// Supported criteria: "folder_id" (string), "is_favorited" (bool), "unreachable" (bool).
func (r *ChannelRepository) List(ctx context.Context, ownerID string, criteria map[string]any) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE owner_id = ?`
	args := []any{ownerID}

	if folderID, ok := criteria["folder_id"].(string); ok && folderID != "" {
		query += " AND folder_id = ?"
		args = append(args, folderID)
	}
	if fav, ok := criteria["is_favorited"].(bool); ok {
		query += " AND is_favorited = ?"
		args = append(args, fav)
	}
	if unreachable, ok := criteria["unreachable"].(bool); ok {
		if unreachable {
			query += " AND unreachable_at IS NOT NULL"
		} else {
			query += " AND unreachable_at IS NULL"
		}
	}
	query += " ORDER BY sequence"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return channels, nil
}

// ListForSweep enumerates every channel of every owner in sequence order.
//
// This is the only cross-owner read; it returns identities only.
func (r *ChannelRepository) ListForSweep(ctx context.Context) ([]models.ChannelRef, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, owner_id, sequence FROM channels ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate channels: %w", err)
	}
	defer rows.Close()

	var refs []models.ChannelRef
	for rows.Next() {
		var ref models.ChannelRef
		if err := rows.Scan(&ref.ID, &ref.OwnerID, &ref.Sequence); err != nil {
			return nil, fmt.Errorf("failed to scan channel ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// UpdateMetadata writes the sync-owned display fields of c.
func (r *ChannelRepository) UpdateMetadata(ctx context.Context, c *models.Channel) error {
	c.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE channels
		SET title = ?, handle = ?, description = ?, thumbnail_url = ?, uploads_playlist_id = ?, updated_at = ?
		WHERE owner_id = ? AND id = ?`,
		c.Title, c.Handle, c.Description, c.ThumbnailURL, c.UploadsPlaylistID, c.UpdatedAt,
		c.OwnerID, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	return checkAffected(result, "channel", c.ID)
}

// MarkSynced records a successful sync and clears any unreachable mark.
func (r *ChannelRepository) MarkSynced(ctx context.Context, ownerID, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET last_synced_at = ?, unreachable_at = NULL WHERE owner_id = ? AND id = ?`,
		at.UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to mark channel synced: %w", err)
	}
	return checkAffected(result, "channel", id)
}

// MarkUnreachable flags a channel the source reported as gone.
func (r *ChannelRepository) MarkUnreachable(ctx context.Context, ownerID, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET unreachable_at = ? WHERE owner_id = ? AND id = ?`, at.UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to mark channel unreachable: %w", err)
	}
	return checkAffected(result, "channel", id)
}

// SetFavorite toggles the user's favorite flag.
func (r *ChannelRepository) SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET is_favorited = ?, updated_at = ? WHERE owner_id = ? AND id = ?`,
		favorite, time.Now().UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	return checkAffected(result, "channel", id)
}

// MoveToFolder assigns a channel to folderID, or removes it from its folder when folderID is empty.
//
// The folder must belong to the channel's owner.
func (r *ChannelRepository) MoveToFolder(ctx context.Context, ownerID, id, folderID string) error {
	if folderID != "" {
		var folderOwner string
		err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM folders WHERE id = ?`, folderID).Scan(&folderOwner)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("folder", folderID)
		}
		if err != nil {
			return fmt.Errorf("failed to look up folder: %w", err)
		}
		if folderOwner != ownerID {
			return fmt.Errorf("%w: folder %s belongs to another owner", shared.ErrOwnerMismatch, folderID)
		}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET folder_id = ?, updated_at = ? WHERE owner_id = ? AND id = ?`,
		nullString(folderID), time.Now().UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to move channel: %w", err)
	}
	return checkAffected(result, "channel", id)
}

// Delete removes a channel. Videos, system playlists and memberships cascade.
func (r *ChannelRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return checkAffected(result, "channel", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(s scanner) (*models.Channel, error) {
	var (
		c             models.Channel
		folderID      sql.NullString
		lastSyncedAt  sql.NullTime
		unreachableAt sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.Sequence, &c.OwnerID, &c.ExternalID, &c.Title, &c.Handle, &c.Description, &c.ThumbnailURL,
		&c.UploadsPlaylistID, &c.IsFavorited, &folderID, &lastSyncedAt, &unreachableAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.FolderID = folderID.String
	c.LastSyncedAt = timePtr(lastSyncedAt)
	c.UnreachableAt = timePtr(unreachableAt)
	return &c, nil
}

// scanOne scans a single [sql.Row] into a [models.Channel]
func (r *ChannelRepository) scanOne(row *sql.Row, key string) (*models.Channel, error) {
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("channel", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan channel: %w", err)
	}
	return c, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Channel]
func (r *ChannelRepository) scanRow(rows *sql.Rows) (*models.Channel, error) {
	c, err := scanChannel(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan channel: %w", err)
	}
	return c, nil
}
