package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

const videoColumns = `
	id, owner_id, channel_id, external_id, title, description, published_at, duration_seconds,
	thumbnail_url, yt_tags, is_short, source_rank, is_favorited, is_watched,
	created_at, updated_at, deleted_at`

// VideoRepository persists [models.Video].
//
// Reads used by reconciliation include tombstoned rows so that a deleted video is recognised and left alone.
// Reads used for display exclude them unless asked.
type VideoRepository struct {
	db DBTX
}

// NewVideoRepository creates a new [VideoRepository] with the given database connection
func NewVideoRepository(db DBTX) *VideoRepository {
	return &VideoRepository{db: db}
}

// Insert writes a new video with a generated ID.
func (r *VideoRepository) Insert(ctx context.Context, v *models.Video) error {
	if err := v.Validate(); err != nil {
		return err
	}

	tags, err := encodeTags(v.Tags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	v.ID = shared.GenerateID()
	v.CreatedAt, v.UpdatedAt = now, now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.OwnerID, v.ChannelID, v.ExternalID, v.Title, v.Description, nullTime(v.PublishedAt), v.DurationSeconds,
		v.ThumbnailURL, tags, v.IsShort, int(v.SourceRank), v.IsFavorited, v.IsWatched,
		v.CreatedAt, v.UpdatedAt, nullTime(v.DeletedAt),
	)
	if err != nil {
		return wrapWriteErr("insert video", err)
	}
	return nil
}

// InsertStub creates a placeholder for a video known only by external ID, so playlist membership can reference it.
func (r *VideoRepository) InsertStub(ctx context.Context, ownerID, channelID, externalID string) (*models.Video, error) {
	v := &models.Video{
		OwnerID:    ownerID,
		ChannelID:  channelID,
		ExternalID: externalID,
		SourceRank: models.SourceStub,
	}
	if err := r.Insert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateSynced writes the sync-owned fields and source rank of v.
//
// Only rows owned by v.OwnerID are written. Tombstoned rows are never touched; updating one reports
// [shared.ErrNotFound].
func (r *VideoRepository) UpdateSynced(ctx context.Context, v *models.Video) error {
	tags, err := encodeTags(v.Tags)
	if err != nil {
		return err
	}

	v.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE videos
		SET title = ?, description = ?, published_at = ?, duration_seconds = ?, thumbnail_url = ?,
			yt_tags = ?, is_short = ?, source_rank = ?, updated_at = ?
		WHERE owner_id = ? AND id = ? AND deleted_at IS NULL`,
		v.Title, v.Description, nullTime(v.PublishedAt), v.DurationSeconds, v.ThumbnailURL,
		tags, v.IsShort, int(v.SourceRank), v.UpdatedAt,
		v.OwnerID, v.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	return checkAffected(result, "video", v.ID)
}

// GetByExternalID retrieves a channel's video by external ID, tombstoned or not.
func (r *VideoRepository) GetByExternalID(ctx context.Context, ownerID, channelID, externalID string) (*models.Video, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE owner_id = ? AND channel_id = ? AND external_id = ?`,
		ownerID, channelID, externalID)
	return r.scanOne(row, externalID)
}

// Get retrieves a live video by owner and ID.
func (r *VideoRepository) Get(ctx context.Context, ownerID, id string) (*models.Video, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE owner_id = ? AND id = ? AND deleted_at IS NULL`, ownerID, id)
	return r.scanOne(row, id)
}

// ExternalIDs returns every external ID stored for a channel, tombstones included.
func (r *VideoRepository) ExternalIDs(ctx context.Context, ownerID, channelID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT external_id FROM videos WHERE owner_id = ? AND channel_id = ?`, ownerID, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query video ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan video id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// List retrieves an owner's live videos, newest first.
//
// Supported criteria: "channel_id" (string), "is_short" (bool), "is_favorited" (bool), "is_watched" (bool),
// "tag" (string, a user tag name), "include_deleted" (bool), "limit" (int).
func (r *VideoRepository) List(ctx context.Context, ownerID string, criteria map[string]any) ([]*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE owner_id = ?`
	args := []any{ownerID}

	if include, _ := criteria["include_deleted"].(bool); !include {
		query += " AND deleted_at IS NULL"
	}
	if channelID, ok := criteria["channel_id"].(string); ok && channelID != "" {
		query += " AND channel_id = ?"
		args = append(args, channelID)
	}
	for _, flag := range []string{"is_short", "is_favorited", "is_watched"} {
		if v, ok := criteria[flag].(bool); ok {
			query += " AND " + flag + " = ?"
			args = append(args, v)
		}
	}
	if tag, ok := criteria["tag"].(string); ok && tag != "" {
		query += ` AND id IN (
			SELECT vt.video_id FROM video_tags vt JOIN tags t ON t.id = vt.tag_id
			WHERE t.owner_id = ? AND t.name = ?)`
		args = append(args, ownerID, tag)
	}
	query += " ORDER BY published_at DESC, created_at DESC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return videos, nil
}

// Delete tombstones a video and removes it from every playlist.
//
// The row is kept so later syncs recognise the external ID and do not bring it back.
func (r *VideoRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE videos SET deleted_at = ?, updated_at = ? WHERE owner_id = ? AND id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if err := checkAffected(result, "video", id); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM playlist_items WHERE video_id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove deleted video from playlists: %w", err)
	}
	return nil
}

// SetWatched records whether the user has watched a live video.
func (r *VideoRepository) SetWatched(ctx context.Context, ownerID, id string, watched bool) error {
	return r.setFlag(ctx, "is_watched", ownerID, id, watched)
}

// SetFavorite records whether the user starred a live video.
func (r *VideoRepository) SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error {
	return r.setFlag(ctx, "is_favorited", ownerID, id, favorite)
}

func (r *VideoRepository) setFlag(ctx context.Context, column, ownerID, id string, value bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE videos SET `+column+` = ?, updated_at = ? WHERE owner_id = ? AND id = ? AND deleted_at IS NULL`,
		value, time.Now().UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	return checkAffected(result, "video", id)
}

func (r *VideoRepository) scanOne(row *sql.Row, key string) (*models.Video, error) {
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("video", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}
	return v, nil
}

func scanVideo(s scanner) (*models.Video, error) {
	var (
		v           models.Video
		publishedAt sql.NullTime
		deletedAt   sql.NullTime
		tags        string
		rank        int
	)
	err := s.Scan(
		&v.ID, &v.OwnerID, &v.ChannelID, &v.ExternalID, &v.Title, &v.Description, &publishedAt, &v.DurationSeconds,
		&v.ThumbnailURL, &tags, &v.IsShort, &rank, &v.IsFavorited, &v.IsWatched,
		&v.CreatedAt, &v.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	v.PublishedAt = timePtr(publishedAt)
	v.DeletedAt = timePtr(deletedAt)
	v.SourceRank = models.SourceRank(rank)
	if err := json.Unmarshal([]byte(tags), &v.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of video %s: %w", v.ID, err)
	}
	return &v, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}
