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

const playlistColumns = `
	p.id, p.owner_id, p.kind, p.title, p.description, p.thumbnail_url, p.channel_id, p.external_id,
	p.source_active, p.current_position, p.last_synced_at, p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM playlist_items pi WHERE pi.playlist_id = p.id)`

// PlaylistRepository persists [models.Playlist] and its [models.PlaylistItem] membership.
//
// Manual playlists are user-owned. System playlists mirror a channel's external playlists and
// are only written by reconciliation.
type PlaylistRepository struct {
	db DBTX
}

// NewPlaylistRepository creates a new [PlaylistRepository] with the given database connection
func NewPlaylistRepository(db DBTX) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// CreateManual inserts a user-curated playlist.
func (r *PlaylistRepository) CreateManual(ctx context.Context, p *models.Playlist) error {
	p.Kind = models.PlaylistManual
	p.SourceActive = true
	return r.insert(ctx, p)
}

// InsertSystem inserts a mirror of an external playlist.
//
// A second mirror of the same (owner, channel, external id) fails with [shared.ErrConflict].
func (r *PlaylistRepository) InsertSystem(ctx context.Context, p *models.Playlist) error {
	p.Kind = models.PlaylistSystem
	p.SourceActive = true
	return r.insert(ctx, p)
}

func (r *PlaylistRepository) insert(ctx context.Context, p *models.Playlist) error {
	if err := p.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	p.ID = shared.GenerateID()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playlists (
			id, owner_id, kind, title, description, thumbnail_url, channel_id, external_id,
			source_active, current_position, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, string(p.Kind), p.Title, p.Description, p.ThumbnailURL,
		nullString(p.ChannelID), nullString(p.ExternalID),
		p.SourceActive, p.CurrentPosition, nullTime(p.LastSyncedAt), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert playlist", err)
	}
	return nil
}

// Get retrieves a playlist by owner and ID.
func (r *PlaylistRepository) Get(ctx context.Context, ownerID, id string) (*models.Playlist, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists p WHERE p.owner_id = ? AND p.id = ?`, ownerID, id)
	return r.scanOne(row, id)
}

// GetSystem retrieves the mirror of a channel's external playlist.
func (r *PlaylistRepository) GetSystem(ctx context.Context, ownerID, channelID, externalID string) (*models.Playlist, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+playlistColumns+` FROM playlists p
		WHERE p.owner_id = ? AND p.kind = 'system' AND p.channel_id = ? AND p.external_id = ?`,
		ownerID, channelID, externalID)
	return r.scanOne(row, externalID)
}

// List retrieves an owner's playlists ordered by title.
//
// Supported criteria: "kind" (string), "channel_id" (string), "source_active" (bool).
func (r *PlaylistRepository) List(ctx context.Context, ownerID string, criteria map[string]any) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists p WHERE p.owner_id = ?`
	args := []any{ownerID}

	if kind, ok := criteria["kind"].(string); ok && kind != "" {
		query += " AND p.kind = ?"
		args = append(args, kind)
	}
	if channelID, ok := criteria["channel_id"].(string); ok && channelID != "" {
		query += " AND p.channel_id = ?"
		args = append(args, channelID)
	}
	if active, ok := criteria["source_active"].(bool); ok {
		query += " AND p.source_active = ?"
		args = append(args, active)
	}
	query += " ORDER BY p.title, p.created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return playlists, nil
}

// ListSystemForChannel returns every mirror belonging to a channel, active or not.
func (r *PlaylistRepository) ListSystemForChannel(ctx context.Context, ownerID, channelID string) ([]*models.Playlist, error) {
	return r.List(ctx, ownerID, map[string]any{"kind": string(models.PlaylistSystem), "channel_id": channelID})
}

// UpdateSystemMetadata writes the display fields of a mirror, reactivates it and stamps the sync time.
func (r *PlaylistRepository) UpdateSystemMetadata(ctx context.Context, p *models.Playlist, syncedAt time.Time) error {
	synced := syncedAt.UTC()
	p.UpdatedAt = synced
	p.LastSyncedAt = &synced
	p.SourceActive = true

	result, err := r.db.ExecContext(ctx, `
		UPDATE playlists
		SET title = ?, description = ?, thumbnail_url = ?, source_active = 1, last_synced_at = ?, updated_at = ?
		WHERE owner_id = ? AND id = ? AND kind = 'system'`,
		p.Title, p.Description, p.ThumbnailURL, synced, synced, p.OwnerID, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	return checkAffected(result, "playlist", p.ID)
}

// Touch stamps the sync time of a mirror without changing anything else.
func (r *PlaylistRepository) Touch(ctx context.Context, ownerID, id string, syncedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE playlists SET last_synced_at = ? WHERE owner_id = ? AND id = ?`, syncedAt.UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to touch playlist: %w", err)
	}
	return checkAffected(result, "playlist", id)
}

// SetSourceActive flags whether the external playlist still exists upstream and stamps the sync time.
func (r *PlaylistRepository) SetSourceActive(ctx context.Context, ownerID, id string, active bool, syncedAt time.Time) error {
	synced := syncedAt.UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE playlists SET source_active = ?, last_synced_at = ?, updated_at = ? WHERE owner_id = ? AND id = ?`,
		active, synced, synced, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	return checkAffected(result, "playlist", id)
}

// Items returns the membership of a playlist in position order, joined with video identity.
func (r *PlaylistRepository) Items(ctx context.Context, ownerID, playlistID string) ([]models.PlaylistItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pi.playlist_id, pi.video_id, pi.position, pi.added_at, v.external_id, v.title
		FROM playlist_items pi
		JOIN playlists p ON p.id = pi.playlist_id
		JOIN videos v ON v.id = pi.video_id
		WHERE pi.playlist_id = ? AND p.owner_id = ?
		ORDER BY pi.position`, playlistID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist items: %w", err)
	}
	defer rows.Close()

	var items []models.PlaylistItem
	for rows.Next() {
		var item models.PlaylistItem
		if err := rows.Scan(
			&item.PlaylistID, &item.VideoID, &item.Position, &item.AddedAt, &item.VideoExternalID, &item.VideoTitle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan playlist item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReplaceItems rewrites the membership of a playlist to exactly videoIDs, in order.
//
// Positions are assigned as multiples of [models.PositionGap]. Videos already present keep their added_at.
// The playlist and every video must belong to ownerID.
func (r *PlaylistRepository) ReplaceItems(
	ctx context.Context, ownerID, playlistID string, videoIDs []string, now time.Time,
) error {
	var owned int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM playlists WHERE owner_id = ? AND id = ?`, ownerID, playlistID,
	).Scan(&owned); err != nil {
		return fmt.Errorf("failed to look up playlist: %w", err)
	}
	if owned == 0 {
		return notFound("playlist", playlistID)
	}

	existing, err := r.Items(ctx, ownerID, playlistID)
	if err != nil {
		return err
	}
	addedAt := make(map[string]time.Time, len(existing))
	for _, item := range existing {
		addedAt[item.VideoID] = item.AddedAt
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM playlist_items WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("failed to clear playlist items: %w", err)
	}

	for i, videoID := range videoIDs {
		added, ok := addedAt[videoID]
		if !ok {
			added = now.UTC()
		}
		position := int64(i+1) * models.PositionGap
		result, err := r.db.ExecContext(ctx, `
			INSERT INTO playlist_items (playlist_id, video_id, position, added_at)
			SELECT ?, id, ?, ? FROM videos WHERE id = ? AND owner_id = ?`,
			playlistID, position, added.UTC(), videoID, ownerID,
		)
		if err != nil {
			return wrapWriteErr("insert playlist item", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: video %s is not owned by %s", shared.ErrOwnerMismatch, videoID, ownerID)
		}
	}
	return nil
}

// AddItem appends a video to the end of a manual playlist.
//
// Both the playlist and the video must belong to ownerID; tombstoned videos cannot be added.
func (r *PlaylistRepository) AddItem(ctx context.Context, ownerID, playlistID, videoID string) error {
	p, err := r.Get(ctx, ownerID, playlistID)
	if err != nil {
		return err
	}
	if p.Kind != models.PlaylistManual {
		return fmt.Errorf("%w: playlist %s is managed by sync", shared.ErrInvalidInput, playlistID)
	}

	var videoOwner string
	err = r.db.QueryRowContext(ctx,
		`SELECT owner_id FROM videos WHERE id = ? AND deleted_at IS NULL`, videoID).Scan(&videoOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("video", videoID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up video: %w", err)
	}
	if videoOwner != ownerID {
		return fmt.Errorf("%w: video %s belongs to another owner", shared.ErrOwnerMismatch, videoID)
	}

	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM playlist_items WHERE playlist_id = ?`, playlistID,
	).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last position: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO playlist_items (playlist_id, video_id, position, added_at) VALUES (?, ?, ?, ?)`,
		playlistID, videoID, last.Int64+models.PositionGap, time.Now().UTC(),
	)
	if err != nil {
		return wrapWriteErr("add playlist item", err)
	}
	return nil
}

// RemoveItem removes a video from a manual playlist.
func (r *PlaylistRepository) RemoveItem(ctx context.Context, ownerID, playlistID, videoID string) error {
	p, err := r.Get(ctx, ownerID, playlistID)
	if err != nil {
		return err
	}
	if p.Kind != models.PlaylistManual {
		return fmt.Errorf("%w: playlist %s is managed by sync", shared.ErrInvalidInput, playlistID)
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM playlist_items WHERE playlist_id = ? AND video_id = ?`, playlistID, videoID)
	if err != nil {
		return fmt.Errorf("failed to remove playlist item: %w", err)
	}
	return checkAffected(result, "playlist item", videoID)
}

// Delete removes a manual playlist and its membership.
func (r *PlaylistRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM playlists WHERE owner_id = ? AND id = ? AND kind = 'manual'`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return checkAffected(result, "manual playlist", id)
}

func (r *PlaylistRepository) scanOne(row *sql.Row, key string) (*models.Playlist, error) {
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("playlist", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}
	return p, nil
}

func scanPlaylist(s scanner) (*models.Playlist, error) {
	var (
		p            models.Playlist
		kind         string
		channelID    sql.NullString
		externalID   sql.NullString
		lastSyncedAt sql.NullTime
	)
	err := s.Scan(
		&p.ID, &p.OwnerID, &kind, &p.Title, &p.Description, &p.ThumbnailURL, &channelID, &externalID,
		&p.SourceActive, &p.CurrentPosition, &lastSyncedAt, &p.CreatedAt, &p.UpdatedAt,
		&p.ItemCount,
	)
	if err != nil {
		return nil, err
	}

	p.Kind = models.PlaylistKind(kind)
	p.ChannelID = channelID.String
	p.ExternalID = externalID.String
	p.LastSyncedAt = timePtr(lastSyncedAt)
	return &p, nil
}
