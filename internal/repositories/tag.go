package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// TagRepository persists user [models.Tag] labels and their attachment to videos.
type TagRepository struct {
	db DBTX
}

// NewTagRepository creates a new [TagRepository] with the given database connection
func NewTagRepository(db DBTX) *TagRepository {
	return &TagRepository{db: db}
}

// Create inserts a tag. Names are trimmed and unique per owner.
func (r *TagRepository) Create(ctx context.Context, tag *models.Tag) error {
	tag.Name = strings.TrimSpace(tag.Name)
	if err := tag.Validate(); err != nil {
		return err
	}

	tag.ID = shared.GenerateID()
	tag.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)`,
		tag.ID, tag.OwnerID, tag.Name, tag.CreatedAt)
	if err != nil {
		return wrapWriteErr("insert tag", err)
	}
	return nil
}

// GetByName retrieves a tag by owner and name
func (r *TagRepository) GetByName(ctx context.Context, ownerID, name string) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at FROM tags WHERE owner_id = ? AND name = ?`,
		ownerID, strings.TrimSpace(name),
	).Scan(&tag.ID, &tag.OwnerID, &tag.Name, &tag.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("tag", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tag: %w", err)
	}
	return &tag, nil
}

// Ensure returns the owner's tag called name, creating it when missing.
func (r *TagRepository) Ensure(ctx context.Context, ownerID, name string) (*models.Tag, error) {
	tag, err := r.GetByName(ctx, ownerID, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	tag = &models.Tag{OwnerID: ownerID, Name: name}
	if err := r.Create(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// List returns an owner's tags by name
func (r *TagRepository) List(ctx context.Context, ownerID string) ([]*models.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, created_at FROM tags WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.OwnerID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &tag)
	}
	return tags, rows.Err()
}

// Attach labels a live video with a tag. Tag and video must share the owner.
//
// Attaching twice is a no-op.
func (r *TagRepository) Attach(ctx context.Context, ownerID, videoID, tagID string) error {
	var tagOwner, videoOwner string
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM tags WHERE id = ?`, tagID).Scan(&tagOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("tag", tagID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up tag: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT owner_id FROM videos WHERE id = ? AND deleted_at IS NULL`, videoID).Scan(&videoOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("video", videoID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up video: %w", err)
	}

	if tagOwner != ownerID || videoOwner != ownerID {
		return fmt.Errorf("%w: tag %s and video %s", shared.ErrOwnerMismatch, tagID, videoID)
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO video_tags (video_id, tag_id) VALUES (?, ?)`, videoID, tagID); err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// Detach removes a tag from a video
func (r *TagRepository) Detach(ctx context.Context, ownerID, videoID, tagID string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM video_tags
		WHERE video_id = ? AND tag_id = ? AND tag_id IN (SELECT id FROM tags WHERE owner_id = ?)`,
		videoID, tagID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return checkAffected(result, "video tag", tagID)
}

// ForVideo returns the names of the tags attached to a video, sorted
func (r *TagRepository) ForVideo(ctx context.Context, ownerID, videoID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM video_tags vt JOIN tags t ON t.id = vt.tag_id
		WHERE vt.video_id = ? AND t.owner_id = ?
		ORDER BY t.name`, videoID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query video tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
