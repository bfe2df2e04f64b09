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

// FolderRepository persists [models.Folder].
type FolderRepository struct {
	db DBTX
}

// NewFolderRepository creates a new [FolderRepository] with the given database connection
func NewFolderRepository(db DBTX) *FolderRepository {
	return &FolderRepository{db: db}
}

// Create inserts a folder at the end of its owner's list.
//
// A parent folder, when given, must belong to the same owner.
func (r *FolderRepository) Create(ctx context.Context, f *models.Folder) error {
	if err := f.Validate(); err != nil {
		return err
	}

	if f.ParentID != "" {
		parent, err := r.Get(ctx, f.OwnerID, f.ParentID)
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: parent folder %s", shared.ErrOwnerMismatch, f.ParentID)
		}
		if err != nil {
			return err
		}
		f.ParentID = parent.ID
	}

	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM folders WHERE owner_id = ?`, f.OwnerID).Scan(&last); err != nil {
		return fmt.Errorf("failed to read folder position: %w", err)
	}

	now := time.Now().UTC()
	f.ID = shared.GenerateID()
	f.Position = int(last.Int64) + 1
	f.CreatedAt, f.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO folders (id, owner_id, parent_id, name, icon_key, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, nullString(f.ParentID), f.Name, f.IconKey, f.Position, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert folder", err)
	}
	return nil
}

// Get retrieves a folder by owner and ID
func (r *FolderRepository) Get(ctx context.Context, ownerID, id string) (*models.Folder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, parent_id, name, icon_key, position, created_at, updated_at
		FROM folders WHERE owner_id = ? AND id = ?`, ownerID, id)

	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("folder", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan folder: %w", err)
	}
	return f, nil
}

// List returns an owner's folders in display order
func (r *FolderRepository) List(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, parent_id, name, icon_key, position, created_at, updated_at
		FROM folders WHERE owner_id = ? ORDER BY position`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// Rename changes a folder's display name
func (r *FolderRepository) Rename(ctx context.Context, ownerID, id, name string) error {
	f := models.Folder{ID: id, OwnerID: ownerID, Name: name}
	if err := f.Validate(); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE folders SET name = ?, updated_at = ? WHERE owner_id = ? AND id = ?`,
		name, time.Now().UTC(), ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to rename folder: %w", err)
	}
	return checkAffected(result, "folder", id)
}

// Delete removes a folder. Its channels and child folders are detached, not deleted.
func (r *FolderRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return checkAffected(result, "folder", id)
}

func scanFolder(s scanner) (*models.Folder, error) {
	var (
		f        models.Folder
		parentID sql.NullString
	)
	if err := s.Scan(
		&f.ID, &f.OwnerID, &parentID, &f.Name, &f.IconKey, &f.Position, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.ParentID = parentID.String
	return &f, nil
}
