package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// UserRepository persists [models.User] owners.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with generated ID and sequence
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	sequence, err := NextSequence(ctx, r.db, "users")
	if err != nil {
		return err
	}

	user.ID = shared.GenerateID()
	user.Sequence = sequence

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, sequence, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, sequence, user.Email, user.Name, user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrapWriteErr("insert user", err)
	}
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, sequence, email, name, created_at, updated_at FROM users WHERE id = ?`, id)
	return r.scan(row, id)
}

// GetByEmail retrieves a user by email address
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, sequence, email, name, created_at, updated_at FROM users WHERE email = ?`, email)
	return r.scan(row, email)
}

// Ensure returns the user with email, creating it on first use.
func (r *UserRepository) Ensure(ctx context.Context, email string) (*models.User, error) {
	user, err := r.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	user = models.NewUser(email, "")
	if err := r.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) scan(row *sql.Row, key string) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Sequence, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}
