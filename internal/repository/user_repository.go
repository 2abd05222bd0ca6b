package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// UserRepository handles minimal user records. The full user lifecycle
// (auth, subscriptions) lives in the account service; this repository only
// guarantees a row exists before fingerprints and usage logs reference it.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert ensures a user row exists. Idempotent; safe under concurrent calls
// for the same id.
func (r *UserRepository) Upsert(ctx context.Context, userID string) error {
	query := `
		INSERT INTO users (id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// Exists reports whether a user row is present
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	if err := r.db.GetContext(ctx, &exists, query, userID); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}

	return exists, nil
}
