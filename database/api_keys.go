package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"immich-service/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateAPIKey stores a key; key.Key must already be hashed
func CreateAPIKey(ctx context.Context, db sqlx.ExtContext, key *models.APIKey) error {
	now := time.Now().UTC()
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	key.CreatedAt = now
	key.UpdatedAt = now

	_, err := sqlx.NamedExecContext(ctx, db, `INSERT INTO api_keys (id, name, key, user_id, created_at, updated_at)
		VALUES (:id, :name, :key, :user_id, :created_at, :updated_at)`, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetUserByAPIKeyHash resolves a hashed API key to its owner
func GetUserByAPIKeyHash(ctx context.Context, db sqlx.QueryerContext, hash string) (*models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, db, &user, `SELECT u.id, u.email, u.password, u.first_name, u.last_name,
			u.profile_image_path, u.is_admin, u.should_change_password, u.oauth_id, u.created_at, u.updated_at
		FROM api_keys k JOIN users u ON u.id = k.user_id
		WHERE k.key = ?`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query api key: %w", err)
	}
	return &user, nil
}
