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

// CreateUserToken records a new session; token.Token must already be hashed
func CreateUserToken(ctx context.Context, db sqlx.ExtContext, token *models.UserToken) error {
	now := time.Now().UTC()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.CreatedAt = now
	token.UpdatedAt = now

	_, err := sqlx.NamedExecContext(ctx, db, `INSERT INTO user_token (id, token, user_id, device_type, device_os, created_at, updated_at)
		VALUES (:id, :token, :user_id, :device_type, :device_os, :created_at, :updated_at)`, token)
	if err != nil {
		return fmt.Errorf("insert user token: %w", err)
	}
	return nil
}

// TokenOwner is a session joined with the user it belongs to
type TokenOwner struct {
	TokenID string `db:"token_id"`
	models.User
}

// GetUserByTokenHash resolves a hashed session token to its session id and user
func GetUserByTokenHash(ctx context.Context, db sqlx.QueryerContext, hash string) (*TokenOwner, error) {
	var owner TokenOwner
	err := sqlx.GetContext(ctx, db, &owner, `SELECT t.id AS token_id, u.id, u.email, u.password, u.first_name, u.last_name,
			u.profile_image_path, u.is_admin, u.should_change_password, u.oauth_id, u.created_at, u.updated_at
		FROM user_token t JOIN users u ON u.id = t.user_id
		WHERE t.token = ?`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user token: %w", err)
	}
	return &owner, nil
}

// ListUserTokens returns every session of a user, most recently used first
func ListUserTokens(ctx context.Context, db sqlx.QueryerContext, userID string) ([]models.UserToken, error) {
	tokens := []models.UserToken{}
	err := sqlx.SelectContext(ctx, db, &tokens, `SELECT id, token, user_id, device_type, device_os, created_at, updated_at
		FROM user_token WHERE user_id = ? ORDER BY updated_at DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user tokens: %w", err)
	}
	return tokens, nil
}

// DeleteUserToken removes one session of userID
func DeleteUserToken(ctx context.Context, db sqlx.ExecerContext, userID, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM user_token WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("delete user token: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOtherUserTokens removes every session of userID except keepID and returns their token hashes
func DeleteOtherUserTokens(ctx context.Context, db *sqlx.DB, userID, keepID string) ([]string, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var hashes []string
	if err := tx.SelectContext(ctx, &hashes, "SELECT token FROM user_token WHERE user_id = ? AND id != ?", userID, keepID); err != nil {
		return nil, fmt.Errorf("select user tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_token WHERE user_id = ? AND id != ?", userID, keepID); err != nil {
		return nil, fmt.Errorf("delete user tokens: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return hashes, nil
}

// GetUserTokenHash returns the stored hash of one session, for cache eviction
func GetUserTokenHash(ctx context.Context, db sqlx.QueryerContext, userID, id string) (string, error) {
	var hash string
	err := sqlx.GetContext(ctx, db, &hash, "SELECT token FROM user_token WHERE user_id = ? AND id = ?", userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query user token: %w", err)
	}
	return hash, nil
}

// TouchUserToken bumps updated_at so device lists show recent activity
func TouchUserToken(ctx context.Context, db sqlx.ExecerContext, id string) error {
	_, err := db.ExecContext(ctx, "UPDATE user_token SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch user token: %w", err)
	}
	return nil
}
