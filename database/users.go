package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"immich-service/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

const userColumns = `id, email, password, first_name, last_name, profile_image_path,
	is_admin, should_change_password, oauth_id, created_at, updated_at`

// CreateUser inserts user, assigning an id and timestamps; the email is expected to be normalized already
func CreateUser(ctx context.Context, db sqlx.ExtContext, user *models.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := sqlx.NamedExecContext(ctx, db, `INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :password, :first_name, :last_name, :profile_image_path,
			:is_admin, :should_change_password, :oauth_id, :created_at, :updated_at)`, user)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func getUser(ctx context.Context, db sqlx.QueryerContext, where string, arg interface{}) (*models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, db, &user, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// GetUserByID loads a user by primary key
func GetUserByID(ctx context.Context, db sqlx.QueryerContext, id string) (*models.User, error) {
	return getUser(ctx, db, "id = ?", id)
}

// GetUserByEmail loads a user by (normalized) email
func GetUserByEmail(ctx context.Context, db sqlx.QueryerContext, email string) (*models.User, error) {
	return getUser(ctx, db, "email = ?", email)
}

// GetUserByOAuthID loads the user linked to an OAuth subject
func GetUserByOAuthID(ctx context.Context, db sqlx.QueryerContext, oauthID string) (*models.User, error) {
	if oauthID == "" {
		return nil, ErrNotFound
	}
	return getUser(ctx, db, "oauth_id = ?", oauthID)
}

// AdminExists reports whether any admin account has been created
func AdminExists(ctx context.Context, db sqlx.QueryerContext) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, db, &count, "SELECT COUNT(*) FROM users WHERE is_admin = 1"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// UpdateUserPassword stores a new password hash and clears the change-password flag
func UpdateUserPassword(ctx context.Context, db sqlx.ExecerContext, id, hash string) error {
	return updateUser(ctx, db, "UPDATE users SET password = ?, should_change_password = 0, updated_at = ? WHERE id = ?",
		hash, time.Now().UTC(), id)
}

// LinkUserOAuth attaches an OAuth subject to an existing user
func LinkUserOAuth(ctx context.Context, db sqlx.ExecerContext, id, oauthID string) error {
	return updateUser(ctx, db, "UPDATE users SET oauth_id = ?, updated_at = ? WHERE id = ?",
		oauthID, time.Now().UTC(), id)
}

func updateUser(ctx context.Context, db sqlx.ExecerContext, query string, args ...interface{}) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every user, newest first
func ListUsers(ctx context.Context, db sqlx.QueryerContext) ([]models.User, error) {
	users := []models.User{}
	if err := sqlx.SelectContext(ctx, db, &users, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return users, nil
}

// UserChanges lists the columns UpdateUser may set; nil means unchanged
type UserChanges struct {
	Email                *string
	Password             *string // already hashed
	FirstName            *string
	LastName             *string
	IsAdmin              *bool
	ShouldChangePassword *bool
}

// UpdateUser applies the non-nil changes to user id
func UpdateUser(ctx context.Context, db sqlx.ExecerContext, id string, changes UserChanges) error {
	setParts := []string{}
	args := []interface{}{}

	add := func(column string, value interface{}) {
		setParts = append(setParts, column+" = ?")
		args = append(args, value)
	}
	if changes.Email != nil {
		add("email", *changes.Email)
	}
	if changes.Password != nil {
		add("password", *changes.Password)
	}
	if changes.FirstName != nil {
		add("first_name", *changes.FirstName)
	}
	if changes.LastName != nil {
		add("last_name", *changes.LastName)
	}
	if changes.IsAdmin != nil {
		add("is_admin", *changes.IsAdmin)
	}
	if changes.ShouldChangePassword != nil {
		add("should_change_password", *changes.ShouldChangePassword)
	}
	if len(setParts) == 0 {
		return nil
	}

	add("updated_at", time.Now().UTC())
	args = append(args, id)
	return updateUser(ctx, db, "UPDATE users SET "+strings.Join(setParts, ", ")+" WHERE id = ?", args...)
}

// UserCredentialHashes returns the session token and API key hashes of a user
func UserCredentialHashes(ctx context.Context, db sqlx.QueryerContext, userID string) ([]string, error) {
	var hashes []string
	if err := sqlx.SelectContext(ctx, db, &hashes, "SELECT token FROM user_token WHERE user_id = ?", userID); err != nil {
		return nil, fmt.Errorf("select user tokens: %w", err)
	}
	var keyHashes []string
	if err := sqlx.SelectContext(ctx, db, &keyHashes, "SELECT key FROM api_keys WHERE user_id = ?", userID); err != nil {
		return nil, fmt.Errorf("select api keys: %w", err)
	}
	return append(hashes, keyHashes...), nil
}

// DeleteUser removes a user with their sessions, API keys and asset records.
// The returned token hashes are for cache eviction.
func DeleteUser(ctx context.Context, db *sqlx.DB, id string) ([]string, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	hashes, err := UserCredentialHashes(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	for _, query := range []string{
		"DELETE FROM user_token WHERE user_id = ?",
		"DELETE FROM api_keys WHERE user_id = ?",
		"DELETE FROM assets WHERE owner_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return nil, fmt.Errorf("delete user data: %w", err)
		}
	}
	if err := updateUser(ctx, tx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return hashes, nil
}
