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

// CreateAsset inserts an uploaded asset
func CreateAsset(ctx context.Context, db sqlx.ExtContext, asset *models.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	asset.CreatedAt = time.Now().UTC()

	_, err := sqlx.NamedExecContext(ctx, db, `INSERT INTO assets (id, owner_id, device_asset_id, device_id, original_path,
			original_file_name, checksum, file_created_at, file_modified_at, created_at)
		VALUES (:id, :owner_id, :device_asset_id, :device_id, :original_path,
			:original_file_name, :checksum, :file_created_at, :file_modified_at, :created_at)`, asset)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// GetAssetIDByChecksum finds the asset of ownerID with the given checksum
func GetAssetIDByChecksum(ctx context.Context, db sqlx.QueryerContext, ownerID, checksum string) (string, error) {
	var id string
	err := sqlx.GetContext(ctx, db, &id, "SELECT id FROM assets WHERE owner_id = ? AND checksum = ?", ownerID, checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query asset: %w", err)
	}
	return id, nil
}

// GetAssetIDsByChecksums maps each known checksum of ownerID to its asset id
func GetAssetIDsByChecksums(ctx context.Context, db sqlx.QueryerContext, ownerID string, checksums []string) (map[string]string, error) {
	found := make(map[string]string, len(checksums))
	if len(checksums) == 0 {
		return found, nil
	}

	query, args, err := sqlx.In("SELECT id, checksum FROM assets WHERE owner_id = ? AND checksum IN (?)", ownerID, checksums)
	if err != nil {
		return nil, fmt.Errorf("build asset query: %w", err)
	}

	var rows []struct {
		ID       string `db:"id"`
		Checksum string `db:"checksum"`
	}
	if err := sqlx.SelectContext(ctx, db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	for _, row := range rows {
		found[row.Checksum] = row.ID
	}
	return found, nil
}
