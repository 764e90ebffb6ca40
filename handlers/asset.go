package handlers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"immich-service/database"
	"immich-service/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"
)

const maxUploadMemory = 32 << 20

// AssetHandler accepts uploads from the command line client
// Files land in <uploadDir>/<userId>/<assetId><ext>; duplicates are detected by sha1
type AssetHandler struct {
	db        *sqlx.DB
	authn     *Authenticator
	uploadDir string
}

// NewAssetHandler creates the asset handler
func NewAssetHandler(db *sqlx.DB, authn *Authenticator, uploadDir string) *AssetHandler {
	return &AssetHandler{
		db:        db,
		authn:     authn,
		uploadDir: uploadDir,
	}
}

// BulkUploadCheck handles POST /asset/bulk-upload-check
// Each item is accepted unless the caller already owns an asset with that checksum
func (h *AssetHandler) BulkUploadCheck(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	var req models.AssetBulkUploadCheck
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	checksums := make([]string, 0, len(req.Assets))
	for _, item := range req.Assets {
		checksums = append(checksums, strings.ToLower(item.Checksum))
	}

	existing, err := database.GetAssetIDsByChecksums(ctx, h.db, session.User.ID, checksums)
	if err != nil {
		logRequest(ctx, "error", "Failed to check checksums", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	results := make([]models.AssetBulkUploadCheckResult, 0, len(req.Assets))
	for i, item := range req.Assets {
		if assetID, found := existing[checksums[i]]; found {
			results = append(results, models.AssetBulkUploadCheckResult{
				ID: item.ID, Action: models.UploadActionReject, Reason: models.UploadReasonDuplicate, AssetID: assetID,
			})
			continue
		}
		results = append(results, models.AssetBulkUploadCheckResult{ID: item.ID, Action: models.UploadActionAccept})
	}

	logRequest(ctx, "info", "Bulk upload check", zap.Int("count", len(results)), zap.Int("duplicates", len(existing)))
	writeJSON(w, http.StatusOK, models.AssetBulkUploadCheckResponse{Results: results})
}

// Upload handles POST /asset/upload (multipart, file in "assetData")
// Returns 201 for a new asset, 200 with duplicate=true when the checksum is already known
func (h *AssetHandler) Upload(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		logRequest(ctx, "error", "Invalid multipart body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("Invalid multipart body"))
		return
	}

	file, header, err := r.FormFile("assetData")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("assetData should not be empty"))
		return
	}
	defer file.Close()

	deviceAssetID := r.FormValue("deviceAssetId")
	deviceID := r.FormValue("deviceId")
	if deviceAssetID == "" || deviceID == "" {
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("deviceAssetId and deviceId should not be empty"))
		return
	}
	createdAt := parseFormTime(r.FormValue("fileCreatedAt"))
	modifiedAt := parseFormTime(r.FormValue("fileModifiedAt"))

	userDir := filepath.Join(h.uploadDir, session.User.ID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		logRequest(ctx, "error", "Failed to create upload dir", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Storage error"))
		return
	}

	tmpPath, checksum, err := saveWithChecksum(userDir, file)
	if err != nil {
		logRequest(ctx, "error", "Failed to store upload", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Storage error"))
		return
	}

	existingID, err := database.GetAssetIDByChecksum(ctx, h.db, session.User.ID, checksum)
	if err == nil {
		os.Remove(tmpPath)
		logRequest(ctx, "info", "Duplicate upload", zap.String("asset_id", existingID))
		writeJSON(w, http.StatusOK, models.AssetFileUploadResponse{ID: existingID, Duplicate: true})
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		os.Remove(tmpPath)
		logRequest(ctx, "error", "Failed to check duplicate", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	asset := models.Asset{
		ID:               uuid.NewString(),
		OwnerID:          session.User.ID,
		DeviceAssetID:    deviceAssetID,
		DeviceID:         deviceID,
		OriginalFileName: filepath.Base(header.Filename),
		Checksum:         checksum,
		FileCreatedAt:    createdAt,
		FileModifiedAt:   modifiedAt,
	}
	asset.OriginalPath = filepath.Join(userDir, asset.ID+strings.ToLower(filepath.Ext(header.Filename)))

	if err := os.Rename(tmpPath, asset.OriginalPath); err != nil {
		os.Remove(tmpPath)
		logRequest(ctx, "error", "Failed to move upload", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Storage error"))
		return
	}

	if err := database.CreateAsset(ctx, h.db, &asset); err != nil {
		os.Remove(asset.OriginalPath)
		logRequest(ctx, "error", "Failed to create asset", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	logRequest(ctx, "info", "Asset uploaded", zap.String("asset_id", asset.ID), zap.String("file", asset.OriginalFileName))
	writeJSON(w, http.StatusCreated, models.AssetFileUploadResponse{ID: asset.ID})
}

// saveWithChecksum copies src into a temp file under dir, hashing as it goes
func saveWithChecksum(dir string, src io.Reader) (string, string, error) {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}

	hasher := sha1.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", "", fmt.Errorf("close upload: %w", err)
	}

	return tmp.Name(), hex.EncodeToString(hasher.Sum(nil)), nil
}

func parseFormTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
