package models

import "time"

// Asset is an uploaded photo or video
type Asset struct {
	ID               string    `json:"id" db:"id"`
	OwnerID          string    `json:"ownerId" db:"owner_id"`
	DeviceAssetID    string    `json:"deviceAssetId" db:"device_asset_id"`
	DeviceID         string    `json:"deviceId" db:"device_id"`
	OriginalPath     string    `json:"originalPath" db:"original_path"`
	OriginalFileName string    `json:"originalFileName" db:"original_file_name"`
	Checksum         string    `json:"checksum" db:"checksum"` // sha1, hex
	FileCreatedAt    time.Time `json:"fileCreatedAt" db:"file_created_at"`
	FileModifiedAt   time.Time `json:"fileModifiedAt" db:"file_modified_at"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// AssetBulkUploadCheckItem pairs a client-side id (usually the local path) with a checksum
type AssetBulkUploadCheckItem struct {
	ID       string `json:"id" validate:"required"`
	Checksum string `json:"checksum" validate:"required"`
}

// AssetBulkUploadCheck is the POST /asset/bulk-upload-check body
type AssetBulkUploadCheck struct {
	Assets []AssetBulkUploadCheckItem `json:"assets" validate:"required,dive"`
}

const (
	UploadActionAccept = "accept"
	UploadActionReject = "reject"

	UploadReasonDuplicate = "duplicate"
)

// AssetBulkUploadCheckResult tells the client whether one item still needs uploading
type AssetBulkUploadCheckResult struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Reason  string `json:"reason,omitempty"`
	AssetID string `json:"assetId,omitempty"`
}

// AssetBulkUploadCheckResponse answers a bulk check, one result per item, in order
type AssetBulkUploadCheckResponse struct {
	Results []AssetBulkUploadCheckResult `json:"results"`
}

// AssetFileUploadResponse is returned by POST /asset/upload
type AssetFileUploadResponse struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}
