package models

import "time"

// UserToken is one active login session (a "device")
// Only the sha256 hash of the opaque token is stored
type UserToken struct {
	ID         string    `json:"id" db:"id"`
	Token      string    `json:"-" db:"token"`
	UserID     string    `json:"userId" db:"user_id"`
	DeviceType string    `json:"deviceType" db:"device_type"`
	DeviceOS   string    `json:"deviceOS" db:"device_os"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// APIKey is a long-lived credential used by the command line client
type APIKey struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Key       string    `json:"-" db:"key"`
	UserID    string    `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// APIKeyCreateRequest is the POST /api-key body
type APIKeyCreateRequest struct {
	Name string `json:"name" validate:"omitempty,max=255"`
}

func (r *APIKeyCreateRequest) Normalize() {
	if r.Name == "" {
		r.Name = "API Key"
	}
}

// APIKeyResponse describes a key without its secret
type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// APIKeyCreateResponse carries the plaintext secret; it is shown exactly once
type APIKeyCreateResponse struct {
	Secret string         `json:"secret"`
	APIKey APIKeyResponse `json:"apiKey"`
}

// MapAPIKey converts a key record into its response shape
func MapAPIKey(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		CreatedAt: FormatTimestamp(key.CreatedAt),
		UpdatedAt: FormatTimestamp(key.UpdatedAt),
	}
}
