package models

import "time"

// User represents a user in the system
// Password is stored hashed (bcrypt); never returned in JSON responses
type User struct {
	ID                   string    `json:"id" db:"id"`
	Email                string    `json:"email" db:"email"`
	Password             string    `json:"-" db:"password"`
	FirstName            string    `json:"firstName" db:"first_name"`
	LastName             string    `json:"lastName" db:"last_name"`
	ProfileImagePath     string    `json:"profileImagePath" db:"profile_image_path"`
	IsAdmin              bool      `json:"isAdmin" db:"is_admin"`
	ShouldChangePassword bool      `json:"shouldChangePassword" db:"should_change_password"`
	OAuthID              string    `json:"oauthId" db:"oauth_id"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" db:"updated_at"`
}

// UserResponse is the outward shape of a user record for /users/me and friends
type UserResponse struct {
	ID                   string `json:"id"`
	Email                string `json:"email"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	ProfileImagePath     string `json:"profileImagePath"`
	IsAdmin              bool   `json:"isAdmin"`
	ShouldChangePassword bool   `json:"shouldChangePassword"`
	OAuthID              string `json:"oauthId"`
	CreatedAt            string `json:"createdAt"`
	UpdatedAt            string `json:"updatedAt"`
}

// MapUser converts a user record into its response shape
func MapUser(user User) UserResponse {
	return UserResponse{
		ID:                   user.ID,
		Email:                user.Email,
		FirstName:            user.FirstName,
		LastName:             user.LastName,
		ProfileImagePath:     user.ProfileImagePath,
		IsAdmin:              user.IsAdmin,
		ShouldChangePassword: user.ShouldChangePassword,
		OAuthID:              user.OAuthID,
		CreatedAt:            FormatTimestamp(user.CreatedAt),
		UpdatedAt:            FormatTimestamp(user.UpdatedAt),
	}
}

// FormatTimestamp renders t in UTC with millisecond precision, e.g. 2023-04-05T06:07:08.009Z
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// CreateUserRequest is the POST /users body (admin only)
type CreateUserRequest struct {
	LoginCredential
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// UpdateUserRequest is the PUT /users/{id} body; nil fields are left unchanged
type UpdateUserRequest struct {
	Email                *string `json:"email,omitempty" validate:"omitempty,loginemail"`
	Password             *string `json:"password,omitempty" validate:"omitempty,min=8"`
	FirstName            *string `json:"firstName,omitempty" validate:"omitempty,min=1"`
	LastName             *string `json:"lastName,omitempty" validate:"omitempty,min=1"`
	IsAdmin              *bool   `json:"isAdmin,omitempty"`
	ShouldChangePassword *bool   `json:"shouldChangePassword,omitempty"`
}

// Normalize lower-cases the email when one is given
func (r *UpdateUserRequest) Normalize() {
	if r.Email != nil {
		email := NormalizeEmail(*r.Email)
		r.Email = &email
	}
}
