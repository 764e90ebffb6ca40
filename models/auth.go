package models

import "strings"

// AuthUser is the identity resolved for a request from a session token or API key
type AuthUser struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	IsAdmin         bool    `json:"isAdmin"`
	IsPublicUser    *bool   `json:"isPublicUser,omitempty"`
	SharedLinkID    *string `json:"sharedLinkId,omitempty"`
	IsAllowUpload   *bool   `json:"isAllowUpload,omitempty"`
	IsAllowDownload *bool   `json:"isAllowDownload,omitempty"`
	IsShowMetadata  *bool   `json:"isShowMetadata,omitempty"`
	AccessTokenID   *string `json:"accessTokenId,omitempty"`
	ExternalPath    *string `json:"externalPath,omitempty"`
}

// LoginCredential is the POST /auth/login body
type LoginCredential struct {
	Email    string `json:"email" validate:"required,loginemail"`
	Password string `json:"password" validate:"required"`
}

// Normalize lower-cases the email so lookups and uniqueness are case-insensitive
func (c *LoginCredential) Normalize() {
	c.Email = NormalizeEmail(c.Email)
}

// NormalizeEmail lower-cases an address; applying it twice changes nothing
func NormalizeEmail(email string) string {
	return strings.ToLower(email)
}

// LoginResponse is returned by password and OAuth logins
type LoginResponse struct {
	AccessToken          string `json:"accessToken"`
	UserID               string `json:"userId"`
	UserEmail            string `json:"userEmail"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	ProfileImagePath     string `json:"profileImagePath"`
	IsAdmin              bool   `json:"isAdmin"`
	ShouldChangePassword bool   `json:"shouldChangePassword"`
}

// MapLoginResponse copies the user fields next to the freshly issued token.
// The token is passed through untouched.
func MapLoginResponse(user User, accessToken string) LoginResponse {
	return LoginResponse{
		AccessToken:          accessToken,
		UserID:               user.ID,
		UserEmail:            user.Email,
		FirstName:            user.FirstName,
		LastName:             user.LastName,
		IsAdmin:              user.IsAdmin,
		ProfileImagePath:     user.ProfileImagePath,
		ShouldChangePassword: user.ShouldChangePassword,
	}
}

// LogoutResponse is returned by POST /auth/logout
type LogoutResponse struct {
	Successful  bool   `json:"successful"`
	RedirectURI string `json:"redirectUri"`
}

// SignUp extends the login credential with a display name
type SignUp struct {
	LoginCredential
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// ChangePassword is the POST /auth/change-password body
type ChangePassword struct {
	Password    string `json:"password" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// ValidateAccessTokenResponse is returned by POST /auth/validateToken
type ValidateAccessTokenResponse struct {
	AuthStatus bool `json:"authStatus"`
}

// AuthDeviceResponse describes one session of the calling user
type AuthDeviceResponse struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
	Current    bool   `json:"current"`
	DeviceType string `json:"deviceType"`
	DeviceOS   string `json:"deviceOS"`
}

// MapUserToken converts a session record into a device entry.
// current is set only on an exact id match with currentID.
func MapUserToken(token UserToken, currentID *string) AuthDeviceResponse {
	return AuthDeviceResponse{
		ID:         token.ID,
		CreatedAt:  FormatTimestamp(token.CreatedAt),
		UpdatedAt:  FormatTimestamp(token.UpdatedAt),
		Current:    currentID != nil && *currentID == token.ID,
		DeviceOS:   token.DeviceOS,
		DeviceType: token.DeviceType,
	}
}

// OAuthCallback is the POST /oauth/callback body; URL is the full redirect the provider sent the browser to
type OAuthCallback struct {
	URL string `json:"url" validate:"required"`
}

// OAuthConfig is the body of POST /oauth/config and POST /oauth/authorize
type OAuthConfig struct {
	RedirectURI string `json:"redirectUri" validate:"required"`
}

// OAuthConfigResponse is the legacy login-page configuration.
// Deprecated: clients should call /oauth/authorize.
type OAuthConfigResponse struct {
	Enabled              bool    `json:"enabled"`
	PasswordLoginEnabled bool    `json:"passwordLoginEnabled"`
	URL                  *string `json:"url,omitempty"`
	ButtonText           *string `json:"buttonText,omitempty"`
	AutoLaunch           *bool   `json:"autoLaunch,omitempty"`
}

// OAuthAuthorizeResponse carries the provider URL to send the browser to
type OAuthAuthorizeResponse struct {
	URL string `json:"url"`
}
