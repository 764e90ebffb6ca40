package handlers

import (
	"context"
	"errors"
	"net/http"

	"immich-service/auth"
	"immich-service/database"
	"immich-service/models"

	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"
)

// GenerateOAuthConfig handles POST /oauth/config (legacy login page config)
// Kept next to /oauth/authorize for clients that still call it
func (h *AuthHandler) GenerateOAuthConfig(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logRequest(ctx, "info", "OAuth config request")

	var req models.OAuthConfig
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	resp := models.OAuthConfigResponse{
		Enabled:              h.oauth.Enabled(),
		PasswordLoginEnabled: h.cfg.PasswordLoginEnabled,
	}
	if !resp.Enabled {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	url, err := h.oauth.AuthorizeURL(ctx, req.RedirectURI)
	if err != nil {
		logRequest(ctx, "error", "Failed to build authorize url", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("OAuth provider unavailable"))
		return
	}

	oauthCfg := h.oauth.Config()
	resp.URL = &url
	resp.ButtonText = &oauthCfg.ButtonText
	resp.AutoLaunch = &oauthCfg.AutoLaunch

	writeJSON(w, http.StatusOK, resp)
}

// StartOAuth handles POST /oauth/authorize - returns the provider URL to redirect to
func (h *AuthHandler) StartOAuth(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logRequest(ctx, "info", "OAuth authorize request")

	var req models.OAuthConfig
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	url, err := h.oauth.AuthorizeURL(ctx, req.RedirectURI)
	if errors.Is(err, auth.ErrOAuthDisabled) {
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("OAuth is not enabled"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to build authorize url", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("OAuth provider unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, models.OAuthAuthorizeResponse{URL: url})
}

// FinishOAuth handles POST /oauth/callback - exchanges the code and logs the user in
// Users are matched by OAuth subject, then by email (and linked), then auto-registered if allowed
func (h *AuthHandler) FinishOAuth(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logRequest(ctx, "info", "OAuth callback request")

	var req models.OAuthCallback
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	profile, err := h.oauth.Callback(ctx, req.URL)
	switch {
	case errors.Is(err, auth.ErrOAuthDisabled):
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("OAuth is not enabled"))
		return
	case errors.Is(err, auth.ErrInvalidState), errors.Is(err, auth.ErrOAuthDenied), errors.Is(err, auth.ErrOAuthProfile):
		logRequest(ctx, "error", "OAuth callback rejected", zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, errs.NewAuthenticationError(err.Error()))
		return
	case err != nil:
		logRequest(ctx, "error", "OAuth callback failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("OAuth provider unavailable"))
		return
	}

	user, err := h.resolveOAuthUser(ctx, profile)
	if errors.Is(err, errOAuthRegistrationDisabled) {
		logRequest(ctx, "error", "OAuth user not registered", zap.String("email", profile.Email))
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("User does not exist and auto registering is disabled"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to resolve OAuth user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	h.createLoginResponse(ctx, w, r, *user, authTypeOAuth)
}

var errOAuthRegistrationDisabled = errors.New("oauth auto registration is disabled")

func (h *AuthHandler) resolveOAuthUser(ctx context.Context, profile *auth.OAuthProfile) (*models.User, error) {
	user, err := database.GetUserByOAuthID(ctx, h.db, profile.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	email := models.NormalizeEmail(profile.Email)
	user, err = database.GetUserByEmail(ctx, h.db, email)
	if err == nil {
		if profile.Subject != "" {
			if err := database.LinkUserOAuth(ctx, h.db, user.ID, profile.Subject); err != nil {
				return nil, err
			}
			user.OAuthID = profile.Subject
		}
		logRequest(ctx, "info", "Linked OAuth account", zap.String("user_id", user.ID))
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if !h.oauth.Config().AutoRegister {
		return nil, errOAuthRegistrationDisabled
	}

	created := models.User{
		Email:     email,
		FirstName: profile.GivenName,
		LastName:  profile.FamilyName,
		OAuthID:   profile.Subject,
	}
	if err := database.CreateUser(ctx, h.db, &created); err != nil {
		return nil, err
	}
	logRequest(ctx, "info", "Registered OAuth user", zap.String("user_id", created.ID))
	return &created, nil
}
