package handlers

import (
	"context"
	"errors"
	"net/http"

	"immich-service/auth"
	"immich-service/config"
	"immich-service/database"
	"immich-service/models"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"
)

// AuthHandler serves /auth/* and /oauth/*
// Sessions are opaque tokens; only their sha256 lands in user_token
type AuthHandler struct {
	db    *sqlx.DB
	authn *Authenticator
	oauth *auth.OAuthProvider
	cfg   config.Config
}

// NewAuthHandler creates the auth handler
func NewAuthHandler(db *sqlx.DB, authn *Authenticator, oauth *auth.OAuthProvider, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		db:    db,
		authn: authn,
		oauth: oauth,
		cfg:   cfg,
	}
}

// Login handles POST /auth/login - email/password login
// Issues a session token (JSON body + cookies) and records the device
func (h *AuthHandler) Login(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logRequest(ctx, "info", "Login request")

	if !h.cfg.PasswordLoginEnabled {
		logRequest(ctx, "error", "Password login disabled")
		writeJSON(w, http.StatusUnauthorized, errs.NewAuthenticationError("Password login has been disabled"))
		return
	}

	var req models.LoginCredential
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	user, err := database.GetUserByEmail(ctx, h.db, req.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		logRequest(ctx, "error", "DB error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	// Same answer for unknown email and wrong password
	if user == nil || !auth.CheckPassword(req.Password, user.Password) {
		logRequest(ctx, "error", "Failed login attempt", zap.String("email", req.Email), zap.String("remote_addr", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, errs.NewAuthenticationError("Incorrect email or password"))
		return
	}

	h.createLoginResponse(ctx, w, r, *user, authTypePassword)
}

// AdminSignUp handles POST /auth/admin-sign-up - creates the first admin
// Rejected once any admin exists
func (h *AuthHandler) AdminSignUp(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logRequest(ctx, "info", "Admin sign up request")

	var req models.SignUp
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	exists, err := database.AdminExists(ctx, h.db)
	if err != nil {
		logRequest(ctx, "error", "DB error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}
	if exists {
		logRequest(ctx, "error", "Admin already exists")
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("The server already has an admin"))
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to process password"))
		return
	}

	user := models.User{
		Email:     req.Email,
		Password:  hashed,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsAdmin:   true,
	}
	if err := database.CreateUser(ctx, h.db, &user); err != nil {
		logRequest(ctx, "error", "Failed to create admin", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to create admin"))
		return
	}

	logRequest(ctx, "info", "Admin created", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, models.MapUser(user))
}

// ValidateToken handles POST /auth/validateToken
func (h *AuthHandler) ValidateToken(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authn.requireSession(ctx, w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.ValidateAccessTokenResponse{AuthStatus: true})
}

// ChangePassword handles POST /auth/change-password
// The current password must be supplied; the new one must satisfy the min length rule
func (h *AuthHandler) ChangePassword(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	var req models.ChangePassword
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	user, err := database.GetUserByID(ctx, h.db, session.User.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to load user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	if !auth.CheckPassword(req.Password, user.Password) {
		logRequest(ctx, "error", "Wrong password on change", zap.String("user_id", user.ID))
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("Wrong password"))
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to process password"))
		return
	}
	if err := database.UpdateUserPassword(ctx, h.db, user.ID, hashed); err != nil {
		logRequest(ctx, "error", "Failed to update password", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to update password"))
		return
	}

	updated, err := database.GetUserByID(ctx, h.db, user.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to reload user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}

	logRequest(ctx, "info", "Password changed", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, models.MapUser(*updated))
}

// Logout handles POST /auth/logout - ends the current session and clears cookies
func (h *AuthHandler) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	if session.TokenID != "" {
		err := database.DeleteUserToken(ctx, h.db, session.User.ID, session.TokenID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			logRequest(ctx, "error", "Failed to delete session", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
			return
		}
		h.authn.Evict(session.hash)
	}

	redirectURI := auth.LoginRedirect
	if cookie, err := r.Cookie(cookieAuthType); err == nil && cookie.Value == authTypeOAuth {
		redirectURI = h.oauth.LogoutRedirect(ctx)
	}

	clearAuthCookies(w)

	logRequest(ctx, "info", "Logged out", zap.String("user_id", session.User.ID))
	writeJSON(w, http.StatusOK, models.LogoutResponse{Successful: true, RedirectURI: redirectURI})
}

// GetDevices handles GET /auth/devices - lists the caller's sessions
func (h *AuthHandler) GetDevices(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	tokens, err := database.ListUserTokens(ctx, h.db, session.User.ID)
	if err != nil {
		logRequest(ctx, "error", "Failed to list devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	current := session.CurrentID()
	devices := make([]models.AuthDeviceResponse, 0, len(tokens))
	for _, token := range tokens {
		devices = append(devices, models.MapUserToken(token, current))
	}

	logRequest(ctx, "info", "Devices retrieved", zap.Int("count", len(devices)))
	writeJSON(w, http.StatusOK, devices)
}

// LogoutDevices handles DELETE /auth/devices - ends every session except the current one
func (h *AuthHandler) LogoutDevices(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	hashes, err := database.DeleteOtherUserTokens(ctx, h.db, session.User.ID, session.TokenID)
	if err != nil {
		logRequest(ctx, "error", "Failed to logout devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}
	h.authn.Evict(hashes...)

	logRequest(ctx, "info", "Devices logged out", zap.Int("count", len(hashes)))
	w.WriteHeader(http.StatusNoContent)
}

// LogoutDevice handles DELETE /auth/devices/{id} - ends one other session
func (h *AuthHandler) LogoutDevice(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("id should not be empty"))
		return
	}
	if id == session.TokenID {
		logRequest(ctx, "error", "Refusing to remove current device", zap.String("device_id", id))
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("Use /auth/logout to end the current session"))
		return
	}

	hash, err := database.GetUserTokenHash(ctx, h.db, session.User.ID, id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errs.NewNotFoundError("Device not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to load device", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	if err := database.DeleteUserToken(ctx, h.db, session.User.ID, id); err != nil && !errors.Is(err, database.ErrNotFound) {
		logRequest(ctx, "error", "Failed to logout device", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}
	h.authn.Evict(hash)

	logRequest(ctx, "info", "Device logged out", zap.String("device_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// createLoginResponse opens a session for user and writes the LoginResponse
func (h *AuthHandler) createLoginResponse(ctx context.Context, w http.ResponseWriter, r *http.Request, user models.User, authType string) {
	accessToken, err := auth.NewOpaqueToken()
	if err != nil {
		logRequest(ctx, "error", "Token generation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to generate token"))
		return
	}

	device := auth.DetectDevice(r.UserAgent())
	token := models.UserToken{
		Token:      auth.HashToken(accessToken),
		UserID:     user.ID,
		DeviceType: device.Type,
		DeviceOS:   device.OS,
	}
	if err := database.CreateUserToken(ctx, h.db, &token); err != nil {
		logRequest(ctx, "error", "Failed to store session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to create session"))
		return
	}

	setAuthCookies(w, accessToken, authType, h.cfg.Secure)

	logRequest(ctx, "info", "Login successful", zap.String("user_id", user.ID), zap.String("auth_type", authType))
	writeJSON(w, http.StatusCreated, models.MapLoginResponse(user, accessToken))
}

const sessionCookieMaxAge = 400 * 24 * 60 * 60

func setAuthCookies(w http.ResponseWriter, accessToken, authType string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name: cookieAccessToken, Value: accessToken, Path: "/",
		HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode, MaxAge: sessionCookieMaxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name: cookieAuthType, Value: authType, Path: "/",
		HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode, MaxAge: sessionCookieMaxAge,
	})
	// readable by the web client
	http.SetCookie(w, &http.Cookie{
		Name: cookieIsAuthenticated, Value: "true", Path: "/",
		Secure: secure, SameSite: http.SameSiteLaxMode, MaxAge: sessionCookieMaxAge,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{cookieAccessToken, cookieAuthType, cookieIsAuthenticated} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
}
