package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"immich-service/auth"
	"immich-service/database"
	"immich-service/models"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"go.uber.org/zap"
)

const (
	usersListCacheKey = "users:list"
	usersListCacheTTL = 5 * time.Minute
)

// UserHandler handles user-related operations
type UserHandler struct {
	db    *sqlx.DB
	cache cache.Cache
	authn *Authenticator
}

// NewUserHandler creates a new user handler; cache may be nil
func NewUserHandler(db *sqlx.DB, cache cache.Cache, authn *Authenticator) *UserHandler {
	return &UserHandler{
		db:    db,
		cache: cache,
		authn: authn,
	}
}

// GetMe handles GET /users/me - the authenticated user
func (h *UserHandler) GetMe(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	user, err := database.GetUserByID(ctx, h.db, session.User.ID)
	if errors.Is(err, database.ErrNotFound) {
		logRequest(ctx, "info", "User not found", zap.String("user_id", session.User.ID))
		writeJSON(w, http.StatusNotFound, errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	writeJSON(w, http.StatusOK, models.MapUser(*user))
}

// CreateAPIKey handles POST /api-key - issues a key for the command line client
// The secret is returned once; only its hash is stored
func (h *UserHandler) CreateAPIKey(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	var req models.APIKeyCreateRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	secret, err := auth.NewOpaqueToken()
	if err != nil {
		logRequest(ctx, "error", "Key generation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to generate key"))
		return
	}

	key := models.APIKey{
		Name:   req.Name,
		Key:    auth.HashToken(secret),
		UserID: session.User.ID,
	}
	if err := database.CreateAPIKey(ctx, h.db, &key); err != nil {
		logRequest(ctx, "error", "Failed to store api key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to create key"))
		return
	}

	logRequest(ctx, "info", "API key created", zap.String("key_id", key.ID))
	writeJSON(w, http.StatusCreated, models.APIKeyCreateResponse{Secret: secret, APIKey: models.MapAPIKey(key)})
}

// GetUsers handles GET /users - list all users (admin only)
func (h *UserHandler) GetUsers(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authn.requireAdmin(ctx, w, r); !ok {
		return
	}
	logRequest(ctx, "info", "Listing users")

	// Try cache first
	if h.cache != nil {
		if cached, err := h.cache.Get(usersListCacheKey); err == nil {
			if body, ok := cached.(string); ok {
				logRequest(ctx, "debug", "Serving from cache")
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(body))
				return
			}
		}
	}

	users, err := database.ListUsers(ctx, h.db)
	if err != nil {
		logRequest(ctx, "error", "Failed to query users", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	resp := make([]models.UserResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, models.MapUser(user))
	}

	body, err := json.Marshal(resp)
	if err != nil {
		logRequest(ctx, "error", "Failed to encode users", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
		return
	}
	if h.cache != nil {
		h.cache.Set(usersListCacheKey, string(body), usersListCacheTTL)
	}

	logRequest(ctx, "info", "Users retrieved successfully", zap.Int("count", len(resp)))
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// GetUser handles GET /users/{id}
func (h *UserHandler) GetUser(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authn.requireSession(ctx, w, r); !ok {
		return
	}

	id := mux.Vars(r)["id"]
	user, err := database.GetUserByID(ctx, h.db, id)
	if errors.Is(err, database.ErrNotFound) {
		logRequest(ctx, "info", "User not found", zap.String("user_id", id))
		writeJSON(w, http.StatusNotFound, errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to query user", zap.Error(err), zap.String("user_id", id))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	writeJSON(w, http.StatusOK, models.MapUser(*user))
}

// CreateUser handles POST /users - an admin adds an account.
// The new user must change the password on first login.
func (h *UserHandler) CreateUser(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authn.requireAdmin(ctx, w, r); !ok {
		return
	}

	var req models.CreateUserRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	logRequest(ctx, "info", "Creating user", zap.String("email", req.Email))

	if _, err := database.GetUserByEmail(ctx, h.db, req.Email); err == nil {
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("User exists"))
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		logRequest(ctx, "error", "Failed to query user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to process password"))
		return
	}

	user := models.User{
		Email:                req.Email,
		Password:             hashed,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		ShouldChangePassword: true,
	}
	if err := database.CreateUser(ctx, h.db, &user); err != nil {
		logRequest(ctx, "error", "Failed to create user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to create user"))
		return
	}
	h.clearUsersCache()

	logRequest(ctx, "info", "User created successfully", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, models.MapUser(user))
}

// UpdateUser handles PUT /users/{id}.
// Users may edit themselves; admins may edit anyone and toggle isAdmin.
func (h *UserHandler) UpdateUser(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireSession(ctx, w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if id != session.User.ID && !session.User.IsAdmin {
		logRequest(ctx, "error", "Refusing to update another user", zap.String("user_id", id))
		writeJSON(w, http.StatusForbidden, errs.NewAuthorizationError("Only admins can update other users"))
		return
	}

	var req models.UpdateUserRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if req.IsAdmin != nil && !session.User.IsAdmin {
		writeJSON(w, http.StatusForbidden, errs.NewAuthorizationError("Only admins can change admin status"))
		return
	}
	if req.IsAdmin != nil && !*req.IsAdmin && id == session.User.ID {
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("Admins cannot demote themselves"))
		return
	}

	if req.Email != nil {
		existing, err := database.GetUserByEmail(ctx, h.db, *req.Email)
		if err == nil && existing.ID != id {
			writeJSON(w, http.StatusBadRequest, errs.NewValidationError("User exists"))
			return
		}
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			logRequest(ctx, "error", "Failed to query user", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
			return
		}
	}

	changes := database.UserChanges{
		Email:                req.Email,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		IsAdmin:              req.IsAdmin,
		ShouldChangePassword: req.ShouldChangePassword,
	}
	if req.Password != nil {
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			logRequest(ctx, "error", "Password hashing failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to process password"))
			return
		}
		changes.Password = &hashed
	}

	err := database.UpdateUser(ctx, h.db, id, changes)
	if errors.Is(err, database.ErrNotFound) {
		logRequest(ctx, "info", "User not found for update", zap.String("user_id", id))
		writeJSON(w, http.StatusNotFound, errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to update user", zap.Error(err), zap.String("user_id", id))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to update user"))
		return
	}
	h.clearUsersCache()
	if req.IsAdmin != nil || req.Email != nil {
		h.evictSessions(ctx, id)
	}

	user, err := database.GetUserByID(ctx, h.db, id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to reload user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Database error"))
		return
	}

	logRequest(ctx, "info", "User updated successfully", zap.String("user_id", id))
	writeJSON(w, http.StatusOK, models.MapUser(*user))
}

// DeleteUser handles DELETE /users/{id} (admin only, not yourself)
func (h *UserHandler) DeleteUser(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	session, ok := h.authn.requireAdmin(ctx, w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if id == session.User.ID {
		writeJSON(w, http.StatusBadRequest, errs.NewValidationError("Admins cannot delete themselves"))
		return
	}
	logRequest(ctx, "info", "Deleting user", zap.String("user_id", id))

	hashes, err := database.DeleteUser(ctx, h.db, id)
	if errors.Is(err, database.ErrNotFound) {
		logRequest(ctx, "info", "User not found for deletion", zap.String("user_id", id))
		writeJSON(w, http.StatusNotFound, errs.NewNotFoundError("User not found"))
		return
	}
	if err != nil {
		logRequest(ctx, "error", "Failed to delete user", zap.Error(err), zap.String("user_id", id))
		writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Failed to delete user"))
		return
	}
	h.authn.Evict(hashes...)
	h.clearUsersCache()

	logRequest(ctx, "info", "User deleted successfully", zap.String("user_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// evictSessions drops cached resolutions of a user whose identity or role changed
func (h *UserHandler) evictSessions(ctx context.Context, userID string) {
	hashes, err := database.UserCredentialHashes(ctx, h.db, userID)
	if err != nil {
		logRequest(ctx, "error", "Failed to list sessions for eviction", zap.Error(err), zap.String("user_id", userID))
		return
	}
	h.authn.Evict(hashes...)
}

func (h *UserHandler) clearUsersCache() {
	if h.cache != nil {
		h.cache.Delete(usersListCacheKey)
	}
}
