package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"immich-service/auth"
	"immich-service/database"
	"immich-service/models"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"github.com/umakantv/go-utils/httpserver"
	"go.uber.org/zap"
)

const (
	cookieAccessToken     = "immich_access_token"
	cookieAuthType        = "immich_auth_type"
	cookieIsAuthenticated = "immich_is_authenticated"
	headerAPIKey          = "x-api-key"

	authTypePassword = "password"
	authTypeOAuth    = "oauth"

	authCacheKeyPrefix = "auth:"

	// RequestAuth claim holding the resolved *Session
	claimSession = "session"
)

// ErrUnauthenticated is returned when a request carries no usable credential
var ErrUnauthenticated = errors.New("authentication required")

// Session is the resolved identity of one request
type Session struct {
	User    models.AuthUser `json:"user"`
	TokenID string          `json:"tokenId,omitempty"` // empty for API key requests
	hash    string
}

// CurrentID is the session id to compare device records against (nil for API keys)
func (s *Session) CurrentID() *string {
	if s.TokenID == "" {
		return nil
	}
	id := s.TokenID
	return &id
}

// Authenticator resolves session tokens and API keys to users.
// Resolutions are cached when a cache is configured.
type Authenticator struct {
	db    *sqlx.DB
	cache cache.Cache
	ttl   time.Duration
}

// NewAuthenticator creates an authenticator; cache may be nil
func NewAuthenticator(db *sqlx.DB, cache cache.Cache, ttl time.Duration) *Authenticator {
	return &Authenticator{db: db, cache: cache, ttl: ttl}
}

// credential pulls the raw secret from the request: bearer header, cookie, then API key header
func credential(r *http.Request) (secret string, isAPIKey bool) {
	if header := r.Header.Get("Authorization"); len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:]), false
	}
	if cookie, err := r.Cookie(cookieAccessToken); err == nil && cookie.Value != "" {
		return cookie.Value, false
	}
	if key := r.Header.Get(headerAPIKey); key != "" {
		return key, true
	}
	return "", false
}

// Authenticate resolves the caller of r
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Session, error) {
	secret, isAPIKey := credential(r)
	if secret == "" {
		return nil, ErrUnauthenticated
	}
	hash := auth.HashToken(secret)

	if session := a.cached(hash); session != nil {
		return session, nil
	}

	var session *Session
	if isAPIKey {
		user, err := database.GetUserByAPIKeyHash(ctx, a.db, hash)
		if err != nil {
			return nil, unauthenticated(err)
		}
		session = &Session{User: authUser(*user, nil)}
	} else {
		owner, err := database.GetUserByTokenHash(ctx, a.db, hash)
		if err != nil {
			return nil, unauthenticated(err)
		}
		tokenID := owner.TokenID
		session = &Session{User: authUser(owner.User, &tokenID), TokenID: tokenID}
		if err := database.TouchUserToken(ctx, a.db, tokenID); err != nil {
			logRequest(ctx, "error", "Failed to touch session", zap.Error(err))
		}
	}
	session.hash = hash

	a.store(hash, session)
	return session, nil
}

func unauthenticated(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrUnauthenticated
	}
	return err
}

func authUser(user models.User, tokenID *string) models.AuthUser {
	return models.AuthUser{
		ID:            user.ID,
		Email:         user.Email,
		IsAdmin:       user.IsAdmin,
		AccessTokenID: tokenID,
	}
}

func (a *Authenticator) cached(hash string) *Session {
	if a.cache == nil {
		return nil
	}
	raw, err := a.cache.Get(authCacheKeyPrefix + hash)
	if err != nil || raw == nil {
		return nil
	}

	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	session.hash = hash
	return &session
}

func (a *Authenticator) store(hash string, session *Session) {
	if a.cache == nil || a.ttl <= 0 {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	a.cache.Set(authCacheKeyPrefix+hash, string(data), a.ttl)
}

// Evict drops cached resolutions for the given token hashes
func (a *Authenticator) Evict(hashes ...string) {
	if a.cache == nil {
		return
	}
	for _, hash := range hashes {
		a.cache.Delete(authCacheKeyPrefix + hash)
	}
}

// CheckAuth gates "bearer" routes for the http server
func (a *Authenticator) CheckAuth(r *http.Request) (bool, httpserver.RequestAuth) {
	session, err := a.Authenticate(r.Context(), r)
	if err != nil {
		return false, httpserver.RequestAuth{}
	}

	authType := "bearer"
	if session.TokenID == "" {
		authType = "api-key"
	}
	return true, httpserver.RequestAuth{
		Type:   authType,
		Client: session.User.Email,
		Claims: map[string]interface{}{
			"user_id":    session.User.ID,
			"token_id":   session.TokenID,
			"is_admin":   session.User.IsAdmin,
			claimSession: session,
		},
	}
}

// sessionFromContext returns the session CheckAuth resolved for this request, if any
func sessionFromContext(ctx context.Context) *Session {
	requestAuth := httpserver.GetRequestAuth(ctx)
	if requestAuth == nil {
		return nil
	}
	claims, ok := requestAuth.Claims.(map[string]interface{})
	if !ok {
		return nil
	}
	session, _ := claims[claimSession].(*Session)
	return session
}

// requireSession returns the caller's session, authenticating only when CheckAuth
// has not already done so, or writes a 401
func (a *Authenticator) requireSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if session := sessionFromContext(ctx); session != nil {
		return session, true
	}

	session, err := a.Authenticate(ctx, r)
	if err == nil {
		return session, true
	}

	if errors.Is(err, ErrUnauthenticated) {
		logRequest(ctx, "error", "Unauthenticated request")
		writeJSON(w, http.StatusUnauthorized, errs.NewAuthenticationError("Authentication required"))
		return nil, false
	}

	logRequest(ctx, "error", "Authentication lookup failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errs.NewInternalServerError("Server error"))
	return nil, false
}

// requireAdmin is requireSession restricted to admins (403 otherwise)
func (a *Authenticator) requireAdmin(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, ok := a.requireSession(ctx, w, r)
	if !ok {
		return nil, false
	}
	if !session.User.IsAdmin {
		logRequest(ctx, "error", "Admin required", zap.String("user_id", session.User.ID))
		writeJSON(w, http.StatusForbidden, errs.NewAuthorizationError("Only admins can do this"))
		return nil, false
	}
	return session, true
}
