package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"immich-service/auth"
	"immich-service/config"
	"immich-service/database"
	"immich-service/models"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/errs"
	"github.com/umakantv/go-utils/httpserver"
	"github.com/umakantv/go-utils/logger"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	logger.Init(logger.LoggerConfig{
		CallerKey:  "file",
		TimeKey:    "timestamp",
		CallerSkip: 1,
	})
	auth.SetPasswordCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

const (
	adminEmail    = "admin@immich.app"
	adminPassword = "password123"
	chromeLinuxUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36"
)

type testEnv struct {
	db     *sqlx.DB
	authn  *Authenticator
	auth   *AuthHandler
	users  *UserHandler
	assets *AssetHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCache(t, nil)
}

// newCachedTestEnv backs sessions and the users list with an in-memory cache
func newCachedTestEnv(t *testing.T) (*testEnv, cache.Cache) {
	t.Helper()
	c, err := cache.New(cache.Config{Type: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return newTestEnvWithCache(t, c), c
}

func newTestEnvWithCache(t *testing.T, c cache.Cache) *testEnv {
	t.Helper()
	dbConn, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { dbConn.Close() })

	cfg := config.Config{PasswordLoginEnabled: true}
	authn := NewAuthenticator(dbConn, c, time.Minute)
	oauth := auth.NewOAuthProvider(config.OAuthConfig{}, nil)

	return &testEnv{
		db:     dbConn,
		authn:  authn,
		auth:   NewAuthHandler(dbConn, authn, oauth, cfg),
		users:  NewUserHandler(dbConn, c, authn),
		assets: NewAssetHandler(dbConn, authn, t.TempDir()),
	}
}

type request struct {
	method  string
	path    string
	body    interface{}
	token   string
	apiKey  string
	vars    map[string]string
	headers map[string]string
}

func call(t *testing.T, handler httpserver.HandlerFunc, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("User-Agent", chromeLinuxUA)
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.apiKey != "" {
		r.Header.Set("x-api-key", req.apiKey)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	if req.vars != nil {
		r = mux.SetURLVars(r, req.vars)
	}

	w := httptest.NewRecorder()
	handler(context.Background(), w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (e *testEnv) signUpAdmin(t *testing.T) {
	t.Helper()
	w := call(t, e.auth.AdminSignUp, request{method: http.MethodPost, path: "/auth/admin-sign-up", body: map[string]string{
		"email": adminEmail, "password": adminPassword, "firstName": "Immich", "lastName": "Admin",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (e *testEnv) login(t *testing.T, email, password string) models.LoginResponse {
	t.Helper()
	w := call(t, e.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
		"email": email, "password": password,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.LoginResponse
	decode(t, w, &resp)
	return resp
}

func TestAdminSignUp_OnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)

	w := call(t, env.auth.AdminSignUp, request{method: http.MethodPost, path: "/auth/admin-sign-up", body: map[string]string{
		"email": "second@immich.app", "password": adminPassword, "firstName": "A", "lastName": "B",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)

	t.Run("email is case insensitive", func(t *testing.T) {
		w := call(t, env.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
			"email": "Admin@Immich.App", "password": adminPassword,
		}})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp models.LoginResponse
		decode(t, w, &resp)
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, adminEmail, resp.UserEmail)
		require.Equal(t, "Immich", resp.FirstName)
		require.True(t, resp.IsAdmin)

		cookies := map[string]string{}
		for _, c := range w.Result().Cookies() {
			cookies[c.Name] = c.Value
		}
		require.Equal(t, resp.AccessToken, cookies[cookieAccessToken])
		require.Equal(t, authTypePassword, cookies[cookieAuthType])
		require.Equal(t, "true", cookies[cookieIsAuthenticated])
	})

	t.Run("wrong password", func(t *testing.T) {
		w := call(t, env.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
			"email": adminEmail, "password": "wrong-password",
		}})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := call(t, env.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
			"email": "nobody@immich.app", "password": adminPassword,
		}})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid email is rejected before lookup", func(t *testing.T) {
		w := call(t, env.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
			"email": "not-an-email", "password": adminPassword,
		}})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing password", func(t *testing.T) {
		w := call(t, env.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
			"email": adminEmail,
		}})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogin_PasswordLoginDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	env.auth.cfg.PasswordLoginEnabled = false

	w := call(t, env.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
		"email": adminEmail, "password": adminPassword,
	}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateToken(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	session := env.login(t, adminEmail, adminPassword)

	w := call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: session.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ValidateAccessTokenResponse
	decode(t, w, &resp)
	require.True(t, resp.AuthStatus)

	w = call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: "bogus"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDevices(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	first := env.login(t, adminEmail, adminPassword)
	second := env.login(t, adminEmail, adminPassword)

	w := call(t, env.auth.GetDevices, request{method: http.MethodGet, path: "/auth/devices", token: first.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)

	var devices []models.AuthDeviceResponse
	decode(t, w, &devices)
	require.Len(t, devices, 2)

	var currentID, otherID string
	for _, d := range devices {
		require.Equal(t, "Chrome", d.DeviceType)
		require.Equal(t, "Linux", d.DeviceOS)
		_, err := time.Parse(time.RFC3339, d.CreatedAt)
		require.NoError(t, err)
		if d.Current {
			require.Empty(t, currentID, "only one device is current")
			currentID = d.ID
		} else {
			otherID = d.ID
		}
	}
	require.NotEmpty(t, currentID)
	require.NotEmpty(t, otherID)

	// the current device goes through /auth/logout instead
	w = call(t, env.auth.LogoutDevice, request{method: http.MethodDelete, path: "/auth/devices/" + currentID, token: first.AccessToken, vars: map[string]string{"id": currentID}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, env.auth.LogoutDevice, request{method: http.MethodDelete, path: "/auth/devices/missing", token: first.AccessToken, vars: map[string]string{"id": "missing"}})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, env.auth.LogoutDevice, request{method: http.MethodDelete, path: "/auth/devices/" + otherID, token: first.AccessToken, vars: map[string]string{"id": otherID}})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: second.AccessToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: first.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLogoutDevices_KeepsCurrent(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	keep := env.login(t, adminEmail, adminPassword)
	dropA := env.login(t, adminEmail, adminPassword)
	dropB := env.login(t, adminEmail, adminPassword)

	w := call(t, env.auth.LogoutDevices, request{method: http.MethodDelete, path: "/auth/devices", token: keep.AccessToken})
	require.Equal(t, http.StatusNoContent, w.Code)

	for _, token := range []string{dropA.AccessToken, dropB.AccessToken} {
		w = call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: token})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w = call(t, env.auth.GetDevices, request{method: http.MethodGet, path: "/auth/devices", token: keep.AccessToken})
	var devices []models.AuthDeviceResponse
	decode(t, w, &devices)
	require.Len(t, devices, 1)
	require.True(t, devices[0].Current)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	session := env.login(t, adminEmail, adminPassword)

	w := call(t, env.auth.ChangePassword, request{method: http.MethodPost, path: "/auth/change-password", token: session.AccessToken, body: map[string]string{
		"password": adminPassword, "newPassword": "short",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, env.auth.ChangePassword, request{method: http.MethodPost, path: "/auth/change-password", token: session.AccessToken, body: map[string]string{
		"password": "wrong-password", "newPassword": "new-password",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, env.auth.ChangePassword, request{method: http.MethodPost, path: "/auth/change-password", token: session.AccessToken, body: map[string]string{
		"password": adminPassword, "newPassword": "new-password",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var user models.UserResponse
	decode(t, w, &user)
	require.Equal(t, adminEmail, user.Email)

	env.login(t, adminEmail, "new-password")
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	session := env.login(t, adminEmail, adminPassword)

	w := call(t, env.auth.Logout, request{method: http.MethodPost, path: "/auth/logout", token: session.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.LogoutResponse
	decode(t, w, &resp)
	require.True(t, resp.Successful)
	require.Equal(t, auth.LoginRedirect, resp.RedirectURI)

	for _, c := range w.Result().Cookies() {
		require.Less(t, c.MaxAge, 0, c.Name)
	}

	w = call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: session.AccessToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCookieAuthentication(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	session := env.login(t, adminEmail, adminPassword)

	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.AddCookie(&http.Cookie{Name: cookieAccessToken, Value: session.AccessToken})
	w := httptest.NewRecorder()
	env.users.GetMe(context.Background(), w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKey(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	session := env.login(t, adminEmail, adminPassword)

	w := call(t, env.users.CreateAPIKey, request{method: http.MethodPost, path: "/api-key", token: session.AccessToken, body: map[string]string{}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.APIKeyCreateResponse
	decode(t, w, &created)
	require.NotEmpty(t, created.Secret)
	require.Equal(t, "API Key", created.APIKey.Name)

	w = call(t, env.users.GetMe, request{method: http.MethodGet, path: "/users/me", apiKey: created.Secret})
	require.Equal(t, http.StatusOK, w.Code)
	var me models.UserResponse
	decode(t, w, &me)
	require.Equal(t, adminEmail, me.Email)

	// no session behind an API key, so no device is current
	w = call(t, env.auth.GetDevices, request{method: http.MethodGet, path: "/auth/devices", apiKey: created.Secret})
	require.Equal(t, http.StatusOK, w.Code)
	var devices []models.AuthDeviceResponse
	decode(t, w, &devices)
	require.Len(t, devices, 1)
	require.False(t, devices[0].Current)

	w = call(t, env.users.GetMe, request{method: http.MethodGet, path: "/users/me", apiKey: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOAuth_Disabled(t *testing.T) {
	env := newTestEnv(t)

	w := call(t, env.auth.GenerateOAuthConfig, request{method: http.MethodPost, path: "/oauth/config", body: map[string]string{"redirectUri": "http://localhost/auth/login"}})
	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.OAuthConfigResponse
	decode(t, w, &cfg)
	require.False(t, cfg.Enabled)
	require.True(t, cfg.PasswordLoginEnabled)
	require.Nil(t, cfg.URL)

	w = call(t, env.auth.StartOAuth, request{method: http.MethodPost, path: "/oauth/authorize", body: map[string]string{"redirectUri": "http://localhost/auth/login"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, env.auth.StartOAuth, request{method: http.MethodPost, path: "/oauth/authorize", body: map[string]string{}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, env.auth.FinishOAuth, request{method: http.MethodPost, path: "/oauth/callback", body: map[string]string{"url": "http://localhost/auth/login?code=abc&state=xyz"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerInfo(t *testing.T) {
	h := NewServerInfoHandler(models.ServerVersionResponse{Major: 1, Minor: 82, Patch: 1})

	w := call(t, h.Ping, request{method: http.MethodGet, path: "/server-info/ping"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"res":"pong"}`, w.Body.String())

	w = call(t, h.Version, request{method: http.MethodGet, path: "/server-info/version"})
	require.JSONEq(t, `{"major":1,"minor":82,"patch":1}`, w.Body.String())
}

func uploadRequest(t *testing.T, token, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("assetData", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("deviceAssetId", name+"-1"))
	require.NoError(t, mw.WriteField("deviceId", "CLI"))
	require.NoError(t, mw.WriteField("fileCreatedAt", "2023-05-01T10:00:00Z"))
	require.NoError(t, mw.WriteField("fileModifiedAt", "2023-05-01T10:00:00Z"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/asset/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestAssets_UploadAndBulkCheck(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	session := env.login(t, adminEmail, adminPassword)

	w := httptest.NewRecorder()
	env.assets.Upload(context.Background(), w, uploadRequest(t, session.AccessToken, "a.jpg", "photo-a"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first models.AssetFileUploadResponse
	decode(t, w, &first)
	require.NotEmpty(t, first.ID)
	require.False(t, first.Duplicate)

	w = httptest.NewRecorder()
	env.assets.Upload(context.Background(), w, uploadRequest(t, session.AccessToken, "copy.jpg", "photo-a"))
	require.Equal(t, http.StatusOK, w.Code)
	var dup models.AssetFileUploadResponse
	decode(t, w, &dup)
	require.True(t, dup.Duplicate)
	require.Equal(t, first.ID, dup.ID)

	// sha1 of "photo-a"
	const photoChecksum = "aa134f34f54385e4778dac749e289326dea32012"
	assetID, err := database.GetAssetIDByChecksum(context.Background(), env.db, session.UserID, photoChecksum)
	require.NoError(t, err)
	require.Equal(t, first.ID, assetID)

	w = call(t, env.assets.BulkUploadCheck, request{method: http.MethodPost, path: "/asset/bulk-upload-check", token: session.AccessToken, body: models.AssetBulkUploadCheck{
		Assets: []models.AssetBulkUploadCheckItem{
			{ID: "/photos/a.jpg", Checksum: strings.ToUpper(photoChecksum)},
			{ID: "/photos/b.jpg", Checksum: "0000000000000000000000000000000000000000"},
		},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var check models.AssetBulkUploadCheckResponse
	decode(t, w, &check)
	require.Len(t, check.Results, 2)
	require.Equal(t, models.UploadActionReject, check.Results[0].Action)
	require.Equal(t, models.UploadReasonDuplicate, check.Results[0].Reason)
	require.Equal(t, first.ID, check.Results[0].AssetID)
	require.Equal(t, models.UploadActionAccept, check.Results[1].Action)
}

func TestAssets_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	w := call(t, env.assets.BulkUploadCheck, request{method: http.MethodPost, path: "/asset/bulk-upload-check", body: models.AssetBulkUploadCheck{}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserManagement(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	admin := env.login(t, adminEmail, adminPassword)

	w := call(t, env.users.CreateUser, request{method: http.MethodPost, path: "/users", token: admin.AccessToken, body: map[string]string{
		"email": "Photographer@Immich.App", "password": "camera-roll", "firstName": "Pho", "lastName": "Tographer",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.UserResponse
	decode(t, w, &created)
	require.Equal(t, "photographer@immich.app", created.Email)
	require.True(t, created.ShouldChangePassword)
	require.False(t, created.IsAdmin)

	w = call(t, env.users.CreateUser, request{method: http.MethodPost, path: "/users", token: admin.AccessToken, body: map[string]string{
		"email": "photographer@immich.app", "password": "camera-roll", "firstName": "Pho", "lastName": "Tographer",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	member := env.login(t, "photographer@immich.app", "camera-roll")
	require.True(t, member.ShouldChangePassword)

	t.Run("members cannot administer", func(t *testing.T) {
		w := call(t, env.users.GetUsers, request{method: http.MethodGet, path: "/users", token: member.AccessToken})
		require.Equal(t, http.StatusForbidden, w.Code)

		w = call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + admin.UserID, token: member.AccessToken,
			vars: map[string]string{"id": admin.UserID}, body: map[string]string{"firstName": "Hacked"}})
		require.Equal(t, http.StatusForbidden, w.Code)

		w = call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: member.AccessToken,
			vars: map[string]string{"id": member.UserID}, body: map[string]bool{"isAdmin": true}})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("list and get", func(t *testing.T) {
		w := call(t, env.users.GetUsers, request{method: http.MethodGet, path: "/users", token: admin.AccessToken})
		require.Equal(t, http.StatusOK, w.Code)
		var users []models.UserResponse
		decode(t, w, &users)
		require.Len(t, users, 2)

		w = call(t, env.users.GetUser, request{method: http.MethodGet, path: "/users/" + member.UserID, token: member.AccessToken,
			vars: map[string]string{"id": member.UserID}})
		require.Equal(t, http.StatusOK, w.Code)

		w = call(t, env.users.GetUser, request{method: http.MethodGet, path: "/users/missing", token: admin.AccessToken,
			vars: map[string]string{"id": "missing"}})
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update self", func(t *testing.T) {
		w := call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: member.AccessToken,
			vars: map[string]string{"id": member.UserID}, body: map[string]string{"firstName": "Photo"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var updated models.UserResponse
		decode(t, w, &updated)
		require.Equal(t, "Photo", updated.FirstName)
		require.Equal(t, "Tographer", updated.LastName)

		w = call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: member.AccessToken,
			vars: map[string]string{"id": member.UserID}, body: map[string]string{"password": "short"}})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("admin cannot demote or delete self", func(t *testing.T) {
		w := call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + admin.UserID, token: admin.AccessToken,
			vars: map[string]string{"id": admin.UserID}, body: map[string]bool{"isAdmin": false}})
		require.Equal(t, http.StatusBadRequest, w.Code)

		w = call(t, env.users.DeleteUser, request{method: http.MethodDelete, path: "/users/" + admin.UserID, token: admin.AccessToken,
			vars: map[string]string{"id": admin.UserID}})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete ends the user's sessions", func(t *testing.T) {
		w := call(t, env.users.DeleteUser, request{method: http.MethodDelete, path: "/users/" + member.UserID, token: admin.AccessToken,
			vars: map[string]string{"id": member.UserID}})
		require.Equal(t, http.StatusNoContent, w.Code)

		w = call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: member.AccessToken})
		require.Equal(t, http.StatusUnauthorized, w.Code)

		w = call(t, env.users.DeleteUser, request{method: http.MethodDelete, path: "/users/" + member.UserID, token: admin.AccessToken,
			vars: map[string]string{"id": member.UserID}})
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

// createMember adds a non-admin account through the admin API and logs it in
func (e *testEnv) createMember(t *testing.T, adminToken, email string) models.LoginResponse {
	t.Helper()
	w := call(t, e.users.CreateUser, request{method: http.MethodPost, path: "/users", token: adminToken, body: map[string]string{
		"email": email, "password": "camera-roll", "firstName": "Pho", "lastName": "Tographer",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return e.login(t, email, "camera-roll")
}

func sessionCached(c cache.Cache, token string) bool {
	return c.Exists(authCacheKeyPrefix + auth.HashToken(token))
}

func TestUpdateUser_DemotionEndsCachedAdminRights(t *testing.T) {
	env, c := newCachedTestEnv(t)
	env.signUpAdmin(t)
	admin := env.login(t, adminEmail, adminPassword)
	member := env.createMember(t, admin.AccessToken, "member@immich.app")

	w := call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: admin.AccessToken,
		vars: map[string]string{"id": member.UserID}, body: map[string]bool{"isAdmin": true}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, env.users.GetUsers, request{method: http.MethodGet, path: "/users", token: member.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, sessionCached(c, member.AccessToken))

	w = call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: admin.AccessToken,
		vars: map[string]string{"id": member.UserID}, body: map[string]bool{"isAdmin": false}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.False(t, sessionCached(c, member.AccessToken))

	w = call(t, env.users.GetUsers, request{method: http.MethodGet, path: "/users", token: member.AccessToken})
	require.Equal(t, http.StatusForbidden, w.Code)

	var body errs.AppError
	decode(t, w, &body)
	require.Equal(t, http.StatusForbidden, body.Code)
}

func TestUpdateUser_EmailChangeRefreshesSession(t *testing.T) {
	env, c := newCachedTestEnv(t)
	env.signUpAdmin(t)
	admin := env.login(t, adminEmail, adminPassword)
	member := env.createMember(t, admin.AccessToken, "member@immich.app")

	w := call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: member.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, sessionCached(c, member.AccessToken))

	w = call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: member.AccessToken,
		vars: map[string]string{"id": member.UserID}, body: map[string]string{"email": "Renamed@Immich.App"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.False(t, sessionCached(c, member.AccessToken))

	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+member.AccessToken)
	session, err := env.authn.Authenticate(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, "renamed@immich.app", session.User.Email)
}

func TestUpdateUser_EmailTaken(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	admin := env.login(t, adminEmail, adminPassword)
	member := env.createMember(t, admin.AccessToken, "member@immich.app")

	w := call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: member.AccessToken,
		vars: map[string]string{"id": member.UserID}, body: map[string]string{"email": "ADMIN@immich.app"}})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// keeping your own address is not a conflict
	w = call(t, env.users.UpdateUser, request{method: http.MethodPut, path: "/users/" + member.UserID, token: member.AccessToken,
		vars: map[string]string{"id": member.UserID}, body: map[string]string{"email": "Member@immich.app"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSessionCache(t *testing.T) {
	env, c := newCachedTestEnv(t)
	env.signUpAdmin(t)
	admin := env.login(t, adminEmail, adminPassword)

	validate := func(token string) int {
		w := call(t, env.auth.ValidateToken, request{method: http.MethodPost, path: "/auth/validateToken", token: token})
		return w.Code
	}

	t.Run("resolution is served from the cache", func(t *testing.T) {
		session := env.login(t, adminEmail, adminPassword)
		require.Equal(t, http.StatusOK, validate(session.AccessToken))
		require.True(t, sessionCached(c, session.AccessToken))

		// drop the row behind the cache's back; the cached copy still answers
		owner, err := database.GetUserByTokenHash(context.Background(), env.db, auth.HashToken(session.AccessToken))
		require.NoError(t, err)
		require.NoError(t, database.DeleteUserToken(context.Background(), env.db, session.UserID, owner.TokenID))
		require.Equal(t, http.StatusOK, validate(session.AccessToken))

		env.authn.Evict(auth.HashToken(session.AccessToken))
		require.Equal(t, http.StatusUnauthorized, validate(session.AccessToken))
	})

	t.Run("logout evicts", func(t *testing.T) {
		session := env.login(t, adminEmail, adminPassword)
		require.Equal(t, http.StatusOK, validate(session.AccessToken))

		w := call(t, env.auth.Logout, request{method: http.MethodPost, path: "/auth/logout", token: session.AccessToken})
		require.Equal(t, http.StatusOK, w.Code)
		require.False(t, sessionCached(c, session.AccessToken))
		require.Equal(t, http.StatusUnauthorized, validate(session.AccessToken))
	})

	t.Run("device logout evicts", func(t *testing.T) {
		other := env.login(t, adminEmail, adminPassword)
		require.Equal(t, http.StatusOK, validate(other.AccessToken))
		owner, err := database.GetUserByTokenHash(context.Background(), env.db, auth.HashToken(other.AccessToken))
		require.NoError(t, err)

		w := call(t, env.auth.LogoutDevice, request{method: http.MethodDelete, path: "/auth/devices/" + owner.TokenID, token: admin.AccessToken,
			vars: map[string]string{"id": owner.TokenID}})
		require.Equal(t, http.StatusNoContent, w.Code)
		require.False(t, sessionCached(c, other.AccessToken))
		require.Equal(t, http.StatusUnauthorized, validate(other.AccessToken))

		other = env.login(t, adminEmail, adminPassword)
		require.Equal(t, http.StatusOK, validate(other.AccessToken))
		w = call(t, env.auth.LogoutDevices, request{method: http.MethodDelete, path: "/auth/devices", token: admin.AccessToken})
		require.Equal(t, http.StatusNoContent, w.Code)
		require.False(t, sessionCached(c, other.AccessToken))
		require.Equal(t, http.StatusUnauthorized, validate(other.AccessToken))
		require.Equal(t, http.StatusOK, validate(admin.AccessToken))
	})

	t.Run("user delete evicts", func(t *testing.T) {
		member := env.createMember(t, admin.AccessToken, "leaving@immich.app")
		require.Equal(t, http.StatusOK, validate(member.AccessToken))
		require.True(t, sessionCached(c, member.AccessToken))

		w := call(t, env.users.DeleteUser, request{method: http.MethodDelete, path: "/users/" + member.UserID, token: admin.AccessToken,
			vars: map[string]string{"id": member.UserID}})
		require.Equal(t, http.StatusNoContent, w.Code)
		require.False(t, sessionCached(c, member.AccessToken))
		require.Equal(t, http.StatusUnauthorized, validate(member.AccessToken))
	})
}

func TestGetUsers_Cache(t *testing.T) {
	env, c := newCachedTestEnv(t)
	env.signUpAdmin(t)
	admin := env.login(t, adminEmail, adminPassword)

	list := func() []models.UserResponse {
		w := call(t, env.users.GetUsers, request{method: http.MethodGet, path: "/users", token: admin.AccessToken})
		require.Equal(t, http.StatusOK, w.Code)
		var users []models.UserResponse
		decode(t, w, &users)
		return users
	}

	require.Len(t, list(), 1)
	cached, err := c.Get(usersListCacheKey)
	require.NoError(t, err)
	require.IsType(t, "", cached)

	// a cached list is served as stored
	require.NoError(t, c.Set(usersListCacheKey, `[]`, time.Minute))
	require.Empty(t, list())

	env.createMember(t, admin.AccessToken, "member@immich.app")
	require.False(t, c.Exists(usersListCacheKey))
	require.Len(t, list(), 2)
}

func TestRequireSession_ReusesCheckAuth(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAdmin(t)
	session := env.login(t, adminEmail, adminPassword)

	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+session.AccessToken)
	ok, requestAuth := env.authn.CheckAuth(r)
	require.True(t, ok)
	require.Equal(t, adminEmail, requestAuth.Client)

	claims, isMap := requestAuth.Claims.(map[string]interface{})
	require.True(t, isMap)
	require.Equal(t, session.UserID, claims["user_id"])
	require.Equal(t, true, claims["is_admin"])

	// the handler must not look the token up again
	tokenID, _ := claims["token_id"].(string)
	require.NoError(t, database.DeleteUserToken(context.Background(), env.db, session.UserID, tokenID))

	ctx := context.WithValue(context.Background(), httpserver.RequestAuthKey, requestAuth)
	w := httptest.NewRecorder()
	env.users.GetMe(ctx, w, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestValidationErrorBody(t *testing.T) {
	env := newTestEnv(t)

	w := call(t, env.auth.Login, request{method: http.MethodPost, path: "/auth/login", body: map[string]string{
		"email": "not-an-email",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Message string              `json:"Message"`
		Errors  []models.FieldError `json:"errors"`
	}
	decode(t, w, &body)
	require.Contains(t, body.Message, "email must be an email")
	require.ElementsMatch(t, []models.FieldError{
		{Field: "email", Rule: "loginemail"},
		{Field: "password", Rule: "required"},
	}, body.Errors)
}
