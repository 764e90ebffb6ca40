package server

import (
	"context"
	"net/http"
	"os"

	"immich-service/auth"
	cachepackage "immich-service/cache"
	"immich-service/config"
	"immich-service/database"
	"immich-service/handlers"
	"immich-service/models"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/cache"
	"github.com/umakantv/go-utils/httpserver"
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"
)

// route pairs a route definition with its handler
type route struct {
	httpserver.Route
	handler httpserver.HandlerFunc
}

// app holds the handlers behind the routes
type app struct {
	authn      *handlers.Authenticator
	auth       *handlers.AuthHandler
	users      *handlers.UserHandler
	assets     *handlers.AssetHandler
	serverInfo *handlers.ServerInfoHandler
}

func newApp(dbConn *sqlx.DB, cache cache.Cache, cfg config.Config) (*app, error) {
	version, err := models.ParseServerVersion(cfg.ServerVersion)
	if err != nil {
		return nil, err
	}

	authn := handlers.NewAuthenticator(dbConn, cache, cfg.AuthCacheTTL)
	oauth := auth.NewOAuthProvider(cfg.OAuth, nil)

	return &app{
		authn:      authn,
		auth:       handlers.NewAuthHandler(dbConn, authn, oauth, cfg),
		users:      handlers.NewUserHandler(dbConn, cache, authn),
		assets:     handlers.NewAssetHandler(dbConn, authn, cfg.UploadDir),
		serverInfo: handlers.NewServerInfoHandler(version),
	}, nil
}

// routes lists every endpoint; "bearer" routes are gated by Authenticator.CheckAuth
func (a *app) routes() []route {
	return []route{
		{httpserver.Route{Name: "HealthCheck", Method: "GET", Path: "/health", AuthType: "none"}, healthCheck},

		{httpserver.Route{Name: "Login", Method: "POST", Path: "/auth/login", AuthType: "none"}, a.auth.Login},
		{httpserver.Route{Name: "AdminSignUp", Method: "POST", Path: "/auth/admin-sign-up", AuthType: "none"}, a.auth.AdminSignUp},
		{httpserver.Route{Name: "ValidateToken", Method: "POST", Path: "/auth/validateToken", AuthType: "bearer"}, a.auth.ValidateToken},
		{httpserver.Route{Name: "ChangePassword", Method: "POST", Path: "/auth/change-password", AuthType: "bearer"}, a.auth.ChangePassword},
		{httpserver.Route{Name: "Logout", Method: "POST", Path: "/auth/logout", AuthType: "bearer"}, a.auth.Logout},
		{httpserver.Route{Name: "GetAuthDevices", Method: "GET", Path: "/auth/devices", AuthType: "bearer"}, a.auth.GetDevices},
		{httpserver.Route{Name: "LogoutAuthDevices", Method: "DELETE", Path: "/auth/devices", AuthType: "bearer"}, a.auth.LogoutDevices},
		{httpserver.Route{Name: "LogoutAuthDevice", Method: "DELETE", Path: "/auth/devices/{id}", AuthType: "bearer"}, a.auth.LogoutDevice},

		{httpserver.Route{Name: "GenerateOAuthConfig", Method: "POST", Path: "/oauth/config", AuthType: "none"}, a.auth.GenerateOAuthConfig},
		{httpserver.Route{Name: "StartOAuth", Method: "POST", Path: "/oauth/authorize", AuthType: "none"}, a.auth.StartOAuth},
		{httpserver.Route{Name: "FinishOAuth", Method: "POST", Path: "/oauth/callback", AuthType: "none"}, a.auth.FinishOAuth},

		{httpserver.Route{Name: "GetMyUserInfo", Method: "GET", Path: "/users/me", AuthType: "bearer"}, a.users.GetMe},
		{httpserver.Route{Name: "GetUsers", Method: "GET", Path: "/users", AuthType: "bearer"}, a.users.GetUsers},
		{httpserver.Route{Name: "CreateUser", Method: "POST", Path: "/users", AuthType: "bearer"}, a.users.CreateUser},
		{httpserver.Route{Name: "GetUser", Method: "GET", Path: "/users/{id}", AuthType: "bearer"}, a.users.GetUser},
		{httpserver.Route{Name: "UpdateUser", Method: "PUT", Path: "/users/{id}", AuthType: "bearer"}, a.users.UpdateUser},
		{httpserver.Route{Name: "DeleteUser", Method: "DELETE", Path: "/users/{id}", AuthType: "bearer"}, a.users.DeleteUser},
		{httpserver.Route{Name: "CreateAPIKey", Method: "POST", Path: "/api-key", AuthType: "bearer"}, a.users.CreateAPIKey},

		{httpserver.Route{Name: "PingServer", Method: "GET", Path: "/server-info/ping", AuthType: "none"}, a.serverInfo.Ping},
		{httpserver.Route{Name: "GetServerVersion", Method: "GET", Path: "/server-info/version", AuthType: "none"}, a.serverInfo.Version},

		{httpserver.Route{Name: "BulkUploadCheck", Method: "POST", Path: "/asset/bulk-upload-check", AuthType: "bearer"}, a.assets.BulkUploadCheck},
		{httpserver.Route{Name: "UploadFile", Method: "POST", Path: "/asset/upload", AuthType: "bearer"}, a.assets.Upload},
	}
}

func healthCheck(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy", "service": "immich-server"}`))
}

// bootstrap initializes the logger and loads configuration
func bootstrap() config.Config {
	logger.Init(logger.LoggerConfig{
		CallerKey:  "file",
		TimeKey:    "timestamp",
		CallerSkip: 1,
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		os.Exit(1)
	}
	return cfg
}

// Migrate applies pending migrations and exits
func Migrate() {
	cfg := bootstrap()
	dbConn := database.InitializeDatabase(cfg)
	dbConn.Close()
	logger.Info("Migrations applied", zap.String("path", cfg.DatabasePath))
}

func StartServer() {
	cfg := bootstrap()

	logger.Info("Starting Immich server...", zap.String("env", cfg.Environment), zap.String("version", cfg.ServerVersion))

	// Initialize database
	dbConn := database.InitializeDatabase(cfg)
	defer dbConn.Close()

	// Initialize cache
	cache := cachepackage.InitializeCache(cfg)
	defer cache.Close()

	application, err := newApp(dbConn, cache, cfg)
	if err != nil {
		logger.Error("Failed to initialize handlers", zap.Error(err))
		os.Exit(1)
	}

	// Create HTTP server with authentication
	server := httpserver.New(cfg.Port, application.authn.CheckAuth)

	for _, rt := range application.routes() {
		server.Register(rt.Route, rt.handler)
	}

	logger.Info("Immich server started", zap.String("port", cfg.Port), zap.Bool("oauth", cfg.OAuth.Enabled))

	// Start server
	if err := server.Start(); err != nil {
		logger.Error("Server failed to start", zap.Error(err))
		os.Exit(1)
	}
}
