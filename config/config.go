package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration for the server
type Config struct {
	Environment   string
	Port          string
	DatabasePath  string
	MigrationsDir string
	UploadDir     string
	ServerVersion string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AuthCacheTTL  time.Duration

	// Secure marks auth cookies Secure; enable behind HTTPS
	Secure               bool
	PasswordLoginEnabled bool

	OAuth OAuthConfig
}

// OAuthConfig configures login through an external OpenID Connect provider
type OAuthConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scope        string
	ButtonText   string
	AutoLaunch   bool
	AutoRegister bool
	StateSecret  string
	StateTTL     time.Duration
}

// Load reads configuration from environment variables (and .env when present)
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		Port:                 getEnv("SERVER_PORT", "3001"),
		DatabasePath:         getEnv("DB_PATH", "./immich.db"),
		MigrationsDir:        getEnv("MIGRATIONS_DIR", "./database/migrations"),
		UploadDir:            getEnv("UPLOAD_LOCATION", "./upload"),
		ServerVersion:        getEnv("IMMICH_VERSION", "1.82.1"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		AuthCacheTTL:         getDuration("AUTH_CACHE_TTL", time.Minute),
		Secure:               getBool("SECURE_COOKIES", false),
		PasswordLoginEnabled: getBool("PASSWORD_LOGIN_ENABLED", true),
		OAuth: OAuthConfig{
			Enabled:      getBool("OAUTH_ENABLED", false),
			IssuerURL:    strings.TrimSuffix(os.Getenv("OAUTH_ISSUER_URL"), "/"),
			ClientID:     os.Getenv("OAUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
			Scope:        getEnv("OAUTH_SCOPE", "openid email profile"),
			ButtonText:   getEnv("OAUTH_BUTTON_TEXT", "Login with OAuth"),
			AutoLaunch:   getBool("OAUTH_AUTO_LAUNCH", false),
			AutoRegister: getBool("OAUTH_AUTO_REGISTER", true),
			StateSecret:  os.Getenv("OAUTH_STATE_SECRET"),
			StateTTL:     getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		},
	}

	if cfg.OAuth.Enabled {
		if cfg.OAuth.IssuerURL == "" || cfg.OAuth.ClientID == "" {
			return Config{}, fmt.Errorf("OAUTH_ISSUER_URL and OAUTH_CLIENT_ID are required when OAUTH_ENABLED is set")
		}
		if len(cfg.OAuth.StateSecret) < 32 {
			return Config{}, fmt.Errorf("OAUTH_STATE_SECRET must be at least 32 characters")
		}
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("SERVER_PORT must be numeric: %q", cfg.Port)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, ok := ParseBool(v); ok {
			return b
		}
	}
	return def
}

// ParseBool understands the usual spellings of true/false; ok is false for anything else
func ParseBool(v string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	}
	return false, false
}
