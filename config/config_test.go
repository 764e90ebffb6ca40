package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OAUTH_ENABLED", "false")
	t.Setenv("SERVER_PORT", "3001")

	cfg, err := Load()

	require.NoError(t, err)
	require.Equal(t, "3001", cfg.Port)
	require.True(t, cfg.PasswordLoginEnabled)
	require.False(t, cfg.OAuth.Enabled)
	require.Equal(t, 10*time.Minute, cfg.OAuth.StateTTL)
}

func TestLoad_OAuthRequiresProvider(t *testing.T) {
	t.Setenv("OAUTH_ENABLED", "true")
	t.Setenv("OAUTH_ISSUER_URL", "")
	t.Setenv("OAUTH_CLIENT_ID", "")

	_, err := Load()

	require.Error(t, err)
	require.Contains(t, err.Error(), "OAUTH_ISSUER_URL")
}

func TestLoad_OAuthStateSecretLength(t *testing.T) {
	t.Setenv("OAUTH_ENABLED", "yes")
	t.Setenv("OAUTH_ISSUER_URL", "https://id.example.com/")
	t.Setenv("OAUTH_CLIENT_ID", "immich")
	t.Setenv("OAUTH_STATE_SECRET", "short")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("OAUTH_STATE_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://id.example.com", cfg.OAuth.IssuerURL)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("OAUTH_ENABLED", "false")
	t.Setenv("SERVER_PORT", "http")

	_, err := Load()

	require.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "on", "t"} {
		b, ok := ParseBool(v)
		require.True(t, ok, v)
		require.True(t, b, v)
	}
	for _, v := range []string{"0", "false", "No", "off"} {
		b, ok := ParseBool(v)
		require.True(t, ok, v)
		require.False(t, b, v)
	}
	_, ok := ParseBool("maybe")
	require.False(t, ok)
}
