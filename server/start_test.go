package server

import (
	"testing"

	"immich-service/config"
	"immich-service/database"

	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	dbConn, err := database.OpenInMemory()
	require.NoError(t, err)
	defer dbConn.Close()

	application, err := newApp(dbConn, nil, config.Config{ServerVersion: "1.82.1"})
	require.NoError(t, err)

	public := map[string]bool{}
	seen := map[string]bool{}
	for _, rt := range application.routes() {
		key := rt.Method + " " + rt.Path
		require.False(t, seen[key], "duplicate route %s", key)
		seen[key] = true
		require.NotNil(t, rt.handler, key)
		if rt.AuthType == "none" {
			public[key] = true
		}
	}

	for _, key := range []string{
		"POST /auth/login", "POST /auth/admin-sign-up", "POST /auth/validateToken",
		"POST /auth/change-password", "POST /auth/logout", "GET /auth/devices",
		"DELETE /auth/devices", "DELETE /auth/devices/{id}", "POST /oauth/config",
		"POST /oauth/authorize", "POST /oauth/callback", "GET /users/me", "POST /api-key",
		"GET /users", "POST /users", "GET /users/{id}", "PUT /users/{id}", "DELETE /users/{id}",
		"GET /server-info/ping", "GET /server-info/version",
		"POST /asset/bulk-upload-check", "POST /asset/upload",
	} {
		require.True(t, seen[key], "missing route %s", key)
	}

	require.True(t, public["POST /auth/login"])
	require.True(t, public["POST /oauth/callback"])
	require.False(t, public["GET /auth/devices"])
	require.False(t, public["POST /asset/upload"])
}

func TestNewApp_InvalidVersion(t *testing.T) {
	_, err := newApp(nil, nil, config.Config{ServerVersion: "latest"})
	require.Error(t, err)
}
