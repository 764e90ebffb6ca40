package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testUser() User {
	return User{
		ID:                   "d8b5e1b4-0000-4000-8000-000000000001",
		Email:                "admin@immich.app",
		Password:             "$2a$10$hash",
		FirstName:            "Immich",
		LastName:             "Admin",
		ProfileImagePath:     "upload/profile/admin.jpg",
		IsAdmin:              true,
		ShouldChangePassword: true,
		OAuthID:              "oauth-sub",
		CreatedAt:            time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMapLoginResponse(t *testing.T) {
	user := testUser()

	resp := MapLoginResponse(user, "opaque-token")

	require.Equal(t, LoginResponse{
		AccessToken:          "opaque-token",
		UserID:               user.ID,
		UserEmail:            user.Email,
		FirstName:            user.FirstName,
		LastName:             user.LastName,
		ProfileImagePath:     user.ProfileImagePath,
		IsAdmin:              true,
		ShouldChangePassword: true,
	}, resp)
}

func TestMapLoginResponse_WireFields(t *testing.T) {
	raw, err := json.Marshal(MapLoginResponse(testUser(), "tok"))
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	require.ElementsMatch(t, []string{
		"accessToken", "userId", "userEmail", "firstName", "lastName",
		"profileImagePath", "isAdmin", "shouldChangePassword",
	}, keys)
	require.NotContains(t, string(raw), "hash")
	require.NotContains(t, string(raw), "oauth")
}

func TestMapUserToken_Current(t *testing.T) {
	token := UserToken{ID: "abc", DeviceType: "Chrome", DeviceOS: "macOS"}
	same := "abc"
	other := "xyz"
	prefix := "ab"

	require.True(t, MapUserToken(token, &same).Current)
	require.False(t, MapUserToken(token, &other).Current)
	require.False(t, MapUserToken(token, &prefix).Current)
	require.False(t, MapUserToken(token, nil).Current)
}

func TestMapUserToken_Fields(t *testing.T) {
	created := time.Date(2023, 4, 5, 6, 7, 8, 9_000_000, time.FixedZone("CEST", 2*60*60))
	updated := created.Add(90 * time.Minute)
	token := UserToken{
		ID:         "abc",
		Token:      "secret-hash",
		UserID:     "user-1",
		DeviceType: "Firefox",
		DeviceOS:   "Linux",
		CreatedAt:  created,
		UpdatedAt:  updated,
	}

	resp := MapUserToken(token, nil)

	require.Equal(t, "abc", resp.ID)
	require.Equal(t, "Firefox", resp.DeviceType)
	require.Equal(t, "Linux", resp.DeviceOS)
	require.Equal(t, "2023-04-05T04:07:08.009Z", resp.CreatedAt)
	require.Equal(t, "2023-04-05T05:37:08.009Z", resp.UpdatedAt)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"deviceOS":"Linux"`)
	require.Contains(t, string(raw), `"deviceType":"Firefox"`)
	require.NotContains(t, string(raw), "secret-hash")
}

func TestMapUserToken_TimestampRoundTrip(t *testing.T) {
	for _, ts := range []time.Time{
		time.Date(2020, 2, 29, 23, 59, 59, 999_000_000, time.UTC),
		time.Date(1999, 12, 31, 0, 0, 0, 1_000_000, time.Local),
		time.Now().Truncate(time.Millisecond),
	} {
		resp := MapUserToken(UserToken{ID: "x", CreatedAt: ts, UpdatedAt: ts}, nil)

		parsed, err := time.Parse(time.RFC3339Nano, resp.CreatedAt)
		require.NoError(t, err)
		require.True(t, ts.Equal(parsed), "expected %s, got %s", ts, parsed)
		require.True(t, strings.HasSuffix(resp.UpdatedAt, "Z"))
	}
}

func TestNormalizeEmail_Idempotent(t *testing.T) {
	for _, email := range []string{"Test@Email.com", "ADMIN@LOCALHOST", "already@lower.case", "MiXeD.Case+Tag@Example.ORG"} {
		once := NormalizeEmail(email)
		require.Equal(t, once, NormalizeEmail(once))
		require.Equal(t, strings.ToLower(email), once)
	}
}

func TestMapUser(t *testing.T) {
	user := testUser()

	resp := MapUser(user)

	require.Equal(t, user.ID, resp.ID)
	require.Equal(t, "2023-01-02T03:04:05.000Z", resp.CreatedAt)
	require.True(t, resp.ShouldChangePassword)
}
