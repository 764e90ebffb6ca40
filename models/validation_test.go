package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireRejected(t *testing.T, err error, field, rule string) {
	t.Helper()
	require.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.True(t, verrs.Has(field, rule), "expected %s/%s in %v", field, rule, verrs)
}

func TestValidate_LoginCredential(t *testing.T) {
	cred := &LoginCredential{Email: "TestUser@Email.com", Password: "password"}
	require.NoError(t, Validate(cred))
	require.Equal(t, "testuser@email.com", cred.Email)

	require.NoError(t, Validate(&LoginCredential{Email: "immich@localhost", Password: "x"}))

	requireRejected(t, Validate(&LoginCredential{Email: "not-an-email", Password: "x"}), "email", "loginemail")
	requireRejected(t, Validate(&LoginCredential{Email: "Bob <bob@example.com>", Password: "x"}), "email", "loginemail")
	requireRejected(t, Validate(&LoginCredential{Email: "", Password: "x"}), "email", "required")
	requireRejected(t, Validate(&LoginCredential{Email: "a@b.c", Password: ""}), "password", "required")
}

func TestValidate_ReportsEveryField(t *testing.T) {
	err := Validate(&LoginCredential{})

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, verrs, 2)
	require.Contains(t, err.Error(), "email should not be empty")
	require.Contains(t, err.Error(), "password should not be empty")
}

func TestValidate_ChangePasswordMinLength(t *testing.T) {
	for n := 0; n <= 12; n++ {
		req := &ChangePassword{Password: "old-password", NewPassword: strings.Repeat("a", n)}
		err := Validate(req)
		switch {
		case n == 0:
			requireRejected(t, err, "newPassword", "required")
		case n < 8:
			requireRejected(t, err, "newPassword", "min")
			require.Contains(t, err.Error(), "newPassword must be longer than or equal to 8 characters")
		default:
			require.NoError(t, err, "length %d should be accepted", n)
		}
	}

	requireRejected(t, Validate(&ChangePassword{NewPassword: "long-enough"}), "password", "required")
}

func TestValidate_SignUpComposesCredential(t *testing.T) {
	req := &SignUp{
		LoginCredential: LoginCredential{Email: "Admin@Immich.App", Password: "password"},
		FirstName:       "Immich",
		LastName:        "Admin",
	}
	require.NoError(t, Validate(req))
	require.Equal(t, "admin@immich.app", req.Email)

	err := Validate(&SignUp{LoginCredential: LoginCredential{Email: "bad", Password: "p"}})
	requireRejected(t, err, "email", "loginemail")
	requireRejected(t, err, "firstName", "required")
	requireRejected(t, err, "lastName", "required")
}

func TestValidate_OAuthBodies(t *testing.T) {
	requireRejected(t, Validate(&OAuthCallback{}), "url", "required")
	requireRejected(t, Validate(&OAuthConfig{}), "redirectUri", "required")
	require.NoError(t, Validate(&OAuthCallback{URL: "app.immich:/?code=1&state=2"}))
	require.NoError(t, Validate(&OAuthConfig{RedirectURI: "http://localhost/auth/login"}))
}

func TestValidate_BulkUploadCheckDives(t *testing.T) {
	err := Validate(&AssetBulkUploadCheck{Assets: []AssetBulkUploadCheckItem{{ID: "a", Checksum: ""}}})
	requireRejected(t, err, "checksum", "required")
}

func TestParseServerVersion(t *testing.T) {
	v, err := ParseServerVersion("v1.82.1")
	require.NoError(t, err)
	require.Equal(t, ServerVersionResponse{Major: 1, Minor: 82, Patch: 1}, v)
	require.Equal(t, "1.82.1", v.String())

	v, err = ParseServerVersion("2")
	require.NoError(t, err)
	require.Equal(t, 2, v.Major)

	_, err = ParseServerVersion("1.x")
	require.Error(t, err)
}
