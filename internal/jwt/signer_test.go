package jwt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meetingintel/server/internal/jwt"
)

const (
	testIssuer = "https://meetings.example.com"
	secretA    = "0123456789abcdef0123456789abcdef"
	secretB    = "fedcba9876543210fedcba9876543210"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	signer := jwt.NewSigner(secretA, "", testIssuer, time.Hour, 30*24*time.Hour)

	token, err := signer.SignAccess("client-1", "alice@example.com", "meetings")
	require.NoError(t, err)

	std, custom, err := signer.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, "client-1", std.Subject)
	require.Equal(t, testIssuer, std.Issuer)
	require.Equal(t, jwt.TypeAccess, custom.Type)
	require.Equal(t, "alice@example.com", custom.Email)
	require.Equal(t, "meetings", custom.Scope)
}

func TestRefreshTokenCarriesFamily(t *testing.T) {
	signer := jwt.NewSigner(secretA, "", testIssuer, time.Hour, 30*24*time.Hour)

	token, err := signer.SignRefresh("client-1", "alice@example.com", "meetings", "fam-1")
	require.NoError(t, err)

	std, custom, err := signer.VerifyRefresh(token)
	require.NoError(t, err)
	require.Equal(t, "client-1", std.Subject)
	require.Equal(t, jwt.TypeRefresh, custom.Type)
	require.Equal(t, "fam-1", custom.Family)
}

func TestRefreshTokenRejectedAsAccess(t *testing.T) {
	signer := jwt.NewSigner(secretA, "", testIssuer, time.Hour, 30*24*time.Hour)

	refresh, err := signer.SignRefresh("client-1", "alice@example.com", "meetings", "fam-1")
	require.NoError(t, err)

	_, _, err = signer.VerifyAccess(refresh)
	require.Error(t, err)

	access, err := signer.SignAccess("client-1", "alice@example.com", "meetings")
	require.NoError(t, err)
	_, _, err = signer.VerifyRefresh(access)
	require.Error(t, err)
}

func TestPreviousSecretAcceptedDuringRotation(t *testing.T) {
	old := jwt.NewSigner(secretA, "", testIssuer, time.Hour, 30*24*time.Hour)
	token, err := old.SignAccess("client-1", "alice@example.com", "meetings")
	require.NoError(t, err)

	rotated := jwt.NewSigner(secretB, secretA, testIssuer, time.Hour, 30*24*time.Hour)
	_, _, err = rotated.VerifyAccess(token)
	require.NoError(t, err)

	// Without the previous secret the old token is dead.
	clean := jwt.NewSigner(secretB, "", testIssuer, time.Hour, 30*24*time.Hour)
	_, _, err = clean.VerifyAccess(token)
	require.Error(t, err)
}

func TestWrongIssuerRejected(t *testing.T) {
	signer := jwt.NewSigner(secretA, "", testIssuer, time.Hour, 30*24*time.Hour)
	other := jwt.NewSigner(secretA, "", "https://elsewhere.example.com", time.Hour, 30*24*time.Hour)

	token, err := other.SignAccess("client-1", "alice@example.com", "meetings")
	require.NoError(t, err)

	_, _, err = signer.VerifyAccess(token)
	require.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	signer := jwt.NewSigner(secretA, "", testIssuer, -time.Minute, 30*24*time.Hour)

	token, err := signer.SignAccess("client-1", "alice@example.com", "meetings")
	require.NoError(t, err)

	_, _, err = signer.VerifyAccess(token)
	require.Error(t, err)
}
