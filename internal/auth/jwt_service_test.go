package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestJWT(t *testing.T, now *time.Time) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "mithaq-test",
		Clock:  func() time.Time { return *now },
	})
	require.NoError(t, err)
	return svc
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	token, err := svc.GenerateAccessToken("user-1", "session-1")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, "mithaq-test", claims.Issuer)
	require.Empty(t, claims.Scope)
}

func TestAccessTokenExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	token, err := svc.GenerateAccessToken("user-1", "session-1")
	require.NoError(t, err)

	now = now.Add(DefaultAccessTokenTTL + time.Minute)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestChallengeTokenScope(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	challenge, err := svc.GenerateChallengeToken("user-1")
	require.NoError(t, err)

	claims, err := svc.ValidateChallengeToken(challenge)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, ScopeTwoFactorPending, claims.Scope)
	require.Empty(t, claims.SessionID)

	// A challenge token never grants API access.
	_, err = svc.ValidateAccessToken(challenge)
	require.Error(t, err)

	// And an access token never answers a challenge.
	access, err := svc.GenerateAccessToken("user-1", "session-1")
	require.NoError(t, err)
	_, err = svc.ValidateChallengeToken(access)
	require.Error(t, err)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	other, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "someone-else",
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	token, err := other.GenerateAccessToken("user-1", "session-1")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestJWT(t, &now)

	forged, err := NewJWTService(JWTConfig{
		Secret: "other-secret",
		Issuer: "mithaq-test",
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	token, err := forged.GenerateAccessToken("user-1", "session-1")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}
