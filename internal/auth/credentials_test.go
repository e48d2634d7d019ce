package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mithaqapp/mithaq/internal/database/testutil"
	"github.com/mithaqapp/mithaq/internal/models"
)

func newVerifierEnv(t *testing.T) (*CredentialVerifier, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	verifier, err := NewCredentialVerifier(testutil.MustOpenTestDB(t), CredentialConfig{
		LockoutThreshold: 3,
		LockoutDuration:  10 * time.Minute,
		Clock:            func() time.Time { return now },
	})
	require.NoError(t, err)
	return verifier, &now
}

func registerUser(t *testing.T, v *CredentialVerifier) *models.User {
	t.Helper()
	user, err := v.Register(RegisterInput{
		Username: "amina",
		Email:    "Amina@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	return user
}

func TestAuthenticateByUsernameAndEmail(t *testing.T) {
	verifier, _ := newVerifierEnv(t)
	registerUser(t, verifier)

	for _, identifier := range []string{"amina", "AMINA", "amina@example.com", "Amina@Example.com"} {
		user, err := verifier.Authenticate(AuthenticateInput{
			Identifier: identifier,
			Password:   "correct horse",
		})
		require.NoError(t, err, "identifier %q", identifier)
		require.Equal(t, "amina", user.Username)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	verifier, _ := newVerifierEnv(t)
	registerUser(t, verifier)

	_, err := verifier.Authenticate(AuthenticateInput{
		Identifier: "amina",
		Password:   "wrong",
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = verifier.Authenticate(AuthenticateInput{
		Identifier: "nobody",
		Password:   "correct horse",
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateLocksAfterRepeatedFailures(t *testing.T) {
	verifier, now := newVerifierEnv(t)
	registerUser(t, verifier)

	for i := 0; i < 2; i++ {
		_, err := verifier.Authenticate(AuthenticateInput{Identifier: "amina", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Third failure trips the lock.
	_, err := verifier.Authenticate(AuthenticateInput{Identifier: "amina", Password: "wrong"})
	require.ErrorIs(t, err, ErrAccountLocked)

	// The right password is also refused while locked.
	_, err = verifier.Authenticate(AuthenticateInput{Identifier: "amina", Password: "correct horse"})
	require.ErrorIs(t, err, ErrAccountLocked)

	// The lock clears once the duration elapses.
	*now = now.Add(11 * time.Minute)
	user, err := verifier.Authenticate(AuthenticateInput{Identifier: "amina", Password: "correct horse"})
	require.NoError(t, err)
	require.Zero(t, user.FailedAttempts)
	require.Nil(t, user.LockedUntil)
}

func TestAuthenticateSuccessResetsFailureCount(t *testing.T) {
	verifier, _ := newVerifierEnv(t)
	registered := registerUser(t, verifier)

	_, err := verifier.Authenticate(AuthenticateInput{Identifier: "amina", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = verifier.Authenticate(AuthenticateInput{Identifier: "amina", Password: "correct horse"})
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, verifier.db.Take(&stored, "id = ?", registered.ID).Error)
	require.Zero(t, stored.FailedAttempts)
}

func TestAuthenticateRejectsDisabledAccount(t *testing.T) {
	verifier, _ := newVerifierEnv(t)
	user := registerUser(t, verifier)

	require.NoError(t, verifier.db.Model(user).Update("is_active", false).Error)

	_, err := verifier.Authenticate(AuthenticateInput{Identifier: "amina", Password: "correct horse"})
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	verifier, _ := newVerifierEnv(t)
	registerUser(t, verifier)

	_, err := verifier.Register(RegisterInput{
		Username: "AMINA",
		Email:    "other@example.com",
		Password: "pw",
	})
	require.ErrorIs(t, err, ErrUserExists)

	_, err = verifier.Register(RegisterInput{
		Username: "other",
		Email:    "amina@example.com",
		Password: "pw",
	})
	require.ErrorIs(t, err, ErrUserExists)
}

func TestRecordLoginStampsUser(t *testing.T) {
	verifier, now := newVerifierEnv(t)
	user := registerUser(t, verifier)

	require.NoError(t, verifier.RecordLogin(user.ID, "203.0.113.7"))

	var stored models.User
	require.NoError(t, verifier.db.Take(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, now.Unix(), stored.LastLoginAt.Unix())
	require.Equal(t, "203.0.113.7", stored.LastLoginIP)
}
