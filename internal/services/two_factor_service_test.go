package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
	"github.com/mithaqapp/mithaq/internal/database/testutil"
	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/pkg/mail"
)

type settingsMailer struct {
	sent []mail.Message
}

func (m *settingsMailer) Send(ctx context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type settingsEnv struct {
	db     *gorm.DB
	mailer *settingsMailer
	svc    *TwoFactorService
	now    time.Time
}

func newSettingsEnv(t *testing.T) *settingsEnv {
	t.Helper()

	env := &settingsEnv{
		db:     testutil.MustOpenTestDB(t),
		mailer: &settingsMailer{},
		now:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	codes, err := twofactor.NewService(env.db, env.mailer, twofactor.Config{}, twofactor.WithClock(clock))
	require.NoError(t, err)

	devices, err := NewTrustedDeviceService(env.db, TrustedDeviceConfig{Clock: clock})
	require.NoError(t, err)

	audit, err := NewAuditService(env.db)
	require.NoError(t, err)

	svc, err := NewTwoFactorService(env.db, codes, devices, audit)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func (e *settingsEnv) createUser(t *testing.T, twoFactor bool) *models.User {
	t.Helper()
	user := &models.User{
		Username:         "amina",
		Email:            "amina@example.com",
		Password:         "x",
		IsActive:         true,
		TwoFactorEnabled: twoFactor,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *settingsEnv) latestCode(t *testing.T, userID string) string {
	t.Helper()
	var code models.VerificationCode
	require.NoError(t, e.db.
		Where("subject_id = ?", userID).
		Order("created_at DESC").
		Take(&code).Error)
	return code.Value
}

func TestEnableTwoFactorFlow(t *testing.T) {
	env := newSettingsEnv(t)
	user := env.createUser(t, false)
	req := SettingsRequest{UserID: user.ID, IPAddress: "203.0.113.7"}

	_, err := env.svc.BeginEnable(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, env.mailer.sent, 1)

	code := env.latestCode(t, user.ID)
	env.now = env.now.Add(time.Minute)

	require.NoError(t, env.svc.ConfirmEnable(context.Background(), req, code))

	var stored models.User
	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	require.True(t, stored.TwoFactorEnabled)

	// Enabling again is rejected outright.
	_, err = env.svc.BeginEnable(context.Background(), req)
	require.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
}

func TestConfirmEnableRejectsWrongCode(t *testing.T) {
	env := newSettingsEnv(t)
	user := env.createUser(t, false)
	req := SettingsRequest{UserID: user.ID}

	_, err := env.svc.BeginEnable(context.Background(), req)
	require.NoError(t, err)

	right := env.latestCode(t, user.ID)
	wrong := "000000"
	if wrong == right {
		wrong = "000001"
	}

	err = env.svc.ConfirmEnable(context.Background(), req, wrong)
	require.ErrorIs(t, err, twofactor.ErrInvalidCode)

	var stored models.User
	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	require.False(t, stored.TwoFactorEnabled)
}

func TestDisableTwoFactorRevokesTrustedDevices(t *testing.T) {
	env := newSettingsEnv(t)
	user := env.createUser(t, true)
	req := SettingsRequest{UserID: user.ID}

	devices, err := NewTrustedDeviceService(env.db, TrustedDeviceConfig{
		Clock: func() time.Time { return env.now },
	})
	require.NoError(t, err)
	_, err = devices.Trust(TrustInput{UserID: user.ID, Signature: "sig"})
	require.NoError(t, err)

	_, err = env.svc.BeginDisable(context.Background(), req)
	require.NoError(t, err)

	code := env.latestCode(t, user.ID)
	env.now = env.now.Add(time.Minute)

	require.NoError(t, env.svc.ConfirmDisable(context.Background(), req, code))

	var stored models.User
	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	require.False(t, stored.TwoFactorEnabled)

	trusted, err := devices.IsTrusted(user.ID, "sig", "")
	require.NoError(t, err)
	require.False(t, trusted)
}

func TestDisableRequiresEnabledAccount(t *testing.T) {
	env := newSettingsEnv(t)
	user := env.createUser(t, false)
	req := SettingsRequest{UserID: user.ID}

	_, err := env.svc.BeginDisable(context.Background(), req)
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)

	err = env.svc.ConfirmDisable(context.Background(), req, "123456")
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)
}

func TestSettingsCodesUseDistinctPurposes(t *testing.T) {
	env := newSettingsEnv(t)
	user := env.createUser(t, false)
	req := SettingsRequest{UserID: user.ID}

	_, err := env.svc.BeginEnable(context.Background(), req)
	require.NoError(t, err)

	var code models.VerificationCode
	require.NoError(t, env.db.
		Where("subject_id = ?", user.ID).
		Take(&code).Error)
	require.Equal(t, models.PurposeEnable2FA, code.Purpose)
}
