package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mithaqapp/mithaq/internal/auth"
	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "mithaq-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 5*time.Minute, cfg.Auth.JWT.ChallengeTTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 64, cfg.Auth.Session.RefreshLength)
	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)

	require.Equal(t, 4, cfg.TwoFactor.DailyLimit)
	require.Equal(t, 45*time.Second, cfg.TwoFactor.MinInterval)
	require.Equal(t, 90*time.Second, cfg.TwoFactor.BurstCooldown)
	require.Equal(t, 10*time.Minute, cfg.TwoFactor.CodeTTL)
	require.Equal(t, 2*time.Minute, cfg.TwoFactor.VerifyGrace)
	require.Equal(t, 3, cfg.TwoFactor.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.TwoFactor.StoreTimeout)
	require.Equal(t, 168*time.Hour, cfg.TwoFactor.TrustTTL)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, "smtp-user", cfg.Email.SMTP.Username)
	require.Equal(t, "smtp-pass", cfg.Email.SMTP.Password)
	require.Equal(t, "no-reply@example.com", cfg.Email.SMTP.From)
	require.True(t, cfg.Email.SMTP.UseTLS)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.True(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/mithaq.sqlite", cfg.Database.Path)

	require.Equal(t, "mithaq", cfg.Auth.JWT.Issuer)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 10*time.Minute, cfg.Auth.JWT.ChallengeTTL)
	require.Equal(t, 720*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 48, cfg.Auth.Session.RefreshLength)

	require.Equal(t, 6, cfg.TwoFactor.DailyLimit)
	require.Equal(t, 30*time.Second, cfg.TwoFactor.MinInterval)
	require.Equal(t, 30*time.Second, cfg.TwoFactor.BurstCooldown)
	require.Equal(t, 15*time.Minute, cfg.TwoFactor.CodeTTL)
	require.Equal(t, 5*time.Minute, cfg.TwoFactor.VerifyGrace)
	require.Equal(t, 5, cfg.TwoFactor.MaxAttempts)
	require.Equal(t, 3*time.Second, cfg.TwoFactor.StoreTimeout)
	require.False(t, cfg.TwoFactor.RevealCodes)
	require.Equal(t, 720*time.Hour, cfg.TwoFactor.TrustTTL)

	require.False(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, 587, cfg.Email.SMTP.Port)
	require.True(t, cfg.Email.SMTP.UseTLS)
	require.Equal(t, 10*time.Second, cfg.Email.SMTP.Timeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MITHAQ_SERVER_PORT", "9999")
	t.Setenv("MITHAQ_TWO_FACTOR_DAILY_LIMIT", "2")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, 2, cfg.TwoFactor.DailyLimit)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret:       "secret",
				Issuer:       "issuer",
				TTL:          30 * time.Minute,
				ChallengeTTL: 5 * time.Minute,
			},
			Session: SessionSettings{
				RefreshTTL:    10 * time.Hour,
				RefreshLength: 32,
			},
			Local: LocalAuthSettings{
				LockoutThreshold: 4,
				LockoutDuration:  10 * time.Minute,
			},
		},
	}

	jwtCfg := cfg.Auth.JWTServiceConfig()
	require.Equal(t, auth.JWTConfig{
		Secret:            "secret",
		Issuer:            "issuer",
		AccessTokenTTL:    30 * time.Minute,
		ChallengeTokenTTL: 5 * time.Minute,
	}, jwtCfg)

	sessionCfg := cfg.Auth.SessionServiceConfig()
	require.Equal(t, auth.SessionConfig{
		RefreshTokenTTL: 10 * time.Hour,
		RefreshLength:   32,
	}, sessionCfg)

	credCfg := cfg.Auth.CredentialConfig()
	require.Equal(t, auth.CredentialConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, credCfg)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)
	require.Equal(t, auth.DefaultChallengeTokenTTL, jwtCfg.ChallengeTokenTTL)

	sessionCfg := cfg.SessionServiceConfig()
	require.Equal(t, auth.DefaultRefreshTokenTTL, sessionCfg.RefreshTokenTTL)
	require.Equal(t, 48, sessionCfg.RefreshLength)

	credCfg := cfg.CredentialConfig()
	require.Equal(t, defaultLockoutThreshold, credCfg.LockoutThreshold)
	require.Equal(t, defaultLockoutDuration, credCfg.LockoutDuration)
}

func TestTwoFactorConfigAdapters(t *testing.T) {
	cfg := TwoFactorConfig{
		DailyLimit:    4,
		MinInterval:   45 * time.Second,
		BurstCooldown: 90 * time.Second,
		CodeTTL:       10 * time.Minute,
		VerifyGrace:   2 * time.Minute,
		MaxAttempts:   3,
		StoreTimeout:  2 * time.Second,
		RevealCodes:   true,
		TrustTTL:      168 * time.Hour,
	}

	codeCfg := cfg.CodeServiceConfig()
	require.Equal(t, twofactor.Config{
		DailyLimit:    4,
		MinInterval:   45 * time.Second,
		BurstCooldown: 90 * time.Second,
		CodeTTL:       10 * time.Minute,
		VerifyGrace:   2 * time.Minute,
		MaxAttempts:   3,
		StoreTimeout:  2 * time.Second,
		RevealCodes:   true,
	}, codeCfg)

	deviceCfg := cfg.TrustedDeviceConfig()
	require.Equal(t, 168*time.Hour, deviceCfg.TrustTTL)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}
