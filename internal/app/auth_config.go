package app

import (
	"time"

	"github.com/mithaqapp/mithaq/internal/auth"
	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
	"github.com/mithaqapp/mithaq/internal/services"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	challengeTTL := c.JWT.ChallengeTTL
	if challengeTTL <= 0 {
		challengeTTL = auth.DefaultChallengeTokenTTL
	}

	return auth.JWTConfig{
		Secret:            c.JWT.Secret,
		Issuer:            c.JWT.Issuer,
		AccessTokenTTL:    ttl,
		ChallengeTokenTTL: challengeTTL,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = 48
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// CredentialConfig converts AuthConfig into CredentialVerifier parameters.
func (c AuthConfig) CredentialConfig() auth.CredentialConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return auth.CredentialConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// CodeServiceConfig converts TwoFactorConfig into the code service parameters.
func (c TwoFactorConfig) CodeServiceConfig() twofactor.Config {
	return twofactor.Config{
		DailyLimit:    c.DailyLimit,
		MinInterval:   c.MinInterval,
		BurstCooldown: c.BurstCooldown,
		CodeTTL:       c.CodeTTL,
		VerifyGrace:   c.VerifyGrace,
		MaxAttempts:   c.MaxAttempts,
		StoreTimeout:  c.StoreTimeout,
		RevealCodes:   c.RevealCodes,
	}
}

// TrustedDeviceConfig converts TwoFactorConfig into trusted device parameters.
func (c TwoFactorConfig) TrustedDeviceConfig() services.TrustedDeviceConfig {
	return services.TrustedDeviceConfig{
		TrustTTL: c.TrustTTL,
	}
}
