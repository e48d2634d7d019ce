package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// DefaultChallengeTokenTTL bounds how long a pending-second-factor challenge
// stays resumable.
const DefaultChallengeTokenTTL = 10 * time.Minute

// ScopeTwoFactorPending marks a token that only authorises completing the
// second factor of a login. It grants no API access.
const ScopeTwoFactorPending = "2fa:pending"

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenTTL    time.Duration
	ChallengeTokenTTL time.Duration
	Clock             func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	Scope     string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues and validates the platform's JSON Web Tokens.
type JWTService struct {
	secret       []byte
	issuer       string
	ttl          time.Duration
	challengeTTL time.Duration
	now          func() time.Time
}

// NewJWTService constructs a JWTService from the provided configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	challengeTTL := cfg.ChallengeTokenTTL
	if challengeTTL <= 0 {
		challengeTTL = DefaultChallengeTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:       []byte(cfg.Secret),
		issuer:       cfg.Issuer,
		ttl:          ttl,
		challengeTTL: challengeTTL,
		now:          now,
	}, nil
}

// GenerateAccessToken issues a signed JWT granting API access for a session.
func (s *JWTService) GenerateAccessToken(userID, sessionID string) (string, error) {
	if userID == "" {
		return "", errors.New("jwt: user id is required")
	}
	return s.sign(&Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
			ID:      sessionID,
		},
	}, s.ttl)
}

// GenerateChallengeToken issues the short-lived token a client holds while a
// login waits on its second factor. It deliberately carries no session id and
// is rejected by the API auth middleware through its scope.
func (s *JWTService) GenerateChallengeToken(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("jwt: user id is required")
	}
	return s.sign(&Claims{
		UserID: userID,
		Scope:  ScopeTwoFactorPending,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}, s.challengeTTL)
}

func (s *JWTService) sign(claims *Claims, ttl time.Duration) (string, error) {
	now := s.now()
	claims.Issuer = s.issuer
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses a signed JWT and rejects challenge-scoped tokens.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope == ScopeTwoFactorPending {
		return nil, errors.New("jwt: challenge token is not valid for API access")
	}
	return claims, nil
}

// ValidateChallengeToken parses a signed JWT and requires the pending
// second-factor scope.
func (s *JWTService) ValidateChallengeToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeTwoFactorPending {
		return nil, errors.New("jwt: not a challenge token")
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}
	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}

	return &claims, nil
}
