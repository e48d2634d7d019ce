package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/internal/services"
	"github.com/mithaqapp/mithaq/pkg/logger"
	"github.com/mithaqapp/mithaq/pkg/metrics"
)

// LoginInput carries everything the client submits on the password step.
type LoginInput struct {
	Identifier      string
	Password        string
	DeviceSignature string
	IPAddress       string
	UserAgent       string
}

// CompleteInput carries the second-factor submission. A non-empty
// DeviceSignature is trusted on success unless SkipDeviceTrust is set.
type CompleteInput struct {
	ChallengeToken  string
	Code            string
	SkipDeviceTrust bool
	DeviceLabel     string
	DeviceSignature string
	IPAddress       string
	UserAgent       string
}

// LoginResult is the outcome of the password step. Exactly one of the two
// shapes is populated: a completed login carries Tokens and Session; a login
// waiting on its second factor carries ChallengeToken plus delivery details
// and no session of any kind.
type LoginResult struct {
	TwoFactorRequired bool
	Tokens            TokenPair
	Session           *models.Session
	User              *models.User

	ChallengeToken string
	Destination    string
	Throttle       *twofactor.Decision
}

// LoginService orchestrates password verification, the optional second
// factor, and session issuance.
type LoginService struct {
	credentials *CredentialVerifier
	sessions    *SessionService
	jwt         *JWTService
	codes       *twofactor.Service
	devices     *services.TrustedDeviceService
	audit       *services.AuditService
	log         *zap.Logger
}

// NewLoginService constructs a LoginService.
func NewLoginService(
	credentials *CredentialVerifier,
	sessions *SessionService,
	jwtService *JWTService,
	codes *twofactor.Service,
	devices *services.TrustedDeviceService,
	audit *services.AuditService,
) (*LoginService, error) {
	if credentials == nil {
		return nil, errors.New("login service: credential verifier is required")
	}
	if sessions == nil {
		return nil, errors.New("login service: session service is required")
	}
	if jwtService == nil {
		return nil, errors.New("login service: jwt service is required")
	}
	if codes == nil {
		return nil, errors.New("login service: two-factor service is required")
	}
	return &LoginService{
		credentials: credentials,
		sessions:    sessions,
		jwt:         jwtService,
		codes:       codes,
		devices:     devices,
		audit:       audit,
		log:         logger.WithModule("login"),
	}, nil
}

// Login verifies the password and either completes the login or parks it
// behind a second-factor challenge. No session exists until the challenge is
// answered.
func (s *LoginService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.credentials.Authenticate(AuthenticateInput{
		Identifier: input.Identifier,
		Password:   input.Password,
		IPAddress:  input.IPAddress,
		UserAgent:  input.UserAgent,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.recordAudit("", services.AuditLoginPassword, services.AuditFailure, input.IPAddress, input.UserAgent, nil)
		return nil, err
	}

	if !user.TwoFactorEnabled {
		return s.completeLogin(user, services.AuditLoginPassword, input.IPAddress, input.UserAgent)
	}

	if s.devices != nil && input.DeviceSignature != "" {
		trusted, err := s.devices.IsTrusted(user.ID, input.DeviceSignature, input.IPAddress)
		if err != nil {
			s.log.Warn("trusted device lookup failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		} else if trusted {
			return s.completeLogin(user, services.AuditLoginTrusted, input.IPAddress, input.UserAgent)
		}
	}

	return s.beginChallenge(ctx, user, input)
}

// CompleteTwoFactor consumes a login code against a pending challenge and, on
// success, issues the session the password step withheld.
func (s *LoginService) CompleteTwoFactor(ctx context.Context, input CompleteInput) (*LoginResult, error) {
	claims, err := s.jwt.ValidateChallengeToken(input.ChallengeToken)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	var user models.User
	if err := s.credentials.db.Take(&user, "id = ?", claims.UserID).Error; err != nil {
		return nil, fmt.Errorf("login service: load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if _, err := s.codes.Verify(ctx, user.ID, models.PurposeLogin, input.Code); err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.recordAudit(user.ID, services.AuditLoginTwoFactor, services.AuditFailure, input.IPAddress, input.UserAgent, nil)
		return nil, err
	}

	if !input.SkipDeviceTrust && s.devices != nil && strings.TrimSpace(input.DeviceSignature) != "" {
		if _, err := s.devices.Trust(services.TrustInput{
			UserID:    user.ID,
			Signature: input.DeviceSignature,
			Label:     input.DeviceLabel,
			IPAddress: input.IPAddress,
		}); err != nil {
			s.log.Warn("failed to trust device",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		} else {
			s.recordAudit(user.ID, services.AuditDeviceTrusted, services.AuditSuccess, input.IPAddress, input.UserAgent, nil)
		}
	}

	return s.completeLogin(&user, services.AuditLoginTwoFactor, input.IPAddress, input.UserAgent)
}

// ResendCode issues a fresh login code for a pending challenge, subject to
// the same issuance limits as the original send.
func (s *LoginService) ResendCode(ctx context.Context, challengeToken, deviceSignature, ipAddress string) (*LoginResult, error) {
	claims, err := s.jwt.ValidateChallengeToken(challengeToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	if err := s.credentials.db.Take(&user, "id = ?", claims.UserID).Error; err != nil {
		return nil, fmt.Errorf("login service: load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return s.beginChallenge(ctx, &user, LoginInput{
		DeviceSignature: deviceSignature,
		IPAddress:       ipAddress,
	})
}

func (s *LoginService) beginChallenge(ctx context.Context, user *models.User, input LoginInput) (*LoginResult, error) {
	challenge, err := s.jwt.GenerateChallengeToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("login service: generate challenge token: %w", err)
	}

	result := &LoginResult{
		TwoFactorRequired: true,
		User:              user,
		ChallengeToken:    challenge,
		Destination:       maskEmail(user.Email),
	}

	_, err = s.codes.Issue(ctx, twofactor.IssueInput{
		SubjectID:       user.ID,
		Destination:     user.Email,
		Purpose:         models.PurposeLogin,
		SourceIP:        input.IPAddress,
		ClientSignature: input.DeviceSignature,
	})
	if err != nil {
		var limited *twofactor.RateLimitedError
		if errors.As(err, &limited) {
			// The challenge stays resumable: the user may still hold a code
			// from an earlier send.
			result.Throttle = &limited.Decision
			s.recordAudit(user.ID, services.AuditCodeDenied, services.AuditDenied, input.IPAddress, input.UserAgent, map[string]any{
				"purpose": string(models.PurposeLogin),
				"reason":  string(limited.Decision.Reason),
			})
			return result, nil
		}
		return nil, err
	}

	s.recordAudit(user.ID, services.AuditCodeIssued, services.AuditSuccess, input.IPAddress, input.UserAgent, map[string]any{
		"purpose": string(models.PurposeLogin),
	})

	return result, nil
}

func (s *LoginService) completeLogin(user *models.User, action, ipAddress, userAgent string) (*LoginResult, error) {
	tokens, session, err := s.sessions.CreateSession(user.ID, SessionMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("login service: create session: %w", err)
	}

	if err := s.credentials.RecordLogin(user.ID, ipAddress); err != nil {
		s.log.Warn("failed to record login timestamp",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.recordAudit(user.ID, action, services.AuditSuccess, ipAddress, userAgent, nil)

	return &LoginResult{
		Tokens:  tokens,
		Session: session,
		User:    user,
	}, nil
}

func (s *LoginService) recordAudit(userID, action, result, ipAddress, userAgent string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(services.AuditEntry{
		UserID:    userID,
		Action:    action,
		Result:    result,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Metadata:  metadata,
	})
}

// maskEmail hides most of the local part so the pending-login response can
// hint at the destination without disclosing it.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:2] + "***" + domain
}
