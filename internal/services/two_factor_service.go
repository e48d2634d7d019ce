package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
	"github.com/mithaqapp/mithaq/internal/models"
)

var (
	// ErrTwoFactorAlreadyEnabled is returned when enabling 2FA on an account
	// that already has it on.
	ErrTwoFactorAlreadyEnabled = errors.New("two factor: already enabled")
	// ErrTwoFactorNotEnabled is returned when disabling 2FA on an account
	// that never enabled it.
	ErrTwoFactorNotEnabled = errors.New("two factor: not enabled")
)

// TwoFactorService drives enabling and disabling email-based two-factor
// authentication. Both directions require a confirmed one-time code so a
// hijacked session cannot silently change the setting.
type TwoFactorService struct {
	db      *gorm.DB
	codes   *twofactor.Service
	devices *TrustedDeviceService
	audit   *AuditService
}

// NewTwoFactorService constructs a TwoFactorService.
func NewTwoFactorService(db *gorm.DB, codes *twofactor.Service, devices *TrustedDeviceService, audit *AuditService) (*TwoFactorService, error) {
	if db == nil {
		return nil, errors.New("two factor service: db is required")
	}
	if codes == nil {
		return nil, errors.New("two factor service: code service is required")
	}
	return &TwoFactorService{db: db, codes: codes, devices: devices, audit: audit}, nil
}

// SettingsRequest identifies the user and client asking for a settings change.
type SettingsRequest struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// BeginEnable sends an enable_2fa code to the user's registered email.
func (s *TwoFactorService) BeginEnable(ctx context.Context, req SettingsRequest) (*twofactor.IssueResult, error) {
	user, err := s.loadUser(req.UserID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	return s.issue(ctx, user, models.PurposeEnable2FA, req)
}

// ConfirmEnable verifies the enable_2fa code and turns the setting on.
func (s *TwoFactorService) ConfirmEnable(ctx context.Context, req SettingsRequest, code string) error {
	user, err := s.loadUser(req.UserID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}

	if _, err := s.codes.Verify(ctx, user.ID, models.PurposeEnable2FA, code); err != nil {
		return err
	}

	if err := s.setEnabled(user.ID, true); err != nil {
		return err
	}

	if s.audit != nil {
		s.audit.Record(AuditEntry{
			UserID:    user.ID,
			Action:    AuditTwoFactorEnable,
			Result:    AuditSuccess,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
		})
	}
	return nil
}

// BeginDisable sends a disable_2fa code to the user's registered email.
func (s *TwoFactorService) BeginDisable(ctx context.Context, req SettingsRequest) (*twofactor.IssueResult, error) {
	user, err := s.loadUser(req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	return s.issue(ctx, user, models.PurposeDisable2FA, req)
}

// ConfirmDisable verifies the disable_2fa code, turns the setting off, and
// withdraws every trusted-device grant so a re-enable starts clean.
func (s *TwoFactorService) ConfirmDisable(ctx context.Context, req SettingsRequest, code string) error {
	user, err := s.loadUser(req.UserID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if _, err := s.codes.Verify(ctx, user.ID, models.PurposeDisable2FA, code); err != nil {
		return err
	}

	if err := s.setEnabled(user.ID, false); err != nil {
		return err
	}

	if s.devices != nil {
		if _, err := s.devices.RevokeAll(user.ID); err != nil {
			return fmt.Errorf("two factor service: revoke trusted devices: %w", err)
		}
	}

	if s.audit != nil {
		s.audit.Record(AuditEntry{
			UserID:    user.ID,
			Action:    AuditTwoFactorDisable,
			Result:    AuditSuccess,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
		})
	}
	return nil
}

func (s *TwoFactorService) issue(ctx context.Context, user *models.User, purpose models.CodePurpose, req SettingsRequest) (*twofactor.IssueResult, error) {
	result, err := s.codes.Issue(ctx, twofactor.IssueInput{
		SubjectID:   user.ID,
		Destination: user.Email,
		Purpose:     purpose,
		SourceIP:    req.IPAddress,
	})
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.Record(AuditEntry{
			UserID:    user.ID,
			Action:    AuditCodeIssued,
			Result:    AuditSuccess,
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Metadata:  map[string]any{"purpose": string(purpose)},
		})
	}
	return result, nil
}

func (s *TwoFactorService) loadUser(userID string) (*models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("two factor service: user id is required")
	}
	var user models.User
	err := s.db.Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("two factor service: user %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("two factor service: load user: %w", err)
	}
	return &user, nil
}

func (s *TwoFactorService) setEnabled(userID string, enabled bool) error {
	err := s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("two_factor_enabled", enabled).Error
	if err != nil {
		return fmt.Errorf("two factor service: update setting: %w", err)
	}
	return nil
}
