package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/pkg/logger"
)

// Audit actions recorded by the authentication stack.
const (
	AuditLoginPassword    = "auth.login.password"
	AuditLoginTwoFactor   = "auth.login.two_factor"
	AuditLoginTrusted     = "auth.login.trusted_device"
	AuditCodeIssued       = "auth.code.issued"
	AuditCodeDenied       = "auth.code.denied"
	AuditCodeVerified     = "auth.code.verified"
	AuditTwoFactorEnable  = "auth.two_factor.enable"
	AuditTwoFactorDisable = "auth.two_factor.disable"
	AuditDeviceTrusted    = "auth.device.trusted"
	AuditDeviceRevoked    = "auth.device.revoked"
	AuditSessionRevoked   = "auth.session.revoked"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
	AuditDenied  = "denied"
)

// AuditEntry describes a single event to record.
type AuditEntry struct {
	UserID    string
	Action    string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// AuditService persists authentication events for later review.
type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, log: logger.WithModule("audit")}, nil
}

// Record writes an audit log row. Failures are logged and swallowed so an
// audit outage never blocks a login.
func (s *AuditService) Record(entry AuditEntry) {
	if err := s.record(entry); err != nil {
		s.log.Warn("failed to record audit entry",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

func (s *AuditService) record(entry AuditEntry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("audit service: action is required")
	}

	row := &models.AuditLog{
		Action:    action,
		Result:    entry.Result,
		IPAddress: strings.TrimSpace(entry.IPAddress),
		UserAgent: strings.TrimSpace(entry.UserAgent),
	}

	if userID := strings.TrimSpace(entry.UserID); userID != "" {
		row.UserID = &userID
	}

	if len(entry.Metadata) > 0 {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: encode metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(payload)
	}

	if err := s.db.Create(row).Error; err != nil {
		return fmt.Errorf("audit service: create entry: %w", err)
	}
	return nil
}

// CleanupOlderThan removes audit entries past the retention window.
func (s *AuditService) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, errors.New("audit service: retention must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListForUser returns the most recent events for a user, newest first.
func (s *AuditService) ListForUser(userID string, limit int) ([]models.AuditLog, error) {
	if userID == "" {
		return nil, errors.New("audit service: user id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var entries []models.AuditLog
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: list entries: %w", err)
	}
	return entries, nil
}
