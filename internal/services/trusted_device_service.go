package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/pkg/crypto"
)

// DefaultTrustTTL is how long a device trust grant lasts before the user must
// complete a second factor again.
const DefaultTrustTTL = 30 * 24 * time.Hour

// ErrDeviceNotFound indicates that no trusted device matches the identifier.
var ErrDeviceNotFound = errors.New("trusted device: not found")

// TrustedDeviceConfig describes tunable behaviour for the TrustedDeviceService.
type TrustedDeviceConfig struct {
	TrustTTL time.Duration
	Clock    func() time.Time
}

// TrustInput carries the client details recorded when a device is trusted.
type TrustInput struct {
	UserID    string
	Signature string
	Label     string
	IPAddress string
}

// TrustedDeviceService manages the devices allowed to skip the second factor.
type TrustedDeviceService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewTrustedDeviceService constructs a TrustedDeviceService.
func NewTrustedDeviceService(db *gorm.DB, cfg TrustedDeviceConfig) (*TrustedDeviceService, error) {
	if db == nil {
		return nil, errors.New("trusted device service: db is required")
	}

	ttl := cfg.TrustTTL
	if ttl <= 0 {
		ttl = DefaultTrustTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &TrustedDeviceService{db: db, ttl: ttl, now: clock}, nil
}

// IsTrusted reports whether the signature matches an active trust grant for
// the user. A match also refreshes the device's last-seen metadata.
func (s *TrustedDeviceService) IsTrusted(userID, signature, ipAddress string) (bool, error) {
	signature = strings.TrimSpace(signature)
	if userID == "" || signature == "" {
		return false, nil
	}

	var device models.TrustedDevice
	err := s.db.Where("user_id = ? AND fingerprint_hash = ?", userID, crypto.Fingerprint(signature)).
		Order("created_at DESC").
		Take(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("trusted device service: query device: %w", err)
	}

	now := s.now()
	if !device.Active(now) {
		return false, nil
	}

	if err := s.db.Model(&device).Updates(map[string]any{
		"last_seen_at": now,
		"last_seen_ip": strings.TrimSpace(ipAddress),
	}).Error; err != nil {
		return false, fmt.Errorf("trusted device service: touch device: %w", err)
	}

	return true, nil
}

// Trust records the device as allowed to skip the second factor. An existing
// grant for the same signature is renewed rather than duplicated.
func (s *TrustedDeviceService) Trust(input TrustInput) (*models.TrustedDevice, error) {
	signature := strings.TrimSpace(input.Signature)
	if input.UserID == "" {
		return nil, errors.New("trusted device service: user id is required")
	}
	if signature == "" {
		return nil, errors.New("trusted device service: signature is required")
	}

	now := s.now()
	hash := crypto.Fingerprint(signature)

	var device models.TrustedDevice
	err := s.db.Where("user_id = ? AND fingerprint_hash = ? AND revoked_at IS NULL", input.UserID, hash).
		Take(&device).Error
	if err == nil {
		updates := map[string]any{
			"expires_at":   now.Add(s.ttl),
			"last_seen_at": now,
			"last_seen_ip": strings.TrimSpace(input.IPAddress),
		}
		if label := strings.TrimSpace(input.Label); label != "" {
			updates["label"] = label
		}
		if err := s.db.Model(&device).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("trusted device service: renew device: %w", err)
		}
		device.ExpiresAt = updates["expires_at"].(time.Time)
		device.LastSeenAt = now
		return &device, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("trusted device service: query device: %w", err)
	}

	device = models.TrustedDevice{
		UserID:          input.UserID,
		FingerprintHash: hash,
		Label:           strings.TrimSpace(input.Label),
		LastSeenAt:      now,
		LastSeenIP:      strings.TrimSpace(input.IPAddress),
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.db.Create(&device).Error; err != nil {
		return nil, fmt.Errorf("trusted device service: create device: %w", err)
	}

	return &device, nil
}

// List returns the user's devices, most recently seen first, including
// expired and revoked grants so the user can review history.
func (s *TrustedDeviceService) List(userID string) ([]models.TrustedDevice, error) {
	if userID == "" {
		return nil, errors.New("trusted device service: user id is required")
	}

	var devices []models.TrustedDevice
	err := s.db.Where("user_id = ?", userID).
		Order("last_seen_at DESC").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("trusted device service: list devices: %w", err)
	}
	return devices, nil
}

// Revoke withdraws a single trust grant.
func (s *TrustedDeviceService) Revoke(userID, deviceID string) error {
	if userID == "" || deviceID == "" {
		return ErrDeviceNotFound
	}

	result := s.db.Model(&models.TrustedDevice{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", deviceID, userID).
		Updates(map[string]any{"revoked_at": s.now()})
	if result.Error != nil {
		return fmt.Errorf("trusted device service: revoke device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// RevokeAll withdraws every active trust grant for the user. Used when
// two-factor authentication is disabled or after a credential reset.
func (s *TrustedDeviceService) RevokeAll(userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("trusted device service: user id is required")
	}

	result := s.db.Model(&models.TrustedDevice{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]any{"revoked_at": s.now()})
	if result.Error != nil {
		return 0, fmt.Errorf("trusted device service: revoke devices: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupExpired deletes trust grants past their expiry plus revoked rows.
func (s *TrustedDeviceService) CleanupExpired() (int64, error) {
	now := s.now()
	result := s.db.Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL").
		Delete(&models.TrustedDevice{})
	if result.Error != nil {
		return 0, fmt.Errorf("trusted device service: cleanup devices: %w", result.Error)
	}
	return result.RowsAffected, nil
}
