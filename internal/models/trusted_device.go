package models

import "time"

// TrustedDevice records a device that completed a successful two-factor
// verification. Logins from a trusted device skip the second factor until the
// trust expires or is revoked.
type TrustedDevice struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;index:idx_devices_user_fp" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	// FingerprintHash is the SHA-256 of the client-supplied device signature.
	// The raw signature is never persisted.
	FingerprintHash string `gorm:"not null;index:idx_devices_user_fp" json:"-"`

	Label      string     `json:"label"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	LastSeenIP string     `json:"last_seen_ip"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
}

// Active reports whether the trust grant is currently honoured.
func (d *TrustedDevice) Active(now time.Time) bool {
	if d.RevokedAt != nil {
		return false
	}
	return now.Before(d.ExpiresAt)
}
