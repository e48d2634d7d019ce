package models

import "time"

// CodePurpose scopes verification codes so a code issued for one flow cannot
// be replayed in another. Rate-limit counters are partitioned per purpose.
type CodePurpose string

const (
	PurposeLogin      CodePurpose = "login"
	PurposeEnable2FA  CodePurpose = "enable_2fa"
	PurposeDisable2FA CodePurpose = "disable_2fa"
)

// Valid reports whether the purpose is one of the known values.
func (p CodePurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeEnable2FA, PurposeDisable2FA:
		return true
	}
	return false
}

// VerificationCode is one issued one-time code. CreatedAt is authoritative
// for all rate-limit arithmetic.
type VerificationCode struct {
	BaseModel

	SubjectID   string      `gorm:"type:uuid;not null;index:idx_codes_subject_purpose" json:"subject_id"`
	Destination string      `gorm:"not null" json:"destination"`
	Value       string      `gorm:"not null;index" json:"-"`
	Purpose     CodePurpose `gorm:"type:varchar(32);not null;index:idx_codes_subject_purpose" json:"purpose"`

	Used bool `gorm:"default:false" json:"used"`
	// UsedAt is set only when a code is consumed by a successful
	// verification. Codes superseded by a newer issuance get Used=true with
	// UsedAt left nil, which is how quota reset tells the two apart.
	UsedAt *time.Time `json:"used_at"`

	AttemptsMade    int `gorm:"default:0" json:"attempts_made"`
	AttemptsAllowed int `gorm:"default:5" json:"attempts_allowed"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`

	// Best-effort request metadata, validated before storage and dropped
	// silently when malformed.
	SourceIP        string `json:"source_ip"`
	ClientSignature string `json:"client_signature"`
}

// Consumable reports whether the code can still satisfy a verification at the
// given instant. The grace window absorbs clock skew between issuance and
// verification.
func (c *VerificationCode) Consumable(now time.Time, grace time.Duration) bool {
	if c.Used {
		return false
	}
	if c.AttemptsMade >= c.AttemptsAllowed {
		return false
	}
	return !now.After(c.ExpiresAt.Add(grace))
}
