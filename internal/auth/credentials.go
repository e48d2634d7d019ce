package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
	// ErrUserExists is returned when a registration collides with an existing account.
	ErrUserExists = errors.New("auth: user already exists")
)

// CredentialConfig defines tunable behaviour for the CredentialVerifier.
type CredentialConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains metadata required to verify a user's password.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// RegisterInput captures the details required to register a new account.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// CredentialVerifier implements username/password verification with account
// lockout controls. It never issues sessions; that is the login service's job.
type CredentialVerifier struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewCredentialVerifier builds a verifier with sane defaults.
func NewCredentialVerifier(db *gorm.DB, cfg CredentialConfig) (*CredentialVerifier, error) {
	if db == nil {
		return nil, errors.New("credential verifier: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &CredentialVerifier{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated
// user when successful. It does not record a successful login; the caller
// does that once the full login flow, second factor included, completes.
func (v *CredentialVerifier) Authenticate(input AuthenticateInput) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := v.db.Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", identity, identity).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("credential verifier: query user: %w", err)
	}

	now := v.clock()

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	// Unlock the account if the lockout duration has elapsed.
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		user.LockedUntil = nil
		user.FailedAttempts = 0
		if err := v.db.Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("credential verifier: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, v.handleFailedAttempt(&user, now)
	}

	if user.FailedAttempts != 0 || user.LockedUntil != nil {
		user.FailedAttempts = 0
		user.LockedUntil = nil
		if err := v.db.Model(&user).Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
		}).Error; err != nil {
			return nil, fmt.Errorf("credential verifier: clear failed attempts: %w", err)
		}
	}

	return &user, nil
}

// RecordLogin stamps the user's last login metadata after a completed login.
func (v *CredentialVerifier) RecordLogin(userID, ipAddress string) error {
	now := v.clock()
	err := v.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login_at": now,
			"last_login_ip": strings.TrimSpace(ipAddress),
		}).Error
	if err != nil {
		return fmt.Errorf("credential verifier: record login: %w", err)
	}
	return nil
}

func (v *CredentialVerifier) handleFailedAttempt(user *models.User, now time.Time) error {
	user.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
	}

	locked := false
	if user.FailedAttempts >= v.threshold {
		lockUntil := now.Add(v.duration)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
		locked = true
	}

	if err := v.db.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("credential verifier: record failed attempt: %w", err)
	}

	if locked {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// Register creates a new local account with a hashed password.
func (v *CredentialVerifier) Register(input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" {
		return nil, errors.New("credential verifier: username and email are required")
	}
	if input.Password == "" {
		return nil, errors.New("credential verifier: password is required")
	}

	var count int64
	err := v.db.Model(&models.User{}).
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = ?", username, email).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("credential verifier: check existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("credential verifier: hash password: %w", err)
	}

	user := &models.User{
		Username:  username,
		Email:     email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsActive:  true,
	}

	if err := v.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("credential verifier: create user: %w", err)
	}

	return user, nil
}
