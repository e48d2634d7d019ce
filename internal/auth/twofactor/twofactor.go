// Package twofactor implements the one-time-code lifecycle used as the
// platform's second authentication factor: issuance under a rate limiter,
// email delivery with rollback, and verification with quota reset.
package twofactor

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/pkg/logger"
	"github.com/mithaqapp/mithaq/pkg/mail"
)

const (
	defaultDailyLimit    = 6
	defaultMinInterval   = 30 * time.Second
	defaultBurstCooldown = 30 * time.Second
	defaultCodeTTL       = 15 * time.Minute
	defaultVerifyGrace   = 5 * time.Minute
	defaultMaxAttempts   = 5
	defaultStoreTimeout  = 3 * time.Second

	codeLength = 6
)

var (
	// ErrStoreFailed signals that the verification code could not be persisted.
	ErrStoreFailed = errors.New("twofactor: could not create verification code")
	// ErrDeliveryFailed signals that the code email could not be sent. The
	// persisted row is rolled back before this is returned.
	ErrDeliveryFailed = errors.New("twofactor: failed to send verification code")
	// ErrInvalidCode covers wrong, expired, exhausted, and already-used codes.
	// The message is intentionally generic so callers cannot distinguish the
	// failure modes; logs carry the precise cause.
	ErrInvalidCode = errors.New("twofactor: code is invalid or expired")
	// ErrInvalidPurpose is returned for purposes outside the known set.
	ErrInvalidPurpose = errors.New("twofactor: invalid code purpose")
)

// Config holds the tunable constants of the code lifecycle. It is passed in
// at construction so environments and tests can adjust it; the service never
// mutates it.
type Config struct {
	// DailyLimit caps issuances per (subject, purpose) per UTC day.
	DailyLimit int
	// MinInterval is the minimum delay between consecutive issuances.
	MinInterval time.Duration
	// BurstCooldown is the extra pause demanded before the fourth code of a
	// day when the third was requested moments ago.
	BurstCooldown time.Duration
	// CodeTTL is how long an issued code stays valid.
	CodeTTL time.Duration
	// VerifyGrace extends expiry at verification time to absorb clock skew
	// between issuance and verification.
	VerifyGrace time.Duration
	// MaxAttempts bounds verification tries against a single code.
	MaxAttempts int
	// StoreTimeout bounds every store round-trip.
	StoreTimeout time.Duration
	// RevealCodes includes the raw code in issue results. Local testing only.
	RevealCodes bool
}

func (c Config) withDefaults() Config {
	if c.DailyLimit <= 0 {
		c.DailyLimit = defaultDailyLimit
	}
	if c.MinInterval <= 0 {
		c.MinInterval = defaultMinInterval
	}
	if c.BurstCooldown <= 0 {
		c.BurstCooldown = defaultBurstCooldown
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = defaultCodeTTL
	}
	if c.VerifyGrace <= 0 {
		c.VerifyGrace = defaultVerifyGrace
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	return c
}

// Option customises the Service.
type Option func(*Service)

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithGenerator overrides the random code generator, primarily for tests.
func WithGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// Service issues and verifies one-time codes. All coordination state lives in
// the database, which arbitrates concurrent writers across devices and tabs.
type Service struct {
	db       *gorm.DB
	mailer   mail.Mailer
	cfg      Config
	now      func() time.Time
	generate func() (string, error)
	log      *zap.Logger
}

// NewService constructs the code lifecycle service.
func NewService(db *gorm.DB, mailer mail.Mailer, cfg Config, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("twofactor: db is required")
	}

	service := &Service{
		db:       db,
		mailer:   mailer,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		generate: generateCode,
		log:      logger.WithModule("twofactor"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}
