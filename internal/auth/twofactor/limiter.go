package twofactor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mithaqapp/mithaq/internal/models"
)

// DenyReason classifies why issuance was refused.
type DenyReason string

const (
	// ReasonQuotaExceeded means the daily ceiling is exhausted; recoverable
	// only by waiting for the next UTC day.
	ReasonQuotaExceeded DenyReason = "quota_exceeded"
	// ReasonTooSoon means the minimum delay or burst cooldown has not elapsed.
	ReasonTooSoon DenyReason = "too_soon"
)

// Decision is the rate limiter's verdict. Wait times are typed fields so no
// consumer ever has to parse them back out of the display message.
type Decision struct {
	Allowed    bool
	Reason     DenyReason
	Message    string
	RetryAt    time.Time
	Wait       time.Duration
	DailyUsed  int
	DailyLimit int
}

// RateLimitedError carries a denying Decision through an error return.
type RateLimitedError struct {
	Decision Decision
}

func (e *RateLimitedError) Error() string {
	return e.Decision.Message
}

// CheckIssuance decides whether a new code may be issued for the pair right
// now. Rules are evaluated in order and the first failing one wins: the daily
// ceiling is checked before the timing rules so an exhausted subject is told
// to come back tomorrow rather than in thirty seconds.
//
// A store failure does NOT block issuance: the limiter fails open, trading
// strict enforcement for login availability while the store is degraded.
func (s *Service) CheckIssuance(ctx context.Context, subjectID string, purpose models.CodePurpose) (Decision, error) {
	allowed := Decision{Allowed: true, DailyLimit: s.cfg.DailyLimit}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var history []models.VerificationCode
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND purpose = ?", subjectID, purpose).
		Order("created_at DESC").
		Find(&history).Error
	if err != nil {
		s.log.Warn("issuance history lookup failed, allowing request",
			zap.String("subject_id", subjectID),
			zap.String("purpose", string(purpose)),
			zap.Error(err),
		)
		return allowed, nil
	}

	now := s.now().UTC()
	dayStart := startOfUTCDay(now)

	dailyUsed := 0
	for _, row := range history {
		if !row.CreatedAt.UTC().Before(dayStart) {
			dailyUsed++
		}
	}
	allowed.DailyUsed = dailyUsed

	if dailyUsed >= s.cfg.DailyLimit {
		retryAt := dayStart.Add(24 * time.Hour)
		return Decision{
			Reason:     ReasonQuotaExceeded,
			Message:    "Daily verification code limit reached. Please try again tomorrow.",
			RetryAt:    retryAt,
			Wait:       retryAt.Sub(now),
			DailyUsed:  dailyUsed,
			DailyLimit: s.cfg.DailyLimit,
		}, nil
	}

	if len(history) > 0 {
		last := history[0].CreatedAt.UTC()
		if now.Sub(last) < s.cfg.MinInterval {
			retryAt := last.Add(s.cfg.MinInterval)
			wait := retryAt.Sub(now)
			return Decision{
				Reason:     ReasonTooSoon,
				Message:    fmt.Sprintf("Please wait %d seconds before requesting a new code.", wholeSeconds(wait)),
				RetryAt:    retryAt,
				Wait:       wait,
				DailyUsed:  dailyUsed,
				DailyLimit: s.cfg.DailyLimit,
			}, nil
		}
	}

	// The caller is asking for what would become the fourth code of the day.
	// If the third was minted less than a cooldown ago, demand a pause. The
	// cooldown is configurable, so the message formatter handles multi-unit
	// durations even though the default fits in seconds.
	if dailyUsed == 3 && len(history) >= 3 {
		third := history[2].CreatedAt.UTC()
		if now.Sub(third) < s.cfg.BurstCooldown {
			retryAt := third.Add(s.cfg.BurstCooldown)
			wait := retryAt.Sub(now)
			return Decision{
				Reason:     ReasonTooSoon,
				Message:    fmt.Sprintf("Several codes were requested in quick succession. Please wait %s before trying again.", formatWait(wait)),
				RetryAt:    retryAt,
				Wait:       wait,
				DailyUsed:  dailyUsed,
				DailyLimit: s.cfg.DailyLimit,
			}, nil
		}
	}

	return allowed, nil
}

// resetQuota clears the pair's issuance history for the limiter, keeping only
// consumed rows: they remain as an audit trail and keep the minimum-delay rule
// anchored to the just-used code. Superseded and still-open rows go away, so
// the subject regains a fresh daily quota immediately after a successful
// verification.
func (s *Service) resetQuota(ctx context.Context, subjectID string, purpose models.CodePurpose) error {
	return s.db.WithContext(ctx).
		Where("subject_id = ? AND purpose = ? AND used_at IS NULL", subjectID, purpose).
		Delete(&models.VerificationCode{}).Error
}

func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// wholeSeconds rounds a wait up to whole seconds so the reported delay never
// understates the remaining time.
func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second > 0 {
		secs++
	}
	return secs
}

// formatWait renders a duration as an hours/minutes/seconds breakdown, e.g.
// "1 hour 5 minutes 30 seconds".
func formatWait(d time.Duration) string {
	total := wholeSeconds(d)
	if total <= 0 {
		return "0 seconds"
	}

	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, pluralise(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, pluralise(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, pluralise(seconds, "second"))
	}
	return strings.Join(parts, " ")
}

func pluralise(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
