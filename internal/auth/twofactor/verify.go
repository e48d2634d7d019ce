package twofactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/pkg/metrics"
)

// VerifyResult reports a successfully consumed code.
type VerifyResult struct {
	CodeID     string
	ConsumedAt time.Time
}

// Verify checks a submitted code for the pair and consumes it on success.
//
// Candidates are fetched by value without filtering on used/expired state so
// the precise failure mode can be logged; the caller-facing error stays
// generic either way. A successful verification resets the pair's issuance
// quota. A wrong guess increments the attempt counter of the pair's current
// live code, bounding brute-force sweeps of the six-digit space within a
// single code's lifetime.
func (s *Service) Verify(ctx context.Context, subjectID string, purpose models.CodePurpose, value string) (*VerifyResult, error) {
	subjectID = strings.TrimSpace(subjectID)
	value = strings.TrimSpace(value)
	if subjectID == "" {
		return nil, errors.New("twofactor: subject id is required")
	}
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	if value == "" {
		metrics.CodeVerifications.WithLabelValues(string(purpose), "failure").Inc()
		return nil, ErrInvalidCode
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var candidates []models.VerificationCode
	err := s.db.WithContext(storeCtx).
		Where("subject_id = ? AND purpose = ? AND value = ?", subjectID, purpose, value).
		Order("created_at DESC").
		Find(&candidates).Error
	if err != nil {
		// A timed-out or failed lookup must never be treated as a successful
		// verification; unlike the limiter, this path fails closed.
		return nil, fmt.Errorf("twofactor: lookup code: %w", err)
	}

	now := s.now().UTC()

	var match *models.VerificationCode
	for i := range candidates {
		if candidates[i].Consumable(now, s.cfg.VerifyGrace) {
			match = &candidates[i]
			break
		}
	}

	if match == nil {
		if len(candidates) == 0 {
			s.log.Info("verification failed: no code with submitted value",
				zap.String("subject_id", subjectID),
				zap.String("purpose", string(purpose)),
			)
		} else {
			s.log.Info("verification failed: matching code unusable",
				zap.String("subject_id", subjectID),
				zap.String("purpose", string(purpose)),
				zap.Int("candidates", len(candidates)),
			)
		}
		s.recordFailedAttempt(storeCtx, subjectID, purpose, now)
		metrics.CodeVerifications.WithLabelValues(string(purpose), "failure").Inc()
		return nil, ErrInvalidCode
	}

	// Guard on used=false so two near-simultaneous submissions cannot both
	// consume the same code.
	res := s.db.WithContext(storeCtx).
		Model(&models.VerificationCode{}).
		Where("id = ? AND used = ?", match.ID, false).
		Updates(map[string]any{
			"used":          true,
			"used_at":       now,
			"attempts_made": gorm.Expr("attempts_made + 1"),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("twofactor: consume code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.CodeVerifications.WithLabelValues(string(purpose), "failure").Inc()
		return nil, ErrInvalidCode
	}

	// Correct verification restores a fresh daily quota instead of making the
	// subject wait out the rest of the window. Best effort only.
	if err := s.resetQuota(storeCtx, subjectID, purpose); err != nil {
		s.log.Error("failed to reset issuance quota",
			zap.String("subject_id", subjectID),
			zap.String("purpose", string(purpose)),
			zap.Error(err),
		)
	}

	metrics.CodeVerifications.WithLabelValues(string(purpose), "success").Inc()
	s.log.Info("verification code consumed",
		zap.String("subject_id", subjectID),
		zap.String("purpose", string(purpose)),
		zap.String("code_id", match.ID),
	)

	return &VerifyResult{CodeID: match.ID, ConsumedAt: now}, nil
}

// recordFailedAttempt charges a wrong guess against the pair's current live
// code, if any. Best effort: a failure here only loosens brute-force bounds.
func (s *Service) recordFailedAttempt(ctx context.Context, subjectID string, purpose models.CodePurpose, now time.Time) {
	var live models.VerificationCode
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND purpose = ? AND used = ?", subjectID, purpose, false).
		Order("created_at DESC").
		First(&live).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("failed to load live code for attempt accounting", zap.Error(err))
		}
		return
	}
	if !live.Consumable(now, s.cfg.VerifyGrace) {
		return
	}

	if err := s.db.WithContext(ctx).
		Model(&models.VerificationCode{}).
		Where("id = ?", live.ID).
		UpdateColumn("attempts_made", gorm.Expr("attempts_made + 1")).Error; err != nil {
		s.log.Warn("failed to record failed attempt", zap.String("code_id", live.ID), zap.Error(err))
	}
}
