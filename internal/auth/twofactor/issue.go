package twofactor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/mithaqapp/mithaq/internal/models"
	"github.com/mithaqapp/mithaq/pkg/mail"
	"github.com/mithaqapp/mithaq/pkg/metrics"
)

const maxClientSignatureLen = 255

// IssueInput describes one issuance request. SourceIP and ClientSignature are
// best-effort metadata: malformed values are dropped, never rejected.
type IssueInput struct {
	SubjectID       string
	Destination     string
	Purpose         models.CodePurpose
	SourceIP        string
	ClientSignature string
}

// IssueResult reports a successful issuance. Code is populated only when the
// service was configured with RevealCodes, for local testing.
type IssueResult struct {
	CodeID     string
	ExpiresAt  time.Time
	DailyUsed  int
	DailyLimit int
	Code       string
}

// Issue generates, persists, and delivers a new code for the pair.
//
// Older unused codes are invalidated only after the new row is safely stored,
// so a failed insert never leaves the subject without a valid code. If email
// delivery fails the fresh row is deleted again: a code the user never
// received must not consume their quota.
func (s *Service) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	subjectID := strings.TrimSpace(input.SubjectID)
	destination := strings.TrimSpace(strings.ToLower(input.Destination))
	if subjectID == "" {
		return nil, errors.New("twofactor: subject id is required")
	}
	if destination == "" {
		return nil, errors.New("twofactor: destination is required")
	}
	if !input.Purpose.Valid() {
		return nil, ErrInvalidPurpose
	}

	decision, err := s.CheckIssuance(ctx, subjectID, input.Purpose)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		metrics.IssuanceDenied.WithLabelValues(string(decision.Reason)).Inc()
		return nil, &RateLimitedError{Decision: decision}
	}

	value, err := s.generate()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	code := models.VerificationCode{
		SubjectID:       subjectID,
		Destination:     destination,
		Value:           value,
		Purpose:         input.Purpose,
		AttemptsAllowed: s.cfg.MaxAttempts,
		ExpiresAt:       now.Add(s.cfg.CodeTTL),
		SourceIP:        sanitiseSourceIP(input.SourceIP),
		ClientSignature: sanitiseClientSignature(input.ClientSignature),
	}

	// Each store round-trip gets its own timeout. Sharing one deadline across
	// the whole issuance would start the rollback countdown before delivery,
	// which can take far longer than StoreTimeout before failing.
	insertCtx, cancelInsert := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancelInsert()
	if err := s.db.WithContext(insertCtx).Create(&code).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}

	// Invalidation happens strictly after the insert succeeded. Failure here
	// is logged and swallowed: the new code stays valid either way.
	invalidateCtx, cancelInvalidate := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancelInvalidate()
	if err := s.db.WithContext(invalidateCtx).
		Model(&models.VerificationCode{}).
		Where("subject_id = ? AND purpose = ? AND used = ? AND id <> ?", subjectID, input.Purpose, false, code.ID).
		Update("used", true).Error; err != nil {
		s.log.Error("failed to invalidate superseded codes",
			zap.String("subject_id", subjectID),
			zap.String("purpose", string(input.Purpose)),
			zap.Error(err),
		)
	}

	if err := s.deliver(ctx, destination, input.Purpose, value); err != nil {
		// The compensating delete must run even when the caller's context has
		// expired or been cancelled during the slow delivery attempt; an
		// orphaned row would consume quota for a code nobody received.
		rollbackCtx, cancelRollback := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
		defer cancelRollback()
		if delErr := s.db.WithContext(rollbackCtx).Delete(&models.VerificationCode{}, "id = ?", code.ID).Error; delErr != nil {
			s.log.Error("failed to roll back undelivered code",
				zap.String("code_id", code.ID),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	metrics.CodesIssued.WithLabelValues(string(input.Purpose)).Inc()
	s.log.Info("verification code issued",
		zap.String("subject_id", subjectID),
		zap.String("purpose", string(input.Purpose)),
		zap.Time("expires_at", code.ExpiresAt),
	)

	result := &IssueResult{
		CodeID:     code.ID,
		ExpiresAt:  code.ExpiresAt,
		DailyUsed:  decision.DailyUsed + 1,
		DailyLimit: decision.DailyLimit,
	}
	if s.cfg.RevealCodes {
		result.Code = value
	}
	return result, nil
}

func (s *Service) deliver(ctx context.Context, destination string, purpose models.CodePurpose, value string) error {
	if s.mailer == nil {
		return errors.New("no mailer configured")
	}

	msg := mail.Message{
		To:      []string{destination},
		Subject: subjectFor(purpose),
		Body:    bodyFor(purpose, value, int(s.cfg.CodeTTL.Minutes())),
	}

	err := s.mailer.Send(ctx, msg)
	if errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Debug("smtp disabled, skipping code delivery")
		return nil
	}
	return err
}

func subjectFor(purpose models.CodePurpose) string {
	switch purpose {
	case models.PurposeEnable2FA:
		return "Confirm enabling two-step verification"
	case models.PurposeDisable2FA:
		return "Confirm disabling two-step verification"
	default:
		return "Your Mithaq sign-in code"
	}
}

func bodyFor(purpose models.CodePurpose, value string, expiryMinutes int) string {
	var intro string
	switch purpose {
	case models.PurposeEnable2FA:
		intro = "Use this code to finish enabling two-step verification on your account:"
	case models.PurposeDisable2FA:
		intro = "Use this code to confirm turning off two-step verification on your account:"
	default:
		intro = "Use this code to finish signing in to your account:"
	}
	return fmt.Sprintf("%s\n\n\t%s\n\nThe code expires in %d minutes. If you did not request it, you can safely ignore this message.\n", intro, value, expiryMinutes)
}

// sanitiseSourceIP keeps only syntactically valid IPv4/IPv6 literals.
func sanitiseSourceIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if net.ParseIP(raw) == nil {
		return ""
	}
	return raw
}

// sanitiseClientSignature drops oversized or non-printable signatures.
func sanitiseClientSignature(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxClientSignatureLen {
		return ""
	}
	for _, r := range raw {
		if !unicode.IsPrint(r) {
			return ""
		}
	}
	return raw
}
