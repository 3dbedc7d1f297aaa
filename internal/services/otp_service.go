package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/icanedev/smartcane-api/internal/config"
	"github.com/icanedev/smartcane-api/internal/models"
	pkglogger "github.com/icanedev/smartcane-api/pkg/logger"
)

// OTPLedger defines the interface for one-time passcode storage
type OTPLedger interface {
	CountRecent(ctx context.Context, email string, purpose models.OTPPurpose, since time.Time) (int, error)
	Create(ctx context.Context, otp *models.OTP) error
	LatestUnused(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error)
	MarkUsed(ctx context.Context, id int64, usedAt time.Time) error
	IncrementAttempts(ctx context.Context, id int64) (int, error)
}

// EmailDispatcher is the outbound email boundary. Dispatch happens after the
// passcode row has committed, so a delivery failure never loses the
// rate-limit record.
type EmailDispatcher interface {
	SendOTPEmail(ctx context.Context, recipient, code, displayName string, purpose models.OTPPurpose, ttl time.Duration) error
}

const otpCodeLength = 6

// OTPService issues and verifies one-time passcodes scoped by
// (email, purpose). Independent purposes never interfere: a pending
// registration code and a pending password-reset code for the same address
// run as separate flows.
type OTPService struct {
	repo   OTPLedger
	email  EmailDispatcher
	config config.OTPConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewOTPService creates a new OTPService
func NewOTPService(repo OTPLedger, email EmailDispatcher, config config.OTPConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *OTPService {
	return &OTPService{
		repo:   repo,
		email:  email,
		config: config,
		logger: logger,
		audit:  audit,
	}
}

// Issue generates a fresh passcode for (email, purpose), stores it, and
// dispatches it to the address. Issuance is rate-limited per (email, purpose)
// over the configured window. A new code supersedes earlier unused ones for
// the same scope without touching them.
//
// The row commits before dispatch: when the email collaborator fails the
// caller gets ErrEmailDelivery, but the stored code still counts against the
// rate limit and remains verifiable should the message have left anyway.
func (s *OTPService) Issue(ctx context.Context, email string, purpose models.OTPPurpose, displayName string) error {
	if !purpose.Valid() {
		return models.ErrBadRequest
	}

	now := time.Now().UTC()

	count, err := s.repo.CountRecent(ctx, email, purpose, now.Add(-s.config.RateLimitWindow))
	if err != nil {
		s.logger.Error("failed to count recent passcodes", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if count >= s.config.RateLimitMax {
		s.audit.LogOTPEvent(pkglogger.AuditEvent{
			EventType:     "otp_rate_limited",
			Email:         email,
			Success:       false,
			FailureReason: "rate_limit_exceeded",
		}, string(purpose))
		return models.ErrRateLimited
	}

	code, err := generateOTPCode()
	if err != nil {
		s.logger.Error("failed to generate passcode", slog.Any("error", err))
		return models.ErrInternalServer
	}

	otp := &models.OTP{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(s.validityWindow(purpose)),
	}
	if err := s.repo.Create(ctx, otp); err != nil {
		s.logger.Error("failed to store passcode", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendOTPEmail(ctx, email, code, displayName, purpose, s.validityWindow(purpose)); err != nil {
		s.logger.Error("passcode email dispatch failed",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		s.audit.LogOTPEvent(pkglogger.AuditEvent{
			EventType:     "otp_delivery_failed",
			Email:         email,
			Success:       false,
			FailureReason: "email_dispatch",
		}, string(purpose))
		return models.ErrEmailDelivery
	}

	s.audit.LogOTPEvent(pkglogger.AuditEvent{
		EventType: "otp_issued",
		Email:     email,
		Success:   true,
	}, string(purpose))

	return nil
}

// Verify checks a caller-supplied code against the most recently issued
// unused passcode for (email, purpose). Outcomes are kept distinct:
// ErrOTPNotFound when no unused code exists, ErrOTPExpired past the validity
// window, ErrOTPInvalid on a mismatch, and ErrOTPTooManyAttempts once the
// code has absorbed too many wrong guesses. On success the code is consumed
// and can never verify again.
func (s *OTPService) Verify(ctx context.Context, email, code string, purpose models.OTPPurpose) error {
	if !purpose.Valid() {
		return models.ErrBadRequest
	}

	otp, err := s.repo.LatestUnused(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.auditVerifyFailure(email, purpose, "not_found")
			return models.ErrOTPNotFound
		}
		s.logger.Error("failed to load passcode", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if otp.AttemptCount >= s.config.MaxVerifyAttempts {
		s.auditVerifyFailure(email, purpose, "too_many_attempts")
		return models.ErrOTPTooManyAttempts
	}

	if otp.Expired(time.Now()) {
		s.auditVerifyFailure(email, purpose, "expired")
		return models.ErrOTPExpired
	}

	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(code)) != 1 {
		attempts, err := s.repo.IncrementAttempts(ctx, otp.ID)
		if err != nil {
			s.logger.Error("failed to record passcode mismatch", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if attempts >= s.config.MaxVerifyAttempts {
			s.auditVerifyFailure(email, purpose, "too_many_attempts")
			return models.ErrOTPTooManyAttempts
		}
		s.auditVerifyFailure(email, purpose, "code_mismatch")
		return models.ErrOTPInvalid
	}

	if err := s.repo.MarkUsed(ctx, otp.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, models.ErrOTPInvalid) {
			// A concurrent verification won the flip
			s.auditVerifyFailure(email, purpose, "already_used")
			return models.ErrOTPInvalid
		}
		s.logger.Error("failed to consume passcode", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogOTPEvent(pkglogger.AuditEvent{
		EventType: "otp_verified",
		Email:     email,
		Success:   true,
	}, string(purpose))

	return nil
}

func (s *OTPService) auditVerifyFailure(email string, purpose models.OTPPurpose, reason string) {
	s.audit.LogOTPEvent(pkglogger.AuditEvent{
		EventType:     "otp_verify_failed",
		Email:         email,
		Success:       false,
		FailureReason: reason,
	}, string(purpose))
}

func (s *OTPService) validityWindow(purpose models.OTPPurpose) time.Duration {
	if purpose == models.OTPPurposePasswordReset {
		return s.config.PasswordResetTTL
	}
	return s.config.TTL
}

// generateOTPCode returns a uniformly random fixed-length numeric code.
// Leading zeros are preserved, so the keyspace is the full 10^6.
func generateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to draw random code: %w", err)
	}

	return fmt.Sprintf("%0*d", otpCodeLength, n), nil
}
