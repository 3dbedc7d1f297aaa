package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/icanedev/smartcane-api/internal/auth"
	"github.com/icanedev/smartcane-api/internal/models"
	pkgauth "github.com/icanedev/smartcane-api/pkg/auth"
	pkglogger "github.com/icanedev/smartcane-api/pkg/logger"
)

// GuardianStore defines the interface for guardian account persistence
type GuardianStore interface {
	GetByID(ctx context.Context, id int64) (*models.Guardian, error)
	GetByUsername(ctx context.Context, username string) (*models.Guardian, error)
	GetByEmail(ctx context.Context, email string) (*models.Guardian, error)
	GetByContactNumber(ctx context.Context, contactNumber string) (*models.Guardian, error)
	Create(ctx context.Context, guardian *models.Guardian) error
	UpdateEmail(ctx context.Context, guardianID int64, email string) error
	UpdatePassword(ctx context.Context, guardianID int64, passwordHash string) error
}

// DeviceDirectory reports whether a guardian already has a cane paired. The
// device subsystem itself is a separate concern; login only reads this flag.
type DeviceDirectory interface {
	HasRegisteredDevice(ctx context.Context, guardianID int64) (bool, error)
}

// AuthService handles authentication business logic
type AuthService struct {
	guardians GuardianStore
	devices   DeviceDirectory
	lockout   *LockoutService
	otp       *OTPService
	tm        *auth.TokenManager
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(guardians GuardianStore, devices DeviceDirectory, lockout *LockoutService, otp *OTPService, tm *auth.TokenManager, logger *slog.Logger, audit *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		guardians: guardians,
		devices:   devices,
		lockout:   lockout,
		otp:       otp,
		tm:        tm,
		logger:    logger,
		audit:     audit,
	}
}

// RegisterInput carries the fields for creating a guardian account
type RegisterInput struct {
	Username          string
	Password          string
	GuardianName      string
	Email             string
	ContactNumber     *string
	RelationshipToVIP *string
	Province          *string
	City              *string
	Barangay          *string
	Village           *string
	StreetAddress     *string
}

// LoginResult is the outcome of a successful authentication
type LoginResult struct {
	Guardian         *models.Guardian
	AccessToken      string
	RefreshToken     string
	DeviceRegistered bool
}

// Login authenticates a guardian and returns a fresh token pair.
//
// The lockout evaluation, credential check and ledger write all run inside
// one guarded transaction, so concurrent attempts for the same identity
// serialize and every failure lands in the ledger exactly once. The ledger
// write commits even though the login itself fails; only the lockout block
// path performs no writes at all.
func (s *AuthService) Login(ctx context.Context, username, password, ipAddress string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, models.ErrUnauthorized
	}

	usernameKey := &username
	var ipKey *string
	if ipAddress != "" {
		ipKey = &ipAddress
	}

	var result *LoginResult
	var authErr error

	err := s.lockout.Guard(ctx, usernameKey, ipKey, func(ctx context.Context) error {
		decision, err := s.lockout.Evaluate(ctx, usernameKey, ipKey)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			authErr = &models.LockoutError{RetryAfter: decision.RetryAfter}
			return nil
		}

		guardian, err := s.guardians.GetByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				if recErr := s.lockout.RecordFailure(ctx, usernameKey, ipKey); recErr != nil {
					return recErr
				}
				authErr = models.ErrUnauthorized
				return nil
			}
			return err
		}

		if err := pkgauth.ComparePassword(guardian.PasswordHash, password); err != nil {
			if recErr := s.lockout.RecordFailure(ctx, usernameKey, ipKey); recErr != nil {
				return recErr
			}
			authErr = models.ErrUnauthorized
			return nil
		}

		if err := s.lockout.ClearAttempts(ctx, usernameKey, ipKey); err != nil {
			return err
		}

		result = &LoginResult{Guardian: guardian}
		return nil
	})
	if err != nil {
		s.logger.Error("login transaction failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if authErr != nil {
		var lockout *models.LockoutError
		reason := "invalid_credentials"
		if errors.As(authErr, &lockout) {
			reason = "locked_out"
		}
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			Success:       false,
			FailureReason: reason,
		})
		return nil, authErr
	}

	accessToken, err := s.tm.GenerateAccessToken(result.Guardian)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	refreshToken, err := s.tm.GenerateRefreshToken(result.Guardian)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	result.AccessToken = accessToken
	result.RefreshToken = refreshToken

	registered, err := s.devices.HasRegisteredDevice(ctx, result.Guardian.GuardianID)
	if err != nil {
		// A pairing-table blip should not fail the login
		s.logger.Error("failed to check device registration", slog.Any("error", err))
		registered = false
	}
	result.DeviceRegistered = registered

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:  "login_success",
		GuardianID: result.Guardian.GuardianID,
		Username:   username,
		IPAddress:  ipAddress,
		Success:    true,
	})

	return result, nil
}

// Register creates a new guardian account. Username, email and contact
// number uniqueness is enforced by the database; violations surface as
// models.ErrConflict.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.Guardian, error) {
	if err := pkgauth.ValidatePassword(input.Password); err != nil {
		return nil, models.ErrBadRequest
	}

	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	guardian := &models.Guardian{
		Username:          strings.TrimSpace(input.Username),
		PasswordHash:      hash,
		GuardianName:      strings.TrimSpace(input.GuardianName),
		Email:             normalizeEmail(input.Email),
		ContactNumber:     input.ContactNumber,
		RelationshipToVIP: input.RelationshipToVIP,
		Province:          input.Province,
		City:              input.City,
		Barangay:          input.Barangay,
		Village:           input.Village,
		StreetAddress:     input.StreetAddress,
		Role:              "guardian",
	}

	if err := s.guardians.Create(ctx, guardian); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create guardian", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAccountAction("guardian_registered", guardian.GuardianID, "")

	return guardian, nil
}

// CheckCredentials reports the first field among username, email and contact
// number that is already taken. An empty field name means everything supplied
// is still available.
func (s *AuthService) CheckCredentials(ctx context.Context, username, email, contactNumber string) (string, error) {
	if username != "" {
		if taken, err := s.identityTaken(ctx, func(ctx context.Context) (*models.Guardian, error) {
			return s.guardians.GetByUsername(ctx, strings.TrimSpace(username))
		}); err != nil {
			return "", err
		} else if taken {
			return "username", models.ErrConflict
		}
	}

	if email != "" {
		if taken, err := s.identityTaken(ctx, func(ctx context.Context) (*models.Guardian, error) {
			return s.guardians.GetByEmail(ctx, normalizeEmail(email))
		}); err != nil {
			return "", err
		} else if taken {
			return "email", models.ErrConflict
		}
	}

	if contactNumber != "" {
		if taken, err := s.identityTaken(ctx, func(ctx context.Context) (*models.Guardian, error) {
			return s.guardians.GetByContactNumber(ctx, strings.TrimSpace(contactNumber))
		}); err != nil {
			return "", err
		} else if taken {
			return "contact_number", models.ErrConflict
		}
	}

	return "", nil
}

func (s *AuthService) identityTaken(ctx context.Context, lookup func(ctx context.Context) (*models.Guardian, error)) (bool, error) {
	_, err := lookup(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		s.logger.Error("failed to check credential availability", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return true, nil
}

// Refresh validates a refresh token and mints a new access token. Claims are
// re-derived from the current account row, so a role or username change takes
// effect on the next refresh rather than living on in stale claims.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, *models.Guardian, error) {
	claims, err := s.tm.ValidateToken(refreshToken)
	if err != nil {
		return "", nil, models.ErrUnauthorized
	}
	if claims.Type != models.TokenTypeRefresh {
		return "", nil, models.ErrUnauthorized
	}

	guardian, err := s.guardians.GetByID(ctx, claims.GuardianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to load guardian for refresh", slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(guardian)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}

	return accessToken, guardian, nil
}

// Profile returns the full account for the authenticated guardian
func (s *AuthService) Profile(ctx context.Context, guardianID int64) (*models.Guardian, error) {
	guardian, err := s.guardians.GetByID(ctx, guardianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load guardian profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return guardian, nil
}

// SendOTP issues a passcode for an arbitrary (email, purpose) pair. Used by
// the registration flow, where no account exists yet to anchor the code to.
func (s *AuthService) SendOTP(ctx context.Context, email string, purpose models.OTPPurpose) error {
	return s.otp.Issue(ctx, normalizeEmail(email), purpose, "")
}

// VerifyOTP checks a passcode issued through SendOTP
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string, purpose models.OTPPurpose) error {
	return s.otp.Verify(ctx, normalizeEmail(email), code, purpose)
}

// ChangeEmailRequest starts an email change by sending a passcode to the new
// address. The code proves control of the address before anything changes.
func (s *AuthService) ChangeEmailRequest(ctx context.Context, guardianID int64, newEmail string) error {
	newEmail = normalizeEmail(newEmail)

	guardian, err := s.guardians.GetByID(ctx, guardianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to load guardian", slog.Any("error", err))
		return models.ErrInternalServer
	}

	taken, err := s.identityTaken(ctx, func(ctx context.Context) (*models.Guardian, error) {
		return s.guardians.GetByEmail(ctx, newEmail)
	})
	if err != nil {
		return err
	}
	if taken {
		return models.ErrConflict
	}

	return s.otp.Issue(ctx, newEmail, models.OTPPurposeEmailChange, guardian.GuardianName)
}

// ChangeEmailVerify consumes the passcode sent to the new address and applies
// the change. A conflicting registration that landed between request and
// verify surfaces as models.ErrConflict from the unique constraint.
func (s *AuthService) ChangeEmailVerify(ctx context.Context, guardianID int64, newEmail, code string) error {
	newEmail = normalizeEmail(newEmail)

	if err := s.otp.Verify(ctx, newEmail, code, models.OTPPurposeEmailChange); err != nil {
		return err
	}

	if err := s.guardians.UpdateEmail(ctx, guardianID, newEmail); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrConflict
		}
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to update email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAccountAction("email_changed", guardianID, "")

	return nil
}

// ForgotPasswordRequest sends a password-reset passcode to a registered
// address. An unknown address is reported as not found; the mobile flow
// relies on the distinction to correct typos at this step.
func (s *AuthService) ForgotPasswordRequest(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	guardian, err := s.guardians.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to look up email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	return s.otp.Issue(ctx, email, models.OTPPurposePasswordReset, guardian.GuardianName)
}

// ForgotPasswordVerify checks the reset passcode without consuming the flow's
// other state; the app calls this before showing the new-password screen.
func (s *AuthService) ForgotPasswordVerify(ctx context.Context, email, code string) error {
	return s.otp.Verify(ctx, normalizeEmail(email), code, models.OTPPurposePasswordReset)
}

// ResetPassword replaces the password for the account behind email
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)

	guardian, err := s.guardians.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to look up email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.guardians.UpdatePassword(ctx, guardian.GuardianID, hash); err != nil {
		s.logger.Error("failed to update password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAccountAction("password_reset", guardian.GuardianID, "")

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
