package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/icanedev/smartcane-api/internal/models"
	pkglogger "github.com/icanedev/smartcane-api/pkg/logger"
)

// newTestLogger returns a logger that discards output
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// MockLoginAttemptLedger implements LoginAttemptLedger for testing
type MockLoginAttemptLedger struct {
	RecordFunc           func(ctx context.Context, attempt *models.LoginAttempt) error
	RecentAttemptsFunc   func(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error)
	PurgeFunc            func(ctx context.Context, username, ipAddress *string) error
	WithIdentityLockFunc func(ctx context.Context, username, ipAddress *string, fn func(ctx context.Context) error) error
	DeleteOlderThanFunc  func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockLoginAttemptLedger) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	return nil
}

func (m *MockLoginAttemptLedger) RecentAttempts(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error) {
	if m.RecentAttemptsFunc != nil {
		return m.RecentAttemptsFunc(ctx, username, ipAddress, since)
	}
	return 0, nil, nil
}

func (m *MockLoginAttemptLedger) Purge(ctx context.Context, username, ipAddress *string) error {
	if m.PurgeFunc != nil {
		return m.PurgeFunc(ctx, username, ipAddress)
	}
	return nil
}

func (m *MockLoginAttemptLedger) WithIdentityLock(ctx context.Context, username, ipAddress *string, fn func(ctx context.Context) error) error {
	if m.WithIdentityLockFunc != nil {
		return m.WithIdentityLockFunc(ctx, username, ipAddress, fn)
	}
	return fn(ctx)
}

func (m *MockLoginAttemptLedger) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockOTPLedger implements OTPLedger for testing
type MockOTPLedger struct {
	CountRecentFunc       func(ctx context.Context, email string, purpose models.OTPPurpose, since time.Time) (int, error)
	CreateFunc            func(ctx context.Context, otp *models.OTP) error
	LatestUnusedFunc      func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error)
	MarkUsedFunc          func(ctx context.Context, id int64, usedAt time.Time) error
	IncrementAttemptsFunc func(ctx context.Context, id int64) (int, error)
}

func (m *MockOTPLedger) CountRecent(ctx context.Context, email string, purpose models.OTPPurpose, since time.Time) (int, error) {
	if m.CountRecentFunc != nil {
		return m.CountRecentFunc(ctx, email, purpose, since)
	}
	return 0, nil
}

func (m *MockOTPLedger) Create(ctx context.Context, otp *models.OTP) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, otp)
	}
	otp.ID = 1
	otp.CreatedAt = time.Now().UTC()
	return nil
}

func (m *MockOTPLedger) LatestUnused(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
	if m.LatestUnusedFunc != nil {
		return m.LatestUnusedFunc(ctx, email, purpose)
	}
	return nil, models.ErrNotFound
}

func (m *MockOTPLedger) MarkUsed(ctx context.Context, id int64, usedAt time.Time) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id, usedAt)
	}
	return nil
}

func (m *MockOTPLedger) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, id)
	}
	return 1, nil
}

// MockEmailDispatcher implements EmailDispatcher for testing
type MockEmailDispatcher struct {
	SendOTPEmailFunc func(ctx context.Context, recipient, code, displayName string, purpose models.OTPPurpose, ttl time.Duration) error
}

func (m *MockEmailDispatcher) SendOTPEmail(ctx context.Context, recipient, code, displayName string, purpose models.OTPPurpose, ttl time.Duration) error {
	if m.SendOTPEmailFunc != nil {
		return m.SendOTPEmailFunc(ctx, recipient, code, displayName, purpose, ttl)
	}
	return nil
}

// MockGuardianStore implements GuardianStore for testing
type MockGuardianStore struct {
	GetByIDFunc            func(ctx context.Context, id int64) (*models.Guardian, error)
	GetByUsernameFunc      func(ctx context.Context, username string) (*models.Guardian, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.Guardian, error)
	GetByContactNumberFunc func(ctx context.Context, contactNumber string) (*models.Guardian, error)
	CreateFunc             func(ctx context.Context, guardian *models.Guardian) error
	UpdateEmailFunc        func(ctx context.Context, guardianID int64, email string) error
	UpdatePasswordFunc     func(ctx context.Context, guardianID int64, passwordHash string) error
}

func (m *MockGuardianStore) GetByID(ctx context.Context, id int64) (*models.Guardian, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockGuardianStore) GetByUsername(ctx context.Context, username string) (*models.Guardian, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockGuardianStore) GetByEmail(ctx context.Context, email string) (*models.Guardian, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockGuardianStore) GetByContactNumber(ctx context.Context, contactNumber string) (*models.Guardian, error) {
	if m.GetByContactNumberFunc != nil {
		return m.GetByContactNumberFunc(ctx, contactNumber)
	}
	return nil, models.ErrNotFound
}

func (m *MockGuardianStore) Create(ctx context.Context, guardian *models.Guardian) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, guardian)
	}
	guardian.GuardianID = 1
	return nil
}

func (m *MockGuardianStore) UpdateEmail(ctx context.Context, guardianID int64, email string) error {
	if m.UpdateEmailFunc != nil {
		return m.UpdateEmailFunc(ctx, guardianID, email)
	}
	return nil
}

func (m *MockGuardianStore) UpdatePassword(ctx context.Context, guardianID int64, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, guardianID, passwordHash)
	}
	return nil
}

// MockDeviceDirectory implements DeviceDirectory for testing
type MockDeviceDirectory struct {
	HasRegisteredDeviceFunc func(ctx context.Context, guardianID int64) (bool, error)
}

func (m *MockDeviceDirectory) HasRegisteredDevice(ctx context.Context, guardianID int64) (bool, error) {
	if m.HasRegisteredDeviceFunc != nil {
		return m.HasRegisteredDeviceFunc(ctx, guardianID)
	}
	return false, nil
}
