package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/icanedev/smartcane-api/internal/auth"
	"github.com/icanedev/smartcane-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type authServiceMocks struct {
	guardians *MockGuardianStore
	devices   *MockDeviceDirectory
	attempts  *MockLoginAttemptLedger
	otps      *MockOTPLedger
	email     *MockEmailDispatcher
}

func newAuthServiceMocks() *authServiceMocks {
	return &authServiceMocks{
		guardians: &MockGuardianStore{},
		devices:   &MockDeviceDirectory{},
		attempts:  &MockLoginAttemptLedger{},
		otps:      &MockOTPLedger{},
		email:     &MockEmailDispatcher{},
	}
}

func newAuthService(m *authServiceMocks) *AuthService {
	logger := newTestLogger()
	audit := newTestAuditLogger()
	lockout := NewLockoutService(m.attempts, testLockoutConfig(), logger)
	otp := NewOTPService(m.otps, m.email, testOTPConfig(), logger, audit)
	tm := auth.NewTokenManager("test-secret-at-least-32-chars-long!", 15*time.Minute, 7*24*time.Hour)
	return NewAuthService(m.guardians, m.devices, lockout, otp, tm, logger, audit)
}

// MinCost keeps the hashing in these tests fast; production hashing uses the
// cost pinned in pkg/auth.
func testHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func storedGuardian(t *testing.T, password string) *models.Guardian {
	return &models.Guardian{
		GuardianID:   42,
		Username:     "maria.santos",
		PasswordHash: testHash(t, password),
		GuardianName: "Maria Santos",
		Email:        "maria@example.com",
		Role:         "guardian",
	}
}

func TestLogin_Success(t *testing.T) {
	m := newAuthServiceMocks()
	guardian := storedGuardian(t, "correct horse battery")
	purged := false
	m.guardians.GetByUsernameFunc = func(ctx context.Context, username string) (*models.Guardian, error) {
		return guardian, nil
	}
	m.attempts.PurgeFunc = func(ctx context.Context, username, ipAddress *string) error {
		purged = true
		return nil
	}
	m.devices.HasRegisteredDeviceFunc = func(ctx context.Context, guardianID int64) (bool, error) {
		return true, nil
	}
	svc := newAuthService(m)

	result, err := svc.Login(context.Background(), "maria.santos", "correct horse battery", "10.0.0.1")

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.NotEqual(t, result.AccessToken, result.RefreshToken)
	assert.True(t, result.DeviceRegistered)
	assert.Equal(t, int64(42), result.Guardian.GuardianID)
	assert.True(t, purged, "successful login must reset the attempt ledger")
}

func TestLogin_WrongPassword(t *testing.T) {
	m := newAuthServiceMocks()
	var recorded *models.LoginAttempt
	m.guardians.GetByUsernameFunc = func(ctx context.Context, username string) (*models.Guardian, error) {
		return storedGuardian(t, "correct horse battery"), nil
	}
	m.attempts.RecordFunc = func(ctx context.Context, attempt *models.LoginAttempt) error {
		recorded = attempt
		return nil
	}
	svc := newAuthService(m)

	_, err := svc.Login(context.Background(), "maria.santos", "wrong", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	require.NotNil(t, recorded, "a wrong password must land in the ledger")
	assert.Equal(t, "maria.santos", *recorded.Username)
	assert.Equal(t, "10.0.0.1", *recorded.IPAddress)
}

func TestLogin_UnknownUsername(t *testing.T) {
	m := newAuthServiceMocks()
	recorded := false
	m.attempts.RecordFunc = func(ctx context.Context, attempt *models.LoginAttempt) error {
		recorded = true
		return nil
	}
	svc := newAuthService(m)

	_, err := svc.Login(context.Background(), "nobody", "whatever1", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.True(t, recorded, "unknown usernames still accumulate attempts")
}

func TestLogin_LockedOut(t *testing.T) {
	m := newAuthServiceMocks()
	last := time.Now().UTC().Add(-5 * time.Second)
	m.attempts.RecentAttemptsFunc = func(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error) {
		return 5, &last, nil
	}
	m.guardians.GetByUsernameFunc = func(ctx context.Context, username string) (*models.Guardian, error) {
		t.Fatal("credentials must not be checked while locked out")
		return nil, nil
	}
	m.attempts.RecordFunc = func(ctx context.Context, attempt *models.LoginAttempt) error {
		t.Fatal("a blocked attempt must not be recorded")
		return nil
	}
	svc := newAuthService(m)

	_, err := svc.Login(context.Background(), "maria.santos", "whatever1", "10.0.0.1")

	var lockout *models.LockoutError
	require.ErrorAs(t, err, &lockout)
	assert.Positive(t, lockout.RetryAfter)
}

func TestLogin_RunsUnderIdentityLock(t *testing.T) {
	m := newAuthServiceMocks()
	locked := false
	m.attempts.WithIdentityLockFunc = func(ctx context.Context, username, ipAddress *string, fn func(ctx context.Context) error) error {
		locked = true
		require.NotNil(t, username)
		assert.Equal(t, "maria.santos", *username)
		return fn(ctx)
	}
	svc := newAuthService(m)

	_, _ = svc.Login(context.Background(), "maria.santos", "whatever1", "10.0.0.1")

	assert.True(t, locked)
}

func TestLogin_EmptyCredentials(t *testing.T) {
	svc := newAuthService(newAuthServiceMocks())

	_, err := svc.Login(context.Background(), "", "password1", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Login(context.Background(), "maria.santos", "", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestLogin_DeviceLookupFailureDoesNotBlockLogin(t *testing.T) {
	m := newAuthServiceMocks()
	m.guardians.GetByUsernameFunc = func(ctx context.Context, username string) (*models.Guardian, error) {
		return storedGuardian(t, "correct horse battery"), nil
	}
	m.devices.HasRegisteredDeviceFunc = func(ctx context.Context, guardianID int64) (bool, error) {
		return false, errors.New("pairing table unavailable")
	}
	svc := newAuthService(m)

	result, err := svc.Login(context.Background(), "maria.santos", "correct horse battery", "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, result.DeviceRegistered)
}

func TestRegister_Success(t *testing.T) {
	m := newAuthServiceMocks()
	var created *models.Guardian
	m.guardians.CreateFunc = func(ctx context.Context, guardian *models.Guardian) error {
		guardian.GuardianID = 7
		created = guardian
		return nil
	}
	svc := newAuthService(m)

	guardian, err := svc.Register(context.Background(), RegisterInput{
		Username:     "maria.santos",
		Password:     "str0ng password",
		GuardianName: "Maria Santos",
		Email:        "Maria@Example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), guardian.GuardianID)
	assert.Equal(t, "guardian", created.Role)
	assert.Equal(t, "maria@example.com", created.Email)
	assert.NotEqual(t, "str0ng password", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("str0ng password")))
}

func TestRegister_WeakPassword(t *testing.T) {
	svc := newAuthService(newAuthServiceMocks())

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "maria.santos",
		Password: "short",
		Email:    "maria@example.com",
	})

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	m := newAuthServiceMocks()
	m.guardians.CreateFunc = func(ctx context.Context, guardian *models.Guardian) error {
		return models.ErrConflict
	}
	svc := newAuthService(m)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "maria.santos",
		Password: "str0ng password",
		Email:    "maria@example.com",
	})

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCheckCredentials_ReportsFirstConflict(t *testing.T) {
	m := newAuthServiceMocks()
	m.guardians.GetByUsernameFunc = func(ctx context.Context, username string) (*models.Guardian, error) {
		return storedGuardian(t, "x"), nil
	}
	m.guardians.GetByEmailFunc = func(ctx context.Context, email string) (*models.Guardian, error) {
		return storedGuardian(t, "x"), nil
	}
	svc := newAuthService(m)

	field, err := svc.CheckCredentials(context.Background(), "maria.santos", "maria@example.com", "")

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, "username", field)
}

func TestCheckCredentials_EmailConflict(t *testing.T) {
	m := newAuthServiceMocks()
	m.guardians.GetByEmailFunc = func(ctx context.Context, email string) (*models.Guardian, error) {
		return storedGuardian(t, "x"), nil
	}
	svc := newAuthService(m)

	field, err := svc.CheckCredentials(context.Background(), "free.name", "maria@example.com", "")

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, "email", field)
}

func TestCheckCredentials_AllAvailable(t *testing.T) {
	svc := newAuthService(newAuthServiceMocks())

	field, err := svc.CheckCredentials(context.Background(), "free.name", "free@example.com", "+639171234567")

	require.NoError(t, err)
	assert.Empty(t, field)
}

func TestRefresh_IssuesNewAccessToken(t *testing.T) {
	m := newAuthServiceMocks()
	guardian := storedGuardian(t, "x")
	m.guardians.GetByIDFunc = func(ctx context.Context, id int64) (*models.Guardian, error) {
		assert.Equal(t, int64(42), id)
		return guardian, nil
	}
	svc := newAuthService(m)

	tm := auth.NewTokenManager("test-secret-at-least-32-chars-long!", 15*time.Minute, 7*24*time.Hour)
	refreshToken, err := tm.GenerateRefreshToken(guardian)
	require.NoError(t, err)

	accessToken, got, err := svc.Refresh(context.Background(), refreshToken)

	require.NoError(t, err)
	assert.NotEmpty(t, accessToken)
	assert.Equal(t, guardian.GuardianID, got.GuardianID)

	claims, err := tm.ValidateToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeAccess, claims.Type)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	m := newAuthServiceMocks()
	svc := newAuthService(m)

	tm := auth.NewTokenManager("test-secret-at-least-32-chars-long!", 15*time.Minute, 7*24*time.Hour)
	accessToken, err := tm.GenerateAccessToken(storedGuardian(t, "x"))
	require.NoError(t, err)

	_, _, err = svc.Refresh(context.Background(), accessToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRefresh_DeletedAccount(t *testing.T) {
	m := newAuthServiceMocks()
	svc := newAuthService(m)

	tm := auth.NewTokenManager("test-secret-at-least-32-chars-long!", 15*time.Minute, 7*24*time.Hour)
	refreshToken, err := tm.GenerateRefreshToken(storedGuardian(t, "x"))
	require.NoError(t, err)

	_, _, err = svc.Refresh(context.Background(), refreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestChangeEmailRequest_SendsCodeToNewAddress(t *testing.T) {
	m := newAuthServiceMocks()
	guardian := storedGuardian(t, "x")
	m.guardians.GetByIDFunc = func(ctx context.Context, id int64) (*models.Guardian, error) {
		return guardian, nil
	}
	var recipient string
	var purpose models.OTPPurpose
	m.email.SendOTPEmailFunc = func(ctx context.Context, rec, code, displayName string, p models.OTPPurpose, ttl time.Duration) error {
		recipient = rec
		purpose = p
		assert.Equal(t, "Maria Santos", displayName)
		return nil
	}
	svc := newAuthService(m)

	err := svc.ChangeEmailRequest(context.Background(), 42, "New@Example.com")

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", recipient)
	assert.Equal(t, models.OTPPurposeEmailChange, purpose)
}

func TestChangeEmailRequest_AddressTaken(t *testing.T) {
	m := newAuthServiceMocks()
	m.guardians.GetByIDFunc = func(ctx context.Context, id int64) (*models.Guardian, error) {
		return storedGuardian(t, "x"), nil
	}
	m.guardians.GetByEmailFunc = func(ctx context.Context, email string) (*models.Guardian, error) {
		return storedGuardian(t, "x"), nil
	}
	svc := newAuthService(m)

	err := svc.ChangeEmailRequest(context.Background(), 42, "taken@example.com")

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestChangeEmailVerify_AppliesChange(t *testing.T) {
	m := newAuthServiceMocks()
	m.otps.LatestUnusedFunc = func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
		otp := unusedOTP("042137", 10*time.Minute)
		otp.Email = email
		otp.Purpose = purpose
		return otp, nil
	}
	var updatedEmail string
	m.guardians.UpdateEmailFunc = func(ctx context.Context, guardianID int64, email string) error {
		updatedEmail = email
		return nil
	}
	svc := newAuthService(m)

	err := svc.ChangeEmailVerify(context.Background(), 42, "new@example.com", "042137")

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updatedEmail)
}

func TestChangeEmailVerify_WrongCode(t *testing.T) {
	m := newAuthServiceMocks()
	m.otps.LatestUnusedFunc = func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
		return unusedOTP("042137", 10*time.Minute), nil
	}
	m.guardians.UpdateEmailFunc = func(ctx context.Context, guardianID int64, email string) error {
		t.Fatal("email must not change on a wrong code")
		return nil
	}
	svc := newAuthService(m)

	err := svc.ChangeEmailVerify(context.Background(), 42, "new@example.com", "111111")

	assert.ErrorIs(t, err, models.ErrOTPInvalid)
}

func TestForgotPasswordRequest_UnknownEmail(t *testing.T) {
	svc := newAuthService(newAuthServiceMocks())

	err := svc.ForgotPasswordRequest(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestForgotPasswordRequest_IssuesResetCode(t *testing.T) {
	m := newAuthServiceMocks()
	m.guardians.GetByEmailFunc = func(ctx context.Context, email string) (*models.Guardian, error) {
		return storedGuardian(t, "x"), nil
	}
	var purpose models.OTPPurpose
	m.otps.CreateFunc = func(ctx context.Context, otp *models.OTP) error {
		purpose = otp.Purpose
		return nil
	}
	svc := newAuthService(m)

	err := svc.ForgotPasswordRequest(context.Background(), "maria@example.com")

	require.NoError(t, err)
	assert.Equal(t, models.OTPPurposePasswordReset, purpose)
}

func TestResetPassword_ReplacesHash(t *testing.T) {
	m := newAuthServiceMocks()
	m.guardians.GetByEmailFunc = func(ctx context.Context, email string) (*models.Guardian, error) {
		return storedGuardian(t, "old password"), nil
	}
	var newHash string
	m.guardians.UpdatePasswordFunc = func(ctx context.Context, guardianID int64, passwordHash string) error {
		assert.Equal(t, int64(42), guardianID)
		newHash = passwordHash
		return nil
	}
	svc := newAuthService(m)

	err := svc.ResetPassword(context.Background(), "maria@example.com", "brand new pass")

	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("brand new pass")))
}

func TestResetPassword_UnknownEmail(t *testing.T) {
	svc := newAuthService(newAuthServiceMocks())

	err := svc.ResetPassword(context.Background(), "nobody@example.com", "brand new pass")

	assert.ErrorIs(t, err, models.ErrNotFound)
}
