package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/icanedev/smartcane-api/internal/config"
	"github.com/icanedev/smartcane-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOTPConfig() config.OTPConfig {
	return config.OTPConfig{
		RateLimitWindow:   time.Hour,
		RateLimitMax:      3,
		TTL:               10 * time.Minute,
		PasswordResetTTL:  5 * time.Minute,
		MaxVerifyAttempts: 5,
	}
}

func newOTPService(ledger *MockOTPLedger, email *MockEmailDispatcher) *OTPService {
	if ledger == nil {
		ledger = &MockOTPLedger{}
	}
	if email == nil {
		email = &MockEmailDispatcher{}
	}
	return NewOTPService(ledger, email, testOTPConfig(), newTestLogger(), newTestAuditLogger())
}

func TestOTPIssue_StoresSixDigitCode(t *testing.T) {
	var created *models.OTP
	ledger := &MockOTPLedger{
		CreateFunc: func(ctx context.Context, otp *models.OTP) error {
			created = otp
			return nil
		},
	}
	svc := newOTPService(ledger, nil)

	err := svc.Issue(context.Background(), "a@x.com", models.OTPPurposeRegistration, "Maria")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), created.Code)
	assert.Equal(t, models.OTPPurposeRegistration, created.Purpose)
	assert.Equal(t, "a@x.com", created.Email)
}

func TestOTPIssue_ValidityWindows(t *testing.T) {
	cases := []struct {
		purpose models.OTPPurpose
		ttl     time.Duration
	}{
		{models.OTPPurposeGeneral, 10 * time.Minute},
		{models.OTPPurposeRegistration, 10 * time.Minute},
		{models.OTPPurposeEmailChange, 10 * time.Minute},
		{models.OTPPurposePasswordReset, 5 * time.Minute},
	}

	for _, tc := range cases {
		t.Run(string(tc.purpose), func(t *testing.T) {
			var created *models.OTP
			ledger := &MockOTPLedger{
				CreateFunc: func(ctx context.Context, otp *models.OTP) error {
					created = otp
					return nil
				},
			}
			svc := newOTPService(ledger, nil)

			require.NoError(t, svc.Issue(context.Background(), "a@x.com", tc.purpose, ""))
			require.NotNil(t, created)
			assert.WithinDuration(t, time.Now().UTC().Add(tc.ttl), created.ExpiresAt, 2*time.Second)
		})
	}
}

func TestOTPIssue_RateLimited(t *testing.T) {
	ledger := &MockOTPLedger{
		CountRecentFunc: func(ctx context.Context, email string, purpose models.OTPPurpose, since time.Time) (int, error) {
			return 3, nil
		},
		CreateFunc: func(ctx context.Context, otp *models.OTP) error {
			t.Fatal("no code should be stored when rate limited")
			return nil
		},
	}
	svc := newOTPService(ledger, nil)

	err := svc.Issue(context.Background(), "a@x.com", models.OTPPurposeRegistration, "")

	assert.ErrorIs(t, err, models.ErrRateLimited)
}

func TestOTPIssue_RateLimitScopedByPurpose(t *testing.T) {
	var gotPurpose models.OTPPurpose
	ledger := &MockOTPLedger{
		CountRecentFunc: func(ctx context.Context, email string, purpose models.OTPPurpose, since time.Time) (int, error) {
			gotPurpose = purpose
			return 0, nil
		},
	}
	svc := newOTPService(ledger, nil)

	require.NoError(t, svc.Issue(context.Background(), "a@x.com", models.OTPPurposePasswordReset, ""))
	assert.Equal(t, models.OTPPurposePasswordReset, gotPurpose)
}

func TestOTPIssue_UnknownPurpose(t *testing.T) {
	svc := newOTPService(nil, nil)

	err := svc.Issue(context.Background(), "a@x.com", models.OTPPurpose("bogus"), "")

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestOTPIssue_DispatchFailureKeepsRecord(t *testing.T) {
	stored := false
	ledger := &MockOTPLedger{
		CreateFunc: func(ctx context.Context, otp *models.OTP) error {
			stored = true
			return nil
		},
	}
	email := &MockEmailDispatcher{
		SendOTPEmailFunc: func(ctx context.Context, recipient, code, displayName string, purpose models.OTPPurpose, ttl time.Duration) error {
			return errors.New("ses throttled")
		},
	}
	svc := newOTPService(ledger, email)

	err := svc.Issue(context.Background(), "a@x.com", models.OTPPurposeRegistration, "")

	assert.ErrorIs(t, err, models.ErrEmailDelivery)
	assert.True(t, stored, "the code row must commit before dispatch")
}

func TestOTPIssue_DispatchReceivesCodeAndTTL(t *testing.T) {
	var sentCode string
	var sentTTL time.Duration
	var storedCode string
	ledger := &MockOTPLedger{
		CreateFunc: func(ctx context.Context, otp *models.OTP) error {
			storedCode = otp.Code
			return nil
		},
	}
	email := &MockEmailDispatcher{
		SendOTPEmailFunc: func(ctx context.Context, recipient, code, displayName string, purpose models.OTPPurpose, ttl time.Duration) error {
			sentCode = code
			sentTTL = ttl
			return nil
		},
	}
	svc := newOTPService(ledger, email)

	require.NoError(t, svc.Issue(context.Background(), "a@x.com", models.OTPPurposePasswordReset, "Maria"))
	assert.Equal(t, storedCode, sentCode)
	assert.Equal(t, 5*time.Minute, sentTTL)
}

func unusedOTP(code string, expiresIn time.Duration) *models.OTP {
	now := time.Now().UTC()
	return &models.OTP{
		ID:        10,
		Email:     "a@x.com",
		Code:      code,
		Purpose:   models.OTPPurposeRegistration,
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}
}

func TestOTPVerify_Success(t *testing.T) {
	usedID := int64(0)
	ledger := &MockOTPLedger{
		LatestUnusedFunc: func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
			return unusedOTP("042137", 10*time.Minute), nil
		},
		MarkUsedFunc: func(ctx context.Context, id int64, usedAt time.Time) error {
			usedID = id
			return nil
		},
	}
	svc := newOTPService(ledger, nil)

	err := svc.Verify(context.Background(), "a@x.com", "042137", models.OTPPurposeRegistration)

	require.NoError(t, err)
	assert.Equal(t, int64(10), usedID)
}

func TestOTPVerify_NotFound(t *testing.T) {
	svc := newOTPService(&MockOTPLedger{}, nil)

	err := svc.Verify(context.Background(), "a@x.com", "123456", models.OTPPurposeRegistration)

	assert.ErrorIs(t, err, models.ErrOTPNotFound)
}

func TestOTPVerify_Expired(t *testing.T) {
	ledger := &MockOTPLedger{
		LatestUnusedFunc: func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
			return unusedOTP("042137", -time.Second), nil
		},
	}
	svc := newOTPService(ledger, nil)

	err := svc.Verify(context.Background(), "a@x.com", "042137", models.OTPPurposeRegistration)

	assert.ErrorIs(t, err, models.ErrOTPExpired)
}

func TestOTPVerify_Mismatch(t *testing.T) {
	incremented := false
	ledger := &MockOTPLedger{
		LatestUnusedFunc: func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
			return unusedOTP("042137", 10*time.Minute), nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id int64) (int, error) {
			incremented = true
			return 1, nil
		},
	}
	svc := newOTPService(ledger, nil)

	err := svc.Verify(context.Background(), "a@x.com", "999999", models.OTPPurposeRegistration)

	assert.ErrorIs(t, err, models.ErrOTPInvalid)
	assert.True(t, incremented)
}

func TestOTPVerify_TooManyAttempts(t *testing.T) {
	otp := unusedOTP("042137", 10*time.Minute)
	otp.AttemptCount = 5
	ledger := &MockOTPLedger{
		LatestUnusedFunc: func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
			return otp, nil
		},
	}
	svc := newOTPService(ledger, nil)

	// Even the right code is refused once the cap is hit
	err := svc.Verify(context.Background(), "a@x.com", "042137", models.OTPPurposeRegistration)

	assert.ErrorIs(t, err, models.ErrOTPTooManyAttempts)
}

func TestOTPVerify_MismatchReachingCap(t *testing.T) {
	ledger := &MockOTPLedger{
		LatestUnusedFunc: func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
			return unusedOTP("042137", 10*time.Minute), nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id int64) (int, error) {
			return 5, nil
		},
	}
	svc := newOTPService(ledger, nil)

	err := svc.Verify(context.Background(), "a@x.com", "999999", models.OTPPurposeRegistration)

	assert.ErrorIs(t, err, models.ErrOTPTooManyAttempts)
}

func TestOTPVerify_ConcurrentUseLoses(t *testing.T) {
	ledger := &MockOTPLedger{
		LatestUnusedFunc: func(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
			return unusedOTP("042137", 10*time.Minute), nil
		},
		MarkUsedFunc: func(ctx context.Context, id int64, usedAt time.Time) error {
			return models.ErrOTPInvalid
		},
	}
	svc := newOTPService(ledger, nil)

	err := svc.Verify(context.Background(), "a@x.com", "042137", models.OTPPurposeRegistration)

	assert.ErrorIs(t, err, models.ErrOTPInvalid)
}

func TestGenerateOTPCode_LeadingZerosPreserved(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateOTPCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)
	}
}
