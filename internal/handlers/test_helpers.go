package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/icanedev/smartcane-api/internal/auth"
	"github.com/icanedev/smartcane-api/internal/models"
	"github.com/icanedev/smartcane-api/internal/services"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds guardian claims to the request context for testing
// endpoints behind the auth middleware
func WithAuthContext(req *http.Request, guardianID int64, username string) *http.Request {
	claims := &models.TokenClaims{
		Type:       models.TokenTypeAccess,
		GuardianID: guardianID,
		Username:   username,
		Role:       "guardian",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: username,
		},
	}
	ctx := context.WithValue(req.Context(), auth.GuardianContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "application/json"), "Expected JSON content type, got %s", contentType)

	if target != nil {
		if err := json.NewDecoder(w.Body).Decode(target); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
	}
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc                 func(ctx context.Context, username, password, ipAddress string) (*services.LoginResult, error)
	RegisterFunc              func(ctx context.Context, input services.RegisterInput) (*models.Guardian, error)
	CheckCredentialsFunc      func(ctx context.Context, username, email, contactNumber string) (string, error)
	RefreshFunc               func(ctx context.Context, refreshToken string) (string, *models.Guardian, error)
	ProfileFunc               func(ctx context.Context, guardianID int64) (*models.Guardian, error)
	SendOTPFunc               func(ctx context.Context, email string, purpose models.OTPPurpose) error
	VerifyOTPFunc             func(ctx context.Context, email, code string, purpose models.OTPPurpose) error
	ChangeEmailRequestFunc    func(ctx context.Context, guardianID int64, newEmail string) error
	ChangeEmailVerifyFunc     func(ctx context.Context, guardianID int64, newEmail, code string) error
	ForgotPasswordRequestFunc func(ctx context.Context, email string) error
	ForgotPasswordVerifyFunc  func(ctx context.Context, email, code string) error
	ResetPasswordFunc         func(ctx context.Context, email, newPassword string) error
}

func (m *MockAuthService) Login(ctx context.Context, username, password, ipAddress string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password, ipAddress)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockAuthService) Register(ctx context.Context, input services.RegisterInput) (*models.Guardian, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, input)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) CheckCredentials(ctx context.Context, username, email, contactNumber string) (string, error) {
	if m.CheckCredentialsFunc != nil {
		return m.CheckCredentialsFunc(ctx, username, email, contactNumber)
	}
	return "", nil
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (string, *models.Guardian, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return "", nil, models.ErrUnauthorized
}

func (m *MockAuthService) Profile(ctx context.Context, guardianID int64) (*models.Guardian, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, guardianID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAuthService) SendOTP(ctx context.Context, email string, purpose models.OTPPurpose) error {
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, email, purpose)
	}
	return nil
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, email, code string, purpose models.OTPPurpose) error {
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, email, code, purpose)
	}
	return nil
}

func (m *MockAuthService) ChangeEmailRequest(ctx context.Context, guardianID int64, newEmail string) error {
	if m.ChangeEmailRequestFunc != nil {
		return m.ChangeEmailRequestFunc(ctx, guardianID, newEmail)
	}
	return nil
}

func (m *MockAuthService) ChangeEmailVerify(ctx context.Context, guardianID int64, newEmail, code string) error {
	if m.ChangeEmailVerifyFunc != nil {
		return m.ChangeEmailVerifyFunc(ctx, guardianID, newEmail, code)
	}
	return nil
}

func (m *MockAuthService) ForgotPasswordRequest(ctx context.Context, email string) error {
	if m.ForgotPasswordRequestFunc != nil {
		return m.ForgotPasswordRequestFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthService) ForgotPasswordVerify(ctx context.Context, email, code string) error {
	if m.ForgotPasswordVerifyFunc != nil {
		return m.ForgotPasswordVerifyFunc(ctx, email, code)
	}
	return nil
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, email, newPassword)
	}
	return nil
}
