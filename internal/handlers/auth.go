package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/icanedev/smartcane-api/internal/auth"
	"github.com/icanedev/smartcane-api/internal/models"
	"github.com/icanedev/smartcane-api/internal/services"
	pkghttp "github.com/icanedev/smartcane-api/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, ipAddress string) (*services.LoginResult, error)
	Register(ctx context.Context, input services.RegisterInput) (*models.Guardian, error)
	CheckCredentials(ctx context.Context, username, email, contactNumber string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (string, *models.Guardian, error)
	Profile(ctx context.Context, guardianID int64) (*models.Guardian, error)
	SendOTP(ctx context.Context, email string, purpose models.OTPPurpose) error
	VerifyOTP(ctx context.Context, email, code string, purpose models.OTPPurpose) error
	ChangeEmailRequest(ctx context.Context, guardianID int64, newEmail string) error
	ChangeEmailVerify(ctx context.Context, guardianID int64, newEmail, code string) error
	ForgotPasswordRequest(ctx context.Context, email string) error
	ForgotPasswordVerify(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	tm       *auth.TokenManager
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, tm *auth.TokenManager, cookies auth.CookieConfig, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tm:       tm,
		cookies:  cookies,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username          string  `json:"username" validate:"required,min=3,max=64"`
	Password          string  `json:"password" validate:"required"`
	GuardianName      string  `json:"guardianName" validate:"required,min=1,max=128"`
	Email             string  `json:"email" validate:"required,email"`
	ContactNumber     *string `json:"contactNumber,omitempty"`
	RelationshipToVIP *string `json:"relationshipToVip,omitempty"`
	Province          *string `json:"province,omitempty"`
	City              *string `json:"city,omitempty"`
	Barangay          *string `json:"barangay,omitempty"`
	Village           *string `json:"village,omitempty"`
	StreetAddress     *string `json:"streetAddress,omitempty"`
}

// CheckCredentialsRequest represents the request body for availability checks
type CheckCredentialsRequest struct {
	Username      string `json:"username,omitempty"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	ContactNumber string `json:"contactNumber,omitempty"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SendOTPRequest represents the request body for issuing a passcode
type SendOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose,omitempty"`
}

// VerifyOTPRequest represents the request body for checking a passcode
type VerifyOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	OTPCode string `json:"otpCode" validate:"required,len=6,numeric"`
	Purpose string `json:"purpose,omitempty"`
}

// ChangeEmailRequestBody represents the request body for starting an email change
type ChangeEmailRequestBody struct {
	NewEmail string `json:"newEmail" validate:"required,email"`
}

// ChangeEmailVerifyBody represents the request body for completing an email change
type ChangeEmailVerifyBody struct {
	NewEmail string `json:"newEmail" validate:"required,email"`
	OTPCode  string `json:"otpCode" validate:"required,len=6,numeric"`
}

// ForgotPasswordRequestBody represents the request body for a reset code request
type ForgotPasswordRequestBody struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPasswordVerifyBody represents the request body for checking a reset code
type ForgotPasswordVerifyBody struct {
	Email   string `json:"email" validate:"required,email"`
	OTPCode string `json:"otpCode" validate:"required,len=6,numeric"`
}

// ResetPasswordBody represents the request body for applying a new password
type ResetPasswordBody struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// Response DTOs

// GuardianResponse represents a guardian in the HTTP response
type GuardianResponse struct {
	GuardianID        int64   `json:"guardianId"`
	Username          string  `json:"username"`
	GuardianName      string  `json:"guardianName"`
	GuardianImageURL  *string `json:"guardianImageUrl"`
	Email             string  `json:"email"`
	ContactNumber     *string `json:"contactNumber"`
	RelationshipToVIP *string `json:"relationshipToVip"`
	Province          *string `json:"province"`
	City              *string `json:"city"`
	Barangay          *string `json:"barangay"`
	Village           *string `json:"village"`
	StreetAddress     *string `json:"streetAddress"`
	Role              string  `json:"role"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

func toGuardianResponse(g *models.Guardian) *GuardianResponse {
	return &GuardianResponse{
		GuardianID:        g.GuardianID,
		Username:          g.Username,
		GuardianName:      g.GuardianName,
		GuardianImageURL:  g.GuardianImageURL,
		Email:             g.Email,
		ContactNumber:     g.ContactNumber,
		RelationshipToVIP: g.RelationshipToVIP,
		Province:          g.Province,
		City:              g.City,
		Barangay:          g.Barangay,
		Village:           g.Village,
		StreetAddress:     g.StreetAddress,
		Role:              g.Role,
		CreatedAt:         g.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         g.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Register handles guardian account creation
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	guardian, err := h.service.Register(r.Context(), services.RegisterInput{
		Username:          req.Username,
		Password:          req.Password,
		GuardianName:      req.GuardianName,
		Email:             req.Email,
		ContactNumber:     req.ContactNumber,
		RelationshipToVIP: req.RelationshipToVIP,
		Province:          req.Province,
		City:              req.City,
		Barangay:          req.Barangay,
		Village:           req.Village,
		StreetAddress:     req.StreetAddress,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteBadRequest(w, "Username, email or contact number is already registered")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusCreated, "Registration successful", map[string]any{
		"guardianId": guardian.GuardianID,
	})
}

// CheckCredentials reports whether the supplied identity fields are still free
func (h *AuthHandler) CheckCredentials(w http.ResponseWriter, r *http.Request) {
	var req CheckCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if req.Username == "" && req.Email == "" && req.ContactNumber == "" {
		pkghttp.WriteBadRequest(w, "At least one of username, email or contactNumber is required")
		return
	}

	field, err := h.service.CheckCredentials(r.Context(), req.Username, req.Email, req.ContactNumber)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "Credential already in use", map[string]any{
				"field": field,
			})
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteOK(w, "Credentials available", map[string]any{
		"available": true,
	})
}

// Login authenticates a guardian and sets the token cookies
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Login(r.Context(), req.Username, req.Password, ipAddress)
	if err != nil {
		var lockout *models.LockoutError
		switch {
		case errors.As(err, &lockout):
			pkghttp.WriteTooManyRequestsWithData(w, "Too many failed login attempts. Please try again later.", map[string]any{
				"retryAfter": lockout.RetryAfter,
			})
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid username or password")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetAccessTokenCookie(w, result.AccessToken, h.tm.AccessTokenExpiry(), h.cookies)
	auth.SetRefreshTokenCookie(w, result.RefreshToken, h.tm.RefreshTokenExpiry(), h.cookies)

	pkghttp.WriteOK(w, "Login successful", map[string]any{
		"guardian":         toGuardianResponse(result.Guardian),
		"deviceRegistered": result.DeviceRegistered,
	})
}

// Logout clears the token cookies. Issued tokens stay valid until expiry;
// only the browser copies are discarded.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearAuthCookies(w, h.cookies)
	pkghttp.WriteOK(w, "Logout successful", map[string]any{})
}

// Refresh mints a new access token from the refresh cookie. Claims are
// re-derived from the account row, not copied from the old token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := auth.GetRefreshTokenCookie(r)
	if err != nil || refreshToken == "" {
		pkghttp.WriteUnauthorized(w, "Missing refresh token")
		return
	}

	accessToken, guardian, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetAccessTokenCookie(w, accessToken, h.tm.AccessTokenExpiry(), h.cookies)

	pkghttp.WriteOK(w, "Token refreshed", map[string]any{
		"guardianId": guardian.GuardianID,
	})
}

// VerifyToken reports whether the access cookie is currently valid
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenString, err := auth.GetAccessTokenCookie(r)
	if err != nil || tokenString == "" {
		pkghttp.WriteUnauthorized(w, "Missing access token")
		return
	}

	claims, err := h.tm.ValidateToken(tokenString)
	if err != nil || claims.Type != models.TokenTypeAccess {
		pkghttp.WriteUnauthorized(w, "Invalid or expired token")
		return
	}

	now := time.Now().UTC()
	pkghttp.WriteOK(w, "Token valid", map[string]any{
		"guardianId": claims.GuardianID,
		"username":   claims.Username,
		"role":       claims.Role,
		"tokenValid": true,
		"tokenType":  claims.Type,
		"expiresIn":  int64(claims.ExpiresAt.Time.Sub(now).Seconds()),
		"expiresAt":  claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
		"issuedAt":   claims.IssuedAt.Time.UTC().Format(time.RFC3339),
	})
}

// Profile returns the authenticated guardian's account
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	guardian, err := h.service.Profile(r.Context(), claims.GuardianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteOK(w, "Profile retrieved", map[string]any{
		"guardian": toGuardianResponse(guardian),
	})
}

// SendOTP issues a passcode for an email and purpose
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown purpose")
		return
	}

	if err := h.service.SendOTP(r.Context(), req.Email, purpose); err != nil {
		h.writeOTPError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Verification code sent", map[string]any{})
}

// VerifyOTP checks a passcode issued through SendOTP
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown purpose")
		return
	}

	if err := h.service.VerifyOTP(r.Context(), req.Email, req.OTPCode, purpose); err != nil {
		h.writeOTPError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Code verified", map[string]any{})
}

// ChangeEmailRequest starts an email change for the authenticated guardian
func (h *AuthHandler) ChangeEmailRequest(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangeEmailRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangeEmailRequest(r.Context(), claims.GuardianID, req.NewEmail); err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteBadRequest(w, "Email is already registered to another account")
			return
		}
		h.writeOTPError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Verification code sent to new address", map[string]any{})
}

// ChangeEmailVerify completes an email change with the code sent to the new address
func (h *AuthHandler) ChangeEmailVerify(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromRequest(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangeEmailVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangeEmailVerify(r.Context(), claims.GuardianID, req.NewEmail, req.OTPCode); err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteBadRequest(w, "Email is already registered to another account")
			return
		}
		h.writeOTPError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Email updated", map[string]any{})
}

// ForgotPasswordRequest sends a reset code to a registered email address
func (h *AuthHandler) ForgotPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ForgotPasswordRequest(r.Context(), req.Email); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No account with that email address")
			return
		}
		h.writeOTPError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Reset code sent", map[string]any{})
}

// ForgotPasswordVerify checks a reset code before the new password is chosen
func (h *AuthHandler) ForgotPasswordVerify(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ForgotPasswordVerify(r.Context(), req.Email, req.OTPCode); err != nil {
		h.writeOTPError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Code verified", map[string]any{})
}

// ForgotPasswordReset applies the new password
func (h *AuthHandler) ForgotPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "No account with that email address")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteOK(w, "Password updated", map[string]any{})
}

// writeOTPError maps passcode engine errors onto the response envelope. The
// not-found / expired / mismatch distinction is deliberate so the app can
// guide the user to the right recovery step.
func (h *AuthHandler) writeOTPError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrRateLimited):
		pkghttp.WriteTooManyRequests(w, "Too many codes requested. Please try again later.")
	case errors.Is(err, models.ErrOTPTooManyAttempts):
		pkghttp.WriteTooManyRequests(w, "Too many incorrect attempts. Please request a new code.")
	case errors.Is(err, models.ErrOTPNotFound):
		pkghttp.WriteBadRequest(w, "No pending code for this email")
	case errors.Is(err, models.ErrOTPExpired):
		pkghttp.WriteBadRequest(w, "Code has expired. Please request a new one.")
	case errors.Is(err, models.ErrOTPInvalid):
		pkghttp.WriteBadRequest(w, "Incorrect code")
	case errors.Is(err, models.ErrEmailDelivery):
		pkghttp.WriteInternalError(w, "Failed to send the verification email")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func parsePurpose(raw string) (models.OTPPurpose, bool) {
	if raw == "" {
		return models.OTPPurposeGeneral, true
	}
	purpose := models.OTPPurpose(raw)
	return purpose, purpose.Valid()
}
