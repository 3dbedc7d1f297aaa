package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/icanedev/smartcane-api/internal/models"
)

// TokenManager mints and validates the access/refresh token pair. Tokens are
// stateless: once signed they stay valid until expiry, so a captured token
// survives logout. Short access expiry is the mitigation.
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

// AccessTokenExpiry returns the configured access token lifetime.
func (tm *TokenManager) AccessTokenExpiry() time.Duration {
	return tm.accessTokenExpiry
}

// RefreshTokenExpiry returns the configured refresh token lifetime.
func (tm *TokenManager) RefreshTokenExpiry() time.Duration {
	return tm.refreshTokenExpiry
}

// GenerateAccessToken creates a short-lived access token carrying the
// guardian's identity claims for authorization without a database round trip.
func (tm *TokenManager) GenerateAccessToken(guardian *models.Guardian) (string, error) {
	return tm.generate(guardian, models.TokenTypeAccess, tm.accessTokenExpiry)
}

// GenerateRefreshToken creates a longer-lived refresh token. Claims are still
// embedded, but the refresh flow re-derives them from current account state.
func (tm *TokenManager) GenerateRefreshToken(guardian *models.Guardian) (string, error) {
	return tm.generate(guardian, models.TokenTypeRefresh, tm.refreshTokenExpiry)
}

func (tm *TokenManager) generate(guardian *models.Guardian, tokenType string, expiry time.Duration) (string, error) {
	now := time.Now()

	claims := &models.TokenClaims{
		Type:       tokenType,
		GuardianID: guardian.GuardianID,
		Username:   guardian.Username,
		Role:       guardian.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.FormatInt(guardian.GuardianID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token's signature and expiry and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}
