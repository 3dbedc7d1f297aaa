package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types embedded in claims
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims are the claims embedded in access and refresh tokens. They carry
// enough identity for authorization checks without a database round trip; the
// refresh flow re-derives them from current account state.
type TokenClaims struct {
	Type       string `json:"type"`
	GuardianID int64  `json:"guardian_id"`
	Username   string `json:"username,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
