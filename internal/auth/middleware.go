package auth

import (
	"context"
	"net/http"

	"github.com/icanedev/smartcane-api/internal/models"
	pkghttp "github.com/icanedev/smartcane-api/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

// GuardianContextKey is the key for storing guardian claims in context
const GuardianContextKey contextKey = "guardian"

// GuardianResolver looks up the account behind validated claims. This is the
// capability every non-auth route group uses to resolve the caller.
type GuardianResolver interface {
	GetByID(ctx context.Context, id int64) (*models.Guardian, error)
}

// Middleware validates the access token cookie and injects the claims into
// the request context.
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := GetAccessTokenCookie(r)
			if err != nil || tokenString == "" {
				pkghttp.WriteUnauthorized(w, "Missing access token")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			// Refresh tokens are only accepted by the refresh endpoint
			if claims.Type != models.TokenTypeAccess {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), GuardianContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromRequest extracts guardian claims from the request context
func ClaimsFromRequest(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(GuardianContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// ResolveGuardian loads the full account for the authenticated caller.
func ResolveGuardian(r *http.Request, resolver GuardianResolver) (*models.Guardian, error) {
	claims := ClaimsFromRequest(r)
	if claims == nil {
		return nil, models.ErrUnauthorized
	}
	return resolver.GetByID(r.Context(), claims.GuardianID)
}
