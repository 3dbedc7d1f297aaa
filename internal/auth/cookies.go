package auth

import (
	"net/http"
	"time"
)

// Cookie names for the token pair
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieConfig holds cookie attributes derived from the environment. The
// frontend is served from a different origin in production, which forces
// SameSite=None and therefore Secure.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
}

// NewCookieConfig returns the cookie policy for the given environment:
// Secure + SameSite=None in production, Lax over plain HTTP in development.
func NewCookieConfig(env string) CookieConfig {
	if env == "production" {
		return CookieConfig{Secure: true, SameSite: http.SameSiteNoneMode}
	}
	return CookieConfig{Secure: false, SameSite: http.SameSiteLaxMode}
}

// SetAccessTokenCookie delivers the access token as an httpOnly cookie so
// injected script cannot read it.
func SetAccessTokenCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	setTokenCookie(w, AccessTokenCookie, token, maxAge, config)
}

// SetRefreshTokenCookie delivers the refresh token as an httpOnly cookie.
func SetRefreshTokenCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	setTokenCookie(w, RefreshTokenCookie, token, maxAge, config)
}

func setTokenCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: config.SameSite,
	})
}

// ClearAuthCookies expires both token cookies. The tokens themselves remain
// valid until their natural expiry; only the browser copy is discarded.
func ClearAuthCookies(w http.ResponseWriter, config CookieConfig) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   config.Secure,
			SameSite: config.SameSite,
		})
	}
}

// GetAccessTokenCookie retrieves the access token from the request cookies
func GetAccessTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetRefreshTokenCookie retrieves the refresh token from the request cookies
func GetRefreshTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
