package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	pkghttp "github.com/icanedev/smartcane-api/pkg/http"
)

// RateLimitConfig holds per-IP request rate limiting configuration. This is a
// transport-level throttle on raw request volume; the lockout and passcode
// engines apply their own identity-scoped policies on top of it.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns the request budget for credential endpoints
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// DefaultOTPRateLimit returns the request budget for passcode endpoints.
// Tighter than the auth budget: legitimate clients touch these a handful of
// times per flow.
func DefaultOTPRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 5,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please slow down.")
		}),
	)
}
