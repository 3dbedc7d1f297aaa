package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// OTP verification outcomes, kept distinct so handlers can tell the
	// caller exactly why a code was rejected
	ErrOTPNotFound        = errors.New("no matching one-time passcode")
	ErrOTPExpired         = errors.New("one-time passcode has expired")
	ErrOTPInvalid         = errors.New("one-time passcode does not match")
	ErrOTPTooManyAttempts = errors.New("too many verification attempts for this passcode")

	// ErrRateLimited covers OTP issuance throttling
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrEmailDelivery signals that the outbound email collaborator failed
	ErrEmailDelivery = errors.New("email delivery failed")
)

// LockoutError reports a login blocked by the lockout policy. It carries the
// machine-readable wait so handlers can surface retry timing to the caller.
type LockoutError struct {
	RetryAfter int // seconds until the next attempt is permitted
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("login locked out, retry in %d seconds", e.RetryAfter)
}
