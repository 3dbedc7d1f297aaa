package models

import "time"

// OTPPurpose scopes a one-time passcode to a single account-lifecycle flow so
// that concurrent flows for the same email do not interfere.
type OTPPurpose string

const (
	OTPPurposeGeneral       OTPPurpose = "general"
	OTPPurposeRegistration  OTPPurpose = "registration"
	OTPPurposeEmailChange   OTPPurpose = "email_change"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// Valid reports whether p is one of the known purposes.
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeGeneral, OTPPurposeRegistration, OTPPurposeEmailChange, OTPPurposePasswordReset:
		return true
	}
	return false
}

// OTP is one issued one-time passcode. Records are append-only: the only
// mutations ever applied are flipping IsUsed on successful verification and
// bumping AttemptCount on a mismatch. Expiry is derived from ExpiresAt at
// verification time, never stored as a state transition.
type OTP struct {
	ID           int64
	Email        string
	Code         string // fixed-length numeric, leading zeros permitted
	Purpose      OTPPurpose
	IsUsed       bool
	AttemptCount int
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UsedAt       *time.Time
}

// Expired reports whether the code is past its validity window at now.
func (o *OTP) Expired(now time.Time) bool {
	return now.UTC().After(o.ExpiresAt.UTC())
}
