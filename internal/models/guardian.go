package models

import (
	"time"
)

// Guardian is a caregiver account. Username, email and contact number are
// globally unique; the password hash never leaves the data layer.
type Guardian struct {
	GuardianID        int64
	Username          string
	PasswordHash      string
	GuardianName      string
	GuardianImageURL  *string
	Email             string
	ContactNumber     *string
	RelationshipToVIP *string
	Province          *string
	City              *string
	Barangay          *string
	Village           *string
	StreetAddress     *string
	Role              string // defaults to "guardian"
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
