package models

import "time"

// LoginAttempt is one failed authentication attempt. Rows are matched by value
// (username or source address), never by reference to a guardian, and are only
// removed in bulk when a matching login succeeds.
type LoginAttempt struct {
	ID        int64
	Username  *string
	IPAddress *string
	CreatedAt time.Time
}
