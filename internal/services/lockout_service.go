package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/icanedev/smartcane-api/internal/config"
	"github.com/icanedev/smartcane-api/internal/models"
)

// LoginAttemptLedger defines the interface for failed-login ledger operations
type LoginAttemptLedger interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	RecentAttempts(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error)
	Purge(ctx context.Context, username, ipAddress *string) error
	WithIdentityLock(ctx context.Context, username, ipAddress *string, fn func(ctx context.Context) error) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockoutDecision is the outcome of evaluating the lockout policy for one
// login attempt.
type LockoutDecision struct {
	Allowed           bool
	RemainingAttempts int
	RetryAfter        int // seconds until the next attempt is permitted, 0 when allowed
}

// LockoutService implements progressive login lockout. Failed attempts are
// matched by username OR source address, so varying one while holding the
// other fixed still accumulates toward the same lockout.
type LockoutService struct {
	ledger LoginAttemptLedger
	config config.LockoutConfig
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(ledger LoginAttemptLedger, config config.LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		ledger: ledger,
		config: config,
		logger: logger,
	}
}

// Evaluate decides whether a login attempt for the identity is currently
// permitted. Attempts within the sliding window are counted; up to
// FreeAttempts failures cost nothing, after which the lockout duration
// escalates through the schedule and plateaus at its last tier. The wait is
// anchored to the most recent failure, so each further failure restarts it.
func (s *LockoutService) Evaluate(ctx context.Context, username, ipAddress *string) (LockoutDecision, error) {
	now := time.Now().UTC()
	since := now.Add(-s.config.Window)

	count, lastAttempt, err := s.ledger.RecentAttempts(ctx, username, ipAddress, since)
	if err != nil {
		return LockoutDecision{}, err
	}

	if count <= s.config.FreeAttempts {
		return LockoutDecision{
			Allowed:           true,
			RemainingAttempts: s.config.FreeAttempts - count,
		}, nil
	}

	tier := count - s.config.FreeAttempts - 1
	if tier >= len(s.config.Schedule) {
		tier = len(s.config.Schedule) - 1
	}
	lockout := s.config.Schedule[tier]

	retryAfter := 0
	if lastAttempt != nil {
		wait := lastAttempt.UTC().Add(lockout).Sub(now)
		if wait > 0 {
			retryAfter = int(math.Ceil(wait.Seconds()))
		}
	}

	if retryAfter > 0 {
		s.logger.Warn("login locked out",
			slog.Int("failed_attempts", count),
			slog.Duration("lockout", lockout),
			slog.Int("retry_after", retryAfter))
		return LockoutDecision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	// The lockout has elapsed; one more attempt is permitted, but a further
	// failure re-arms the next tier.
	return LockoutDecision{Allowed: true, RemainingAttempts: 0}, nil
}

// RecordFailure appends a failed attempt to the ledger
func (s *LockoutService) RecordFailure(ctx context.Context, username, ipAddress *string) error {
	return s.ledger.Record(ctx, &models.LoginAttempt{
		Username:  username,
		IPAddress: ipAddress,
	})
}

// ClearAttempts purges every attempt matching the identity, resetting the
// lockout state. Called only on successful authentication.
func (s *LockoutService) ClearAttempts(ctx context.Context, username, ipAddress *string) error {
	return s.ledger.Purge(ctx, username, ipAddress)
}

// Guard runs fn with the identity's attempt ledger locked. Concurrent login
// attempts for the same username or address serialize here, so a burst of
// failures cannot all observe the pre-burst attempt count.
func (s *LockoutService) Guard(ctx context.Context, username, ipAddress *string, fn func(ctx context.Context) error) error {
	return s.ledger.WithIdentityLock(ctx, username, ipAddress, fn)
}

// PruneStale removes ledger rows older than the retention horizon. Rows that
// old are outside every evaluation window, so removing them never changes a
// lockout decision.
func (s *LockoutService) PruneStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.AttemptRetention)
	return s.ledger.DeleteOlderThan(ctx, cutoff)
}
