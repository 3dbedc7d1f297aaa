package repositories

import (
	"context"
	"sort"
	"time"

	"github.com/icanedev/smartcane-api/internal/database"
	"github.com/icanedev/smartcane-api/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for the failed-login
// ledger. Attempts are matched by username OR ip address; a NULL column only
// matches a NULL probe, never an arbitrary value.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record inserts a failed login attempt for the given identity
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (username, ip_address)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	err := r.db.Querier(ctx).QueryRow(ctx, query, attempt.Username, attempt.IPAddress).
		Scan(&attempt.ID, &attempt.CreatedAt)

	return database.MapPostgresError(err)
}

// RecentAttempts returns how many failed attempts match the identity within
// the window and when the most recent one happened.
func (r *LoginAttemptRepository) RecentAttempts(ctx context.Context, username, ipAddress *string, since time.Time) (int, *time.Time, error) {
	query := `
		SELECT COUNT(*), MAX(created_at) FROM login_attempts
		WHERE (username IS NOT DISTINCT FROM $1 OR ip_address IS NOT DISTINCT FROM $2)
		  AND created_at >= $3
	`

	var count int
	var lastAttempt *time.Time
	err := r.db.Querier(ctx).QueryRow(ctx, query, username, ipAddress, since).Scan(&count, &lastAttempt)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}

	return count, lastAttempt, nil
}

// Purge removes every attempt matching the identity. Called on successful
// login so the next failure starts a fresh window.
func (r *LoginAttemptRepository) Purge(ctx context.Context, username, ipAddress *string) error {
	query := `
		DELETE FROM login_attempts
		WHERE username IS NOT DISTINCT FROM $1 OR ip_address IS NOT DISTINCT FROM $2
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query, username, ipAddress)
	return database.MapPostgresError(err)
}

// WithIdentityLock runs fn inside a transaction holding advisory locks on the
// login identity, serializing the count-then-insert sequence so two concurrent
// failures counted into the same pool cannot both read the pre-failure count.
// Attempts are pooled by username OR address, so one lock is taken per
// dimension: attempts sharing either the username or the address contend on a
// common lock. Locks are released automatically at commit or rollback.
func (r *LoginAttemptRepository) WithIdentityLock(ctx context.Context, username, ipAddress *string, fn func(ctx context.Context) error) error {
	keys := identityLockKeys(username, ipAddress)

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
				return err
			}
		}
		return fn(database.ContextWithTx(ctx, tx))
	})
}

// identityLockKeys builds one advisory lock key per identity dimension. Keys
// are sorted so every holder acquires them in the same order. The "-"
// placeholder gives absent dimensions their own lock, matching the NULL-only-
// matches-NULL rule of the ledger queries.
func identityLockKeys(username, ipAddress *string) []string {
	user := "-"
	if username != nil {
		user = *username
	}
	addr := "-"
	if ipAddress != nil {
		addr = *ipAddress
	}

	keys := []string{
		"login_attempt:user:" + user,
		"login_attempt:ip:" + addr,
	}
	sort.Strings(keys)
	return keys
}

// DeleteOlderThan removes attempts recorded before the cutoff and returns how
// many rows were deleted. Used by the background retention sweep.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE created_at < $1`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
