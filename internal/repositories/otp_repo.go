package repositories

import (
	"context"
	"time"

	"github.com/icanedev/smartcane-api/internal/database"
	"github.com/icanedev/smartcane-api/internal/models"
)

// OTPRepository handles database operations for one-time passcodes. Rows are
// never deleted; superseded and expired codes stay in place as an audit trail
// and as input to the issuance rate limit.
type OTPRepository struct {
	db *database.DB
}

// NewOTPRepository creates a new OTPRepository
func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// CountRecent returns how many codes were issued for (email, purpose) since
// the given time, used and unused alike.
func (r *OTPRepository) CountRecent(ctx context.Context, email string, purpose models.OTPPurpose, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM otps
		WHERE email = $1 AND purpose = $2 AND created_at >= $3
	`

	var count int
	err := r.db.Querier(ctx).QueryRow(ctx, query, email, purpose, since).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// Create inserts a new code and fills in the generated id and created_at
func (r *OTPRepository) Create(ctx context.Context, otp *models.OTP) error {
	query := `
		INSERT INTO otps (email, otp_code, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		otp.Email, otp.Code, otp.Purpose, otp.ExpiresAt,
	).Scan(&otp.ID, &otp.CreatedAt)

	return database.MapPostgresError(err)
}

// LatestUnused returns the most recently issued unused code for
// (email, purpose), expired or not. Issuing a new code supersedes older
// unused ones: they stay unused but become unreachable through this lookup.
func (r *OTPRepository) LatestUnused(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, error) {
	query := `
		SELECT id, email, otp_code, purpose, is_used, attempt_count, created_at, expires_at, used_at
		FROM otps
		WHERE email = $1 AND purpose = $2 AND is_used = false
		ORDER BY created_at DESC
		LIMIT 1
	`

	var otp models.OTP
	err := r.db.Querier(ctx).QueryRow(ctx, query, email, purpose).Scan(
		&otp.ID, &otp.Email, &otp.Code, &otp.Purpose, &otp.IsUsed,
		&otp.AttemptCount, &otp.CreatedAt, &otp.ExpiresAt, &otp.UsedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &otp, nil
}

// MarkUsed flips is_used on a code. The is_used = false guard makes the flip
// first-wins under concurrent verification of the same code.
func (r *OTPRepository) MarkUsed(ctx context.Context, id int64, usedAt time.Time) error {
	query := `
		UPDATE otps SET is_used = true, used_at = $2
		WHERE id = $1 AND is_used = false
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, id, usedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrOTPInvalid
	}

	return nil
}

// IncrementAttempts bumps the failed-guess counter for a code and returns the
// new count.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE otps SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count
	`

	var count int
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}
