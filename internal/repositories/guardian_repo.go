package repositories

import (
	"context"

	"github.com/icanedev/smartcane-api/internal/database"
	"github.com/icanedev/smartcane-api/internal/models"
)

type GuardianRepository struct {
	db *database.DB
}

func NewGuardianRepository(db *database.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

const guardianColumns = `
	guardian_id, username, password_hash, guardian_name, guardian_image_url,
	email, contact_number, relationship_to_vip, province, city, barangay,
	village, street_address, role, created_at, updated_at
`

// rowScanner interface for scanning guardian rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanGuardianRow handles nullable fields and populates a Guardian model from a database row
func scanGuardianRow(scanner rowScanner) (*models.Guardian, error) {
	var guardian models.Guardian

	err := scanner.Scan(
		&guardian.GuardianID, &guardian.Username, &guardian.PasswordHash,
		&guardian.GuardianName, &guardian.GuardianImageURL,
		&guardian.Email, &guardian.ContactNumber, &guardian.RelationshipToVIP,
		&guardian.Province, &guardian.City, &guardian.Barangay,
		&guardian.Village, &guardian.StreetAddress, &guardian.Role,
		&guardian.CreatedAt, &guardian.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &guardian, nil
}

func (r *GuardianRepository) GetByID(ctx context.Context, id int64) (*models.Guardian, error) {
	query := `SELECT ` + guardianColumns + ` FROM guardians WHERE guardian_id = $1`

	return scanGuardianRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

func (r *GuardianRepository) GetByUsername(ctx context.Context, username string) (*models.Guardian, error) {
	query := `SELECT ` + guardianColumns + ` FROM guardians WHERE username = $1`

	return scanGuardianRow(r.db.Querier(ctx).QueryRow(ctx, query, username))
}

func (r *GuardianRepository) GetByEmail(ctx context.Context, email string) (*models.Guardian, error) {
	query := `SELECT ` + guardianColumns + ` FROM guardians WHERE email = $1`

	return scanGuardianRow(r.db.Querier(ctx).QueryRow(ctx, query, email))
}

func (r *GuardianRepository) GetByContactNumber(ctx context.Context, contactNumber string) (*models.Guardian, error) {
	query := `SELECT ` + guardianColumns + ` FROM guardians WHERE contact_number = $1`

	return scanGuardianRow(r.db.Querier(ctx).QueryRow(ctx, query, contactNumber))
}

// Create inserts a new guardian and fills in the generated id and timestamps.
// Unique violations on username, email or contact_number surface as
// models.ErrConflict.
func (r *GuardianRepository) Create(ctx context.Context, guardian *models.Guardian) error {
	query := `
		INSERT INTO guardians (
			username, password_hash, guardian_name, guardian_image_url,
			email, contact_number, relationship_to_vip, province, city,
			barangay, village, street_address, role
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING guardian_id, created_at, updated_at
	`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		guardian.Username,
		guardian.PasswordHash,
		guardian.GuardianName,
		guardian.GuardianImageURL,
		guardian.Email,
		guardian.ContactNumber,
		guardian.RelationshipToVIP,
		guardian.Province,
		guardian.City,
		guardian.Barangay,
		guardian.Village,
		guardian.StreetAddress,
		guardian.Role,
	).Scan(&guardian.GuardianID, &guardian.CreatedAt, &guardian.UpdatedAt)

	return database.MapPostgresError(err)
}

// UpdateEmail sets a new email address for the guardian. The single-column
// UPDATE is atomic, so a racing profile edit cannot resurrect the old value.
func (r *GuardianRepository) UpdateEmail(ctx context.Context, guardianID int64, email string) error {
	query := `
		UPDATE guardians SET email = $2, updated_at = NOW()
		WHERE guardian_id = $1
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, guardianID, email)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *GuardianRepository) UpdatePassword(ctx context.Context, guardianID int64, passwordHash string) error {
	query := `
		UPDATE guardians SET password_hash = $2, updated_at = NOW()
		WHERE guardian_id = $1
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, guardianID, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
