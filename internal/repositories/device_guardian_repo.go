package repositories

import (
	"context"

	"github.com/icanedev/smartcane-api/internal/database"
)

// DeviceGuardianRepository reads the cane-to-guardian pairing table. Device
// management itself lives elsewhere; login only needs to know whether the
// caller has a cane paired yet so the app can route first-time setup.
type DeviceGuardianRepository struct {
	db *database.DB
}

// NewDeviceGuardianRepository creates a new DeviceGuardianRepository
func NewDeviceGuardianRepository(db *database.DB) *DeviceGuardianRepository {
	return &DeviceGuardianRepository{db: db}
}

// HasRegisteredDevice reports whether the guardian has at least one paired cane
func (r *DeviceGuardianRepository) HasRegisteredDevice(ctx context.Context, guardianID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM device_guardians WHERE guardian_id = $1)`

	var exists bool
	err := r.db.Querier(ctx).QueryRow(ctx, query, guardianID).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return exists, nil
}
