//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/icanedev/smartcane-api/internal/database"
	"github.com/icanedev/smartcane-api/internal/models"
	"github.com/icanedev/smartcane-api/pkg/auth"
)

// TestDB manages the PostgreSQL testcontainer and database handles
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("smartcane"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbWrapper := database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         dbWrapper,
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"device_guardians",
		"login_attempts",
		"otps",
		"guardians",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedGuardian inserts a test guardian with a hashed password
func SeedGuardian(ctx context.Context, pool *pgxpool.Pool, username, email, password string) (*models.Guardian, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO guardians (username, password_hash, guardian_name, email)
		VALUES ($1, $2, $3, $4)
		RETURNING guardian_id, username, password_hash, guardian_name, email, role, created_at, updated_at
	`

	var guardian models.Guardian
	err = pool.QueryRow(ctx, query, username, hash, "Test Guardian", email).Scan(
		&guardian.GuardianID,
		&guardian.Username,
		&guardian.PasswordHash,
		&guardian.GuardianName,
		&guardian.Email,
		&guardian.Role,
		&guardian.CreatedAt,
		&guardian.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert guardian: %w", err)
	}

	return &guardian, nil
}

// SeedDevicePairing links a cane to a guardian
func SeedDevicePairing(ctx context.Context, pool *pgxpool.Pool, deviceID string, guardianID int64) error {
	query := `
		INSERT INTO device_guardians (device_id, guardian_id)
		VALUES ($1, $2)
	`
	if _, err := pool.Exec(ctx, query, deviceID, guardianID); err != nil {
		return fmt.Errorf("failed to insert device pairing: %w", err)
	}
	return nil
}

// SeedLoginAttempt backdates a failed attempt for lockout window tests
func SeedLoginAttempt(ctx context.Context, pool *pgxpool.Pool, username, ipAddress *string, age time.Duration) error {
	query := `
		INSERT INTO login_attempts (username, ip_address, created_at)
		VALUES ($1, $2, NOW() - $3::interval)
	`
	interval := fmt.Sprintf("%d seconds", int(age.Seconds()))
	if _, err := pool.Exec(ctx, query, username, ipAddress, interval); err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}
	return nil
}
