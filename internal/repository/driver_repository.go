package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

const driverColumns = `id, first_name, last_name, team, chassis, transponder, created_at, updated_at`

// PostgresDriverRepository implements DriverRepository for PostgreSQL
type PostgresDriverRepository struct {
	db database.DBTX
}

// Create inserts a new driver
func (r *PostgresDriverRepository) Create(ctx context.Context, driver *models.Driver) error {
	if driver.ID == uuid.Nil {
		driver.ID = uuid.New()
	}
	query := `
		INSERT INTO drivers (id, first_name, last_name, team, chassis, transponder)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		driver.ID, driver.FirstName, driver.LastName, driver.Team, driver.Chassis, driver.Transponder,
	).Scan(&driver.CreatedAt, &driver.UpdatedAt)
	if err != nil {
		return wrapErr("create driver", err)
	}
	return nil
}

// GetByID retrieves a driver by ID
func (r *PostgresDriverRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	d := &models.Driver{}
	err := r.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id).Scan(
		&d.ID, &d.FirstName, &d.LastName, &d.Team, &d.Chassis, &d.Transponder, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("get driver", err)
	}
	return d, nil
}

// GetByName retrieves a driver by first and last name
func (r *PostgresDriverRepository) GetByName(ctx context.Context, firstName, lastName string) (*models.Driver, error) {
	d := &models.Driver{}
	err := r.db.QueryRow(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE first_name = $1 AND last_name = $2`, firstName, lastName,
	).Scan(&d.ID, &d.FirstName, &d.LastName, &d.Team, &d.Chassis, &d.Transponder, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, wrapErr("get driver by name", err)
	}
	return d, nil
}

// Update refreshes driver metadata
func (r *PostgresDriverRepository) Update(ctx context.Context, driver *models.Driver) error {
	query := `
		UPDATE drivers
		SET first_name = $2, last_name = $3, team = $4, chassis = $5, transponder = $6, updated_at = $7
		WHERE id = $1
	`
	driver.UpdatedAt = time.Now()
	tag, err := r.db.Exec(ctx, query,
		driver.ID, driver.FirstName, driver.LastName, driver.Team, driver.Chassis, driver.Transponder, driver.UpdatedAt,
	)
	if err != nil {
		return wrapErr("update driver", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
