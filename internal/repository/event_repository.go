package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

const eventColumns = `id, name, start_date, end_date, location, created_at, updated_at`

// PostgresEventRepository implements EventRepository for PostgreSQL
type PostgresEventRepository struct {
	db database.DBTX
}

// Create inserts a new event
func (r *PostgresEventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO events (id, name, start_date, end_date, location)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		event.ID, event.Name, event.StartDate, event.EndDate, event.Location,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return wrapErr("create event", err)
	}
	return nil
}

// GetByID retrieves an event by ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	event := &models.Event{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&event.ID, &event.Name, &event.StartDate, &event.EndDate, &event.Location,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("get event", err)
	}
	return event, nil
}

// GetByName retrieves the oldest event carrying the given name
func (r *PostgresEventRepository) GetByName(ctx context.Context, name string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE name = $1 ORDER BY created_at, id LIMIT 1`
	event := &models.Event{}
	err := r.db.QueryRow(ctx, query, name).Scan(
		&event.ID, &event.Name, &event.StartDate, &event.EndDate, &event.Location,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("get event by name", err)
	}
	return event, nil
}

// Update updates an existing event
func (r *PostgresEventRepository) Update(ctx context.Context, event *models.Event) error {
	query := `
		UPDATE events
		SET name = $2, start_date = $3, end_date = $4, location = $5, updated_at = $6
		WHERE id = $1
	`
	event.UpdatedAt = time.Now()
	tag, err := r.db.Exec(ctx, query,
		event.ID, event.Name, event.StartDate, event.EndDate, event.Location, event.UpdatedAt,
	)
	if err != nil {
		return wrapErr("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes an event and, by cascade, everything scoped to it
func (r *PostgresEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return wrapErr("delete event", err)
	}
	return nil
}
