package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

// PostgresClassRepository implements ClassRepository for PostgreSQL
type PostgresClassRepository struct {
	db database.DBTX
}

// Create inserts a new class
func (r *PostgresClassRepository) Create(ctx context.Context, class *models.RaceClass) error {
	if class.ID == uuid.Nil {
		class.ID = uuid.New()
	}
	query := `INSERT INTO classes (id, event_id, name) VALUES ($1, $2, $3) RETURNING created_at`
	if err := r.db.QueryRow(ctx, query, class.ID, class.EventID, class.Name).Scan(&class.CreatedAt); err != nil {
		return wrapErr("create class", err)
	}
	return nil
}

// GetByID retrieves a class by ID
func (r *PostgresClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RaceClass, error) {
	class := &models.RaceClass{}
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, name, created_at FROM classes WHERE id = $1`, id,
	).Scan(&class.ID, &class.EventID, &class.Name, &class.CreatedAt)
	if err != nil {
		return nil, wrapErr("get class", err)
	}
	return class, nil
}

// GetByName retrieves a class by name within an event
func (r *PostgresClassRepository) GetByName(ctx context.Context, eventID uuid.UUID, name string) (*models.RaceClass, error) {
	class := &models.RaceClass{}
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, name, created_at FROM classes WHERE event_id = $1 AND name = $2`, eventID, name,
	).Scan(&class.ID, &class.EventID, &class.Name, &class.CreatedAt)
	if err != nil {
		return nil, wrapErr("get class by name", err)
	}
	return class, nil
}

// ListByEvent retrieves all classes of an event
func (r *PostgresClassRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.RaceClass, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, name, created_at FROM classes WHERE event_id = $1 ORDER BY created_at, id`, eventID,
	)
	if err != nil {
		return nil, wrapErr("query classes", err)
	}
	defer rows.Close()

	var classes []*models.RaceClass
	for rows.Next() {
		class := &models.RaceClass{}
		if err := rows.Scan(&class.ID, &class.EventID, &class.Name, &class.CreatedAt); err != nil {
			return nil, wrapErr("scan class", err)
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

// Update renames a class or moves it to another event
func (r *PostgresClassRepository) Update(ctx context.Context, class *models.RaceClass) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes SET event_id = $2, name = $3 WHERE id = $1`, class.ID, class.EventID, class.Name,
	)
	if err != nil {
		return wrapErr("update class", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a class
func (r *PostgresClassRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return wrapErr("delete class", err)
	}
	return nil
}
