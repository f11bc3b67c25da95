package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

const entryColumns = `id, event_id, class_id, driver_id, number, created_at`

// PostgresEntryRepository implements EntryRepository for PostgreSQL
type PostgresEntryRepository struct {
	db database.DBTX
}

// Create inserts a new entry
func (r *PostgresEntryRepository) Create(ctx context.Context, entry *models.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO entries (id, event_id, class_id, driver_id, number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.EventID, entry.ClassID, entry.DriverID, entry.Number,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return wrapErr("create entry", err)
	}
	return nil
}

func (r *PostgresEntryRepository) getOne(ctx context.Context, op, where string, args ...any) (*models.Entry, error) {
	e := &models.Entry{}
	err := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE `+where, args...).Scan(
		&e.ID, &e.EventID, &e.ClassID, &e.DriverID, &e.Number, &e.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return e, nil
}

// GetByNumber retrieves the entry holding a kart number within an event class
func (r *PostgresEntryRepository) GetByNumber(ctx context.Context, eventID, classID uuid.UUID, number string) (*models.Entry, error) {
	return r.getOne(ctx, "get entry by number", `event_id = $1 AND class_id = $2 AND number = $3`, eventID, classID, number)
}

// GetByDriver retrieves a driver's entry within an event class
func (r *PostgresEntryRepository) GetByDriver(ctx context.Context, eventID, classID, driverID uuid.UUID) (*models.Entry, error) {
	return r.getOne(ctx, "get entry by driver", `event_id = $1 AND class_id = $2 AND driver_id = $3`, eventID, classID, driverID)
}

// ListByClass retrieves all entries of a class
func (r *PostgresEntryRepository) ListByClass(ctx context.Context, classID uuid.UUID) ([]*models.Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE class_id = $1 ORDER BY created_at, id`, classID,
	)
	if err != nil {
		return nil, wrapErr("query entries", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		e := &models.Entry{}
		if err := rows.Scan(&e.ID, &e.EventID, &e.ClassID, &e.DriverID, &e.Number, &e.CreatedAt); err != nil {
			return nil, wrapErr("scan entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Update rebinds an entry's driver, number or scope
func (r *PostgresEntryRepository) Update(ctx context.Context, entry *models.Entry) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE entries SET event_id = $2, class_id = $3, driver_id = $4, number = $5 WHERE id = $1`,
		entry.ID, entry.EventID, entry.ClassID, entry.DriverID, entry.Number,
	)
	if err != nil {
		return wrapErr("update entry", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes an entry
func (r *PostgresEntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id); err != nil {
		return wrapErr("delete entry", err)
	}
	return nil
}
