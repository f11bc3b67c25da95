package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

const lapColumns = `id, session_id, driver_id, lap_number, duration_ms, valid, created_at`

// PostgresLapRepository implements LapRepository for PostgreSQL
type PostgresLapRepository struct {
	db database.DBTX
}

// InsertBatch inserts laps using COPY
func (r *PostgresLapRepository) InsertBatch(ctx context.Context, laps []*models.Lap) error {
	if len(laps) == 0 {
		return nil
	}

	columns := []string{"id", "session_id", "driver_id", "lap_number", "duration_ms", "valid", "created_at"}
	now := time.Now()
	copyFromSource := make([][]interface{}, len(laps))
	for i, lap := range laps {
		if lap.ID == uuid.Nil {
			lap.ID = uuid.New()
		}
		if lap.CreatedAt.IsZero() {
			lap.CreatedAt = now
		}
		copyFromSource[i] = []interface{}{
			lap.ID, lap.SessionID, lap.DriverID, lap.LapNumber, lap.DurationMs, lap.Valid, lap.CreatedAt,
		}
	}

	count, err := r.db.CopyFrom(ctx, pgx.Identifier{"laps"}, columns, pgx.CopyFromRows(copyFromSource))
	if err != nil {
		return wrapErr("batch insert laps", err)
	}
	if count != int64(len(laps)) {
		return fmt.Errorf("inserted %d laps, expected %d", count, len(laps))
	}
	return nil
}

// MaxLapNumber returns the highest persisted lap number, or 0
func (r *PostgresLapRepository) MaxLapNumber(ctx context.Context, sessionID, driverID uuid.UUID) (int, error) {
	var max int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(lap_number), 0) FROM laps WHERE session_id = $1 AND driver_id = $2`,
		sessionID, driverID,
	).Scan(&max)
	if err != nil {
		return 0, wrapErr("get max lap number", err)
	}
	return max, nil
}

func (r *PostgresLapRepository) list(ctx context.Context, query string, args ...any) ([]*models.Lap, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query laps", err)
	}
	defer rows.Close()

	var laps []*models.Lap
	for rows.Next() {
		lap := &models.Lap{}
		err := rows.Scan(&lap.ID, &lap.SessionID, &lap.DriverID, &lap.LapNumber, &lap.DurationMs, &lap.Valid, &lap.CreatedAt)
		if err != nil {
			return nil, wrapErr("scan lap", err)
		}
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}

// ListBySessionDriver retrieves a driver's laps in lap order
func (r *PostgresLapRepository) ListBySessionDriver(ctx context.Context, sessionID, driverID uuid.UUID) ([]*models.Lap, error) {
	return r.list(ctx,
		`SELECT `+lapColumns+` FROM laps WHERE session_id = $1 AND driver_id = $2 ORDER BY lap_number`,
		sessionID, driverID,
	)
}

// ListBySession retrieves all laps of a session
func (r *PostgresLapRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Lap, error) {
	return r.list(ctx,
		`SELECT `+lapColumns+` FROM laps WHERE session_id = $1 ORDER BY driver_id, lap_number`,
		sessionID,
	)
}

// MoveSession reassigns non-conflicting laps to another session
func (r *PostgresLapRepository) MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	query := `
		UPDATE laps l SET session_id = $2
		WHERE l.session_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM laps x
		      WHERE x.session_id = $2 AND x.driver_id = l.driver_id AND x.lap_number = l.lap_number
		  )
	`
	tag, err := r.db.Exec(ctx, query, fromSessionID, toSessionID)
	if err != nil {
		return 0, wrapErr("move laps", err)
	}
	return tag.RowsAffected(), nil
}
