package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

// PostgresPenaltyRepository implements PenaltyRepository for PostgreSQL
type PostgresPenaltyRepository struct {
	db database.DBTX
}

// Create records a penalty
func (r *PostgresPenaltyRepository) Create(ctx context.Context, penalty *models.Penalty) error {
	if penalty.ID == uuid.Nil {
		penalty.ID = uuid.New()
	}
	if penalty.CreatedAt.IsZero() {
		penalty.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO penalties (id, session_id, driver_id, type, value_ms, positions, lap_number, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		penalty.ID, penalty.SessionID, penalty.DriverID, penalty.Type, penalty.ValueMs,
		penalty.Positions, penalty.LapNumber, penalty.Note, penalty.CreatedAt,
	)
	if err != nil {
		return wrapErr("create penalty", err)
	}
	return nil
}

// ListBySession retrieves a session's penalties in recorded order
func (r *PostgresPenaltyRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Penalty, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, driver_id, type, value_ms, positions, lap_number, note, created_at
		FROM penalties WHERE session_id = $1
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, wrapErr("query penalties", err)
	}
	defer rows.Close()

	var penalties []*models.Penalty
	for rows.Next() {
		p := &models.Penalty{}
		err := rows.Scan(&p.ID, &p.SessionID, &p.DriverID, &p.Type, &p.ValueMs, &p.Positions, &p.LapNumber, &p.Note, &p.CreatedAt)
		if err != nil {
			return nil, wrapErr("scan penalty", err)
		}
		penalties = append(penalties, p)
	}
	return penalties, rows.Err()
}

// Delete hard-deletes a penalty
func (r *PostgresPenaltyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM penalties WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete penalty", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MoveSession reassigns all penalties to another session
func (r *PostgresPenaltyRepository) MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE penalties SET session_id = $2 WHERE session_id = $1`, fromSessionID, toSessionID)
	if err != nil {
		return 0, wrapErr("move penalties", err)
	}
	return tag.RowsAffected(), nil
}
