package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

// PostgresPointRepository implements PointRepository for PostgreSQL
type PostgresPointRepository struct {
	db database.DBTX
}

// GetSchemeByName retrieves a point scheme by name
func (r *PostgresPointRepository) GetSchemeByName(ctx context.Context, name string) (*models.PointScheme, error) {
	s := &models.PointScheme{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM point_schemes WHERE name = $1`, name,
	).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err != nil {
		return nil, wrapErr("get point scheme", err)
	}
	return s, nil
}

// CreateScheme inserts a scheme together with its scales
func (r *PostgresPointRepository) CreateScheme(ctx context.Context, scheme *models.PointScheme, scales []models.PointScale) error {
	if scheme.ID == uuid.Nil {
		scheme.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO point_schemes (id, name) VALUES ($1, $2) RETURNING created_at`, scheme.ID, scheme.Name,
	).Scan(&scheme.CreatedAt)
	if err != nil {
		return wrapErr("create point scheme", err)
	}
	if len(scales) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(scales))
	for i, sc := range scales {
		rows[i] = []interface{}{scheme.ID, string(sc.AwardType), sc.Position, sc.Points}
	}
	count, err := r.db.CopyFrom(ctx, pgx.Identifier{"point_scales"},
		[]string{"scheme_id", "award_type", "position", "points"}, pgx.CopyFromRows(rows))
	if err != nil {
		return wrapErr("insert point scales", err)
	}
	if count != int64(len(scales)) {
		return fmt.Errorf("inserted %d point scales, expected %d", count, len(scales))
	}
	return nil
}

// GetScale returns position to points for one award type
func (r *PostgresPointRepository) GetScale(ctx context.Context, schemeID uuid.UUID, awardType models.AwardType) (map[int]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT position, points FROM point_scales WHERE scheme_id = $1 AND award_type = $2`, schemeID, awardType,
	)
	if err != nil {
		return nil, wrapErr("query point scale", err)
	}
	defer rows.Close()

	scale := make(map[int]int)
	for rows.Next() {
		var pos, pts int
		if err := rows.Scan(&pos, &pts); err != nil {
			return nil, wrapErr("scan point scale", err)
		}
		scale[pos] = pts
	}
	return scale, rows.Err()
}

// PostgresPointAwardRepository implements PointAwardRepository for PostgreSQL
type PostgresPointAwardRepository struct {
	db database.DBTX
}

// InsertBatch inserts point awards using COPY
func (r *PostgresPointAwardRepository) InsertBatch(ctx context.Context, awards []*models.PointAward) error {
	if len(awards) == 0 {
		return nil
	}

	columns := []string{
		"id", "session_id", "driver_id", "basis", "version", "award_type", "position",
		"base_points", "bonus_points", "total_points",
	}
	rows := make([][]interface{}, len(awards))
	for i, a := range awards {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		rows[i] = []interface{}{
			a.ID, a.SessionID, a.DriverID, string(a.Basis), a.Version, string(a.AwardType), a.Position,
			a.BasePoints, a.BonusPoints, a.TotalPoints,
		}
	}

	count, err := r.db.CopyFrom(ctx, pgx.Identifier{"point_awards"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return wrapErr("batch insert point awards", err)
	}
	if count != int64(len(awards)) {
		return fmt.Errorf("inserted %d point awards, expected %d", count, len(awards))
	}
	return nil
}

// ListBySession retrieves the awards of one result version
func (r *PostgresPointAwardRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, basis models.ResultBasis, version int) ([]*models.PointAward, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, driver_id, basis, version, award_type, position,
		       base_points, bonus_points, total_points, created_at
		FROM point_awards
		WHERE session_id = $1 AND basis = $2 AND version = $3
		ORDER BY position NULLS LAST, driver_id`, sessionID, basis, version)
	if err != nil {
		return nil, wrapErr("query point awards", err)
	}
	defer rows.Close()

	var awards []*models.PointAward
	for rows.Next() {
		a := &models.PointAward{}
		err := rows.Scan(&a.ID, &a.SessionID, &a.DriverID, &a.Basis, &a.Version, &a.AwardType, &a.Position,
			&a.BasePoints, &a.BonusPoints, &a.TotalPoints, &a.CreatedAt)
		if err != nil {
			return nil, wrapErr("scan point award", err)
		}
		awards = append(awards, a)
	}
	return awards, rows.Err()
}

// MoveSession reassigns non-conflicting awards to another session
func (r *PostgresPointAwardRepository) MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	query := `
		UPDATE point_awards a SET session_id = $2
		WHERE a.session_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM point_awards x
		      WHERE x.session_id = $2 AND x.driver_id = a.driver_id
		        AND x.basis = a.basis AND x.version = a.version
		  )
	`
	tag, err := r.db.Exec(ctx, query, fromSessionID, toSessionID)
	if err != nil {
		return 0, wrapErr("move point awards", err)
	}
	return tag.RowsAffected(), nil
}
