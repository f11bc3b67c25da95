package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

const resultColumns = `id, session_id, driver_id, position, best_lap_ms, last_lap_ms, total_time_ms,
	gap_to_leader_ms, status, basis, version, created_at, updated_at`

// PostgresResultRepository implements ResultRepository for PostgreSQL
type PostgresResultRepository struct {
	db database.DBTX
}

func scanResult(row pgx.Row) (*models.Result, error) {
	res := &models.Result{}
	err := row.Scan(
		&res.ID, &res.SessionID, &res.DriverID, &res.Position, &res.BestLapMs, &res.LastLapMs,
		&res.TotalTimeMs, &res.GapToLeaderMs, &res.Status, &res.Basis, &res.Version,
		&res.CreatedAt, &res.UpdatedAt,
	)
	return res, err
}

// UpsertProvisional writes the single provisional row for a driver.
// The best lap only ever improves and a missing last lap keeps the stored one.
func (r *PostgresResultRepository) UpsertProvisional(ctx context.Context, result *models.Result) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.Basis = models.BasisProvisional
	result.Version = models.ProvisionalVersion

	query := `
		INSERT INTO results (id, session_id, driver_id, basis, version, position, best_lap_ms,
		                     last_lap_ms, total_time_ms, gap_to_leader_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, driver_id, basis, version) DO UPDATE SET
			position         = EXCLUDED.position,
			best_lap_ms      = LEAST(results.best_lap_ms, EXCLUDED.best_lap_ms),
			last_lap_ms      = COALESCE(EXCLUDED.last_lap_ms, results.last_lap_ms),
			total_time_ms    = COALESCE(EXCLUDED.total_time_ms, results.total_time_ms),
			gap_to_leader_ms = EXCLUDED.gap_to_leader_ms,
			status           = EXCLUDED.status,
			updated_at       = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		result.ID, result.SessionID, result.DriverID, result.Basis, result.Version, result.Position,
		result.BestLapMs, result.LastLapMs, result.TotalTimeMs, result.GapToLeaderMs, result.Status,
	).Scan(&result.ID, &result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return wrapErr("upsert provisional result", err)
	}
	return nil
}

func (r *PostgresResultRepository) list(ctx context.Context, query string, args ...any) ([]*models.Result, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query results", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, wrapErr("scan result", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListProvisional retrieves the live rows of a session ordered by position
func (r *PostgresResultRepository) ListProvisional(ctx context.Context, sessionID uuid.UUID) ([]*models.Result, error) {
	return r.list(ctx, `
		SELECT `+resultColumns+` FROM results
		WHERE session_id = $1 AND basis = 'provisional'
		ORDER BY position NULLS LAST, driver_id`, sessionID)
}

// PruneProvisional deletes the live rows of drivers no longer racing in the session
func (r *PostgresResultRepository) PruneProvisional(ctx context.Context, sessionID uuid.UUID, keep []uuid.UUID) (int64, error) {
	ids := make([]string, len(keep))
	for i, id := range keep {
		ids[i] = id.String()
	}
	tag, err := r.db.Exec(ctx, `
		DELETE FROM results
		WHERE session_id = $1 AND basis = 'provisional' AND NOT (driver_id = ANY($2::uuid[]))`,
		sessionID, ids)
	if err != nil {
		return 0, wrapErr("prune provisional results", err)
	}
	return tag.RowsAffected(), nil
}

// ListOfficial retrieves one official version of a session
func (r *PostgresResultRepository) ListOfficial(ctx context.Context, sessionID uuid.UUID, version int) ([]*models.Result, error) {
	return r.list(ctx, `
		SELECT `+resultColumns+` FROM results
		WHERE session_id = $1 AND basis = 'official' AND version = $2
		ORDER BY position NULLS LAST, status, driver_id`, sessionID, version)
}

// MaxOfficialVersion returns the latest published version, or 0
func (r *PostgresResultRepository) MaxOfficialVersion(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var version int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM results WHERE session_id = $1 AND basis = 'official'`, sessionID,
	).Scan(&version)
	if err != nil {
		return 0, wrapErr("get max official version", err)
	}
	return version, nil
}

// InsertBatch inserts immutable result rows using COPY
func (r *PostgresResultRepository) InsertBatch(ctx context.Context, results []*models.Result) error {
	if len(results) == 0 {
		return nil
	}

	columns := []string{
		"id", "session_id", "driver_id", "basis", "version", "position", "best_lap_ms",
		"last_lap_ms", "total_time_ms", "gap_to_leader_ms", "status",
	}
	copyFromSource := make([][]interface{}, len(results))
	for i, res := range results {
		if res.ID == uuid.Nil {
			res.ID = uuid.New()
		}
		copyFromSource[i] = []interface{}{
			res.ID, res.SessionID, res.DriverID, string(res.Basis), res.Version, res.Position, res.BestLapMs,
			res.LastLapMs, res.TotalTimeMs, res.GapToLeaderMs, string(res.Status),
		}
	}

	count, err := r.db.CopyFrom(ctx, pgx.Identifier{"results"}, columns, pgx.CopyFromRows(copyFromSource))
	if err != nil {
		return wrapErr("batch insert results", err)
	}
	if count != int64(len(results)) {
		return fmt.Errorf("inserted %d results, expected %d", count, len(results))
	}
	return nil
}

// BestProvisionalLap returns the fastest provisional best lap for a class and session type
func (r *PostgresResultRepository) BestProvisionalLap(ctx context.Context, classID uuid.UUID, sessionType models.SessionType) (*int64, error) {
	query := `
		SELECT MIN(r.best_lap_ms)
		FROM results r
		JOIN sessions s ON s.id = r.session_id
		WHERE s.class_id = $1 AND s.session_type = $2 AND r.basis = 'provisional'
	`
	var best *int64
	if err := r.db.QueryRow(ctx, query, classID, sessionType).Scan(&best); err != nil {
		return nil, wrapErr("get class best lap", err)
	}
	return best, nil
}

// MoveSession reassigns non-conflicting result rows to another session
func (r *PostgresResultRepository) MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	query := `
		UPDATE results r SET session_id = $2
		WHERE r.session_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM results x
		      WHERE x.session_id = $2 AND x.driver_id = r.driver_id
		        AND x.basis = r.basis AND x.version = r.version
		  )
	`
	tag, err := r.db.Exec(ctx, query, fromSessionID, toSessionID)
	if err != nil {
		return 0, wrapErr("move results", err)
	}
	return tag.RowsAffected(), nil
}
