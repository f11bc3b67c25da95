package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

const sessionColumns = `id, event_id, class_id, name, session_type, status, started_at, ended_at, created_at, updated_at`

// PostgresSessionRepository implements SessionRepository for PostgreSQL
type PostgresSessionRepository struct {
	db database.DBTX
}

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(
		&s.ID, &s.EventID, &s.ClassID, &s.Name, &s.SessionType, &s.Status,
		&s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// Create inserts a new session
func (r *PostgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusLive
	}
	query := `
		INSERT INTO sessions (id, event_id, class_id, name, session_type, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		session.ID, session.EventID, session.ClassID, session.Name, session.SessionType,
		session.Status, session.StartedAt, session.EndedAt,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return wrapErr("create session", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get session", err)
	}
	return s, nil
}

// GetForUpdate retrieves a session and locks its row
func (r *PostgresSessionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapErr("lock session", err)
	}
	return s, nil
}

// GetByName retrieves a session by its natural key
func (r *PostgresSessionRepository) GetByName(ctx context.Context, eventID, classID uuid.UUID, name string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE event_id = $1 AND class_id = $2 AND name = $3`
	s, err := scanSession(r.db.QueryRow(ctx, query, eventID, classID, name))
	if err != nil {
		return nil, wrapErr("get session by name", err)
	}
	return s, nil
}

// ListByClass retrieves all sessions of a class
func (r *PostgresSessionRepository) ListByClass(ctx context.Context, classID uuid.UUID) ([]*models.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE class_id = $1 ORDER BY created_at, id`, classID,
	)
	if err != nil {
		return nil, wrapErr("query sessions", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrapErr("scan session", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Update updates an existing session
func (r *PostgresSessionRepository) Update(ctx context.Context, session *models.Session) error {
	query := `
		UPDATE sessions
		SET event_id = $2, class_id = $3, name = $4, session_type = $5, status = $6,
		    started_at = $7, ended_at = $8, updated_at = $9
		WHERE id = $1
	`
	session.UpdatedAt = time.Now()
	tag, err := r.db.Exec(ctx, query,
		session.ID, session.EventID, session.ClassID, session.Name, session.SessionType,
		session.Status, session.StartedAt, session.EndedAt, session.UpdatedAt,
	)
	if err != nil {
		return wrapErr("update session", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a session and its dependent rows
func (r *PostgresSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return wrapErr("delete session", err)
	}
	return nil
}
