package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yourusername/kart-timing/internal/database"
	"github.com/yourusername/kart-timing/internal/models"
)

// Repositories holds all repository implementations bound to one unit of work
type Repositories struct {
	Events      EventRepository
	Classes     ClassRepository
	Sessions    SessionRepository
	Drivers     DriverRepository
	Entries     EntryRepository
	Laps        LapRepository
	Results     ResultRepository
	Penalties   PenaltyRepository
	Points      PointRepository
	PointAwards PointAwardRepository

	begin func(ctx context.Context, fn func(*Repositories) error) error
}

// InTx runs fn with repositories bound to a new transaction. Calling InTx on
// repositories that are already transactional opens a nested savepoint, so a
// failure inside fn rolls back only the nested work.
func (r *Repositories) InTx(ctx context.Context, fn func(*Repositories) error) error {
	return r.begin(ctx, fn)
}

// NewRepositories creates and returns all PostgreSQL repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return newPostgresRepositories(db.GetPool()), nil
}

func newPostgresRepositories(q database.DBTX) *Repositories {
	repos := &Repositories{
		Events:      &PostgresEventRepository{db: q},
		Classes:     &PostgresClassRepository{db: q},
		Sessions:    &PostgresSessionRepository{db: q},
		Drivers:     &PostgresDriverRepository{db: q},
		Entries:     &PostgresEntryRepository{db: q},
		Laps:        &PostgresLapRepository{db: q},
		Results:     &PostgresResultRepository{db: q},
		Penalties:   &PostgresPenaltyRepository{db: q},
		Points:      &PostgresPointRepository{db: q},
		PointAwards: &PostgresPointAwardRepository{db: q},
	}
	repos.begin = func(ctx context.Context, fn func(*Repositories) error) error {
		return database.WithTx(ctx, q, func(tx pgx.Tx) error {
			return fn(newPostgresRepositories(tx))
		})
	}
	return repos
}

const uniqueViolation = "23505"

// wrapErr maps driver errors onto model sentinels and adds context
func wrapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("failed to %s: %w (%s)", op, models.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
