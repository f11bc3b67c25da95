package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourusername/kart-timing/internal/models"
)

// EventRepository defines the interface for event data access
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetByName(ctx context.Context, name string) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ClassRepository defines the interface for race class data access
type ClassRepository interface {
	Create(ctx context.Context, class *models.RaceClass) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RaceClass, error)
	GetByName(ctx context.Context, eventID uuid.UUID, name string) (*models.RaceClass, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.RaceClass, error)
	Update(ctx context.Context, class *models.RaceClass) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// GetForUpdate loads the session and locks its row until the transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByName(ctx context.Context, eventID, classID uuid.UUID, name string) (*models.Session, error)
	ListByClass(ctx context.Context, classID uuid.UUID) ([]*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DriverRepository defines the interface for driver data access
type DriverRepository interface {
	Create(ctx context.Context, driver *models.Driver) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	GetByName(ctx context.Context, firstName, lastName string) (*models.Driver, error)
	Update(ctx context.Context, driver *models.Driver) error
}

// EntryRepository defines the interface for entry data access
type EntryRepository interface {
	Create(ctx context.Context, entry *models.Entry) error
	GetByNumber(ctx context.Context, eventID, classID uuid.UUID, number string) (*models.Entry, error)
	GetByDriver(ctx context.Context, eventID, classID, driverID uuid.UUID) (*models.Entry, error)
	ListByClass(ctx context.Context, classID uuid.UUID) ([]*models.Entry, error)
	Update(ctx context.Context, entry *models.Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LapRepository defines the interface for lap data access
type LapRepository interface {
	InsertBatch(ctx context.Context, laps []*models.Lap) error
	MaxLapNumber(ctx context.Context, sessionID, driverID uuid.UUID) (int, error)
	ListBySessionDriver(ctx context.Context, sessionID, driverID uuid.UUID) ([]*models.Lap, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Lap, error)
	// MoveSession reassigns laps that do not collide with laps already in the target session
	MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error)
}

// ResultRepository defines the interface for provisional and official result data access
type ResultRepository interface {
	UpsertProvisional(ctx context.Context, result *models.Result) error
	ListProvisional(ctx context.Context, sessionID uuid.UUID) ([]*models.Result, error)
	// PruneProvisional deletes the provisional rows of drivers not in keep
	PruneProvisional(ctx context.Context, sessionID uuid.UUID, keep []uuid.UUID) (int64, error)
	ListOfficial(ctx context.Context, sessionID uuid.UUID, version int) ([]*models.Result, error)
	MaxOfficialVersion(ctx context.Context, sessionID uuid.UUID) (int, error)
	InsertBatch(ctx context.Context, results []*models.Result) error
	// BestProvisionalLap returns the fastest provisional best lap across all
	// sessions of the given type within a class, or nil when none exist
	BestProvisionalLap(ctx context.Context, classID uuid.UUID, sessionType models.SessionType) (*int64, error)
	MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error)
}

// PenaltyRepository defines the interface for penalty data access
type PenaltyRepository interface {
	Create(ctx context.Context, penalty *models.Penalty) error
	// ListBySession returns penalties in the order they were recorded
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Penalty, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error)
}

// PointRepository defines the interface for point scheme data access
type PointRepository interface {
	GetSchemeByName(ctx context.Context, name string) (*models.PointScheme, error)
	CreateScheme(ctx context.Context, scheme *models.PointScheme, scales []models.PointScale) error
	// GetScale returns the position to points table for one award type
	GetScale(ctx context.Context, schemeID uuid.UUID, awardType models.AwardType) (map[int]int, error)
}

// PointAwardRepository defines the interface for point award data access
type PointAwardRepository interface {
	InsertBatch(ctx context.Context, awards []*models.PointAward) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, basis models.ResultBasis, version int) ([]*models.PointAward, error)
	MoveSession(ctx context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error)
}
