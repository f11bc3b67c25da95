package official

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/kart-timing/internal/logger"
	"github.com/yourusername/kart-timing/internal/metrics"
	"github.com/yourusername/kart-timing/internal/models"
	"github.com/yourusername/kart-timing/internal/notify"
	"github.com/yourusername/kart-timing/internal/repository"
)

// Engine computes and publishes official results
type Engine struct {
	repos     *repository.Repositories
	notifier  notify.Notifier
	audit     *logger.AuditLogger
	clock     clockwork.Clock
	logger    *logrus.Entry
	fieldSize int
}

// Option configures an Engine
type Option func(*Engine)

// WithNotifier sets where publications are announced
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock sets the clock used to stamp session end times
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithFieldSize sets how many positions a lazily seeded scheme covers
func WithFieldSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fieldSize = n
		}
	}
}

// NewEngine creates a new official results engine
func NewEngine(repos *repository.Repositories, log *logrus.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logrus.New()
	}
	e := &Engine{
		repos:     repos,
		notifier:  notify.Noop{},
		audit:     logger.NewAuditLogger(log),
		clock:     clockwork.NewRealClock(),
		logger:    log.WithField("component", "official"),
		fieldSize: DefaultFieldSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Publication summarizes one official publish
type Publication struct {
	SessionID uuid.UUID            `json:"session_id"`
	Version   int                  `json:"version"`
	Standings []*Standing          `json:"standings"`
	AwardType models.AwardType     `json:"award_type,omitempty"`
	Awards    []*models.PointAward `json:"awards,omitempty"`
}

// ComputeOfficialOrder returns the penalty-adjusted ranking for a session without persisting it
func (e *Engine) ComputeOfficialOrder(ctx context.Context, sessionID uuid.UUID) ([]*Standing, error) {
	session, err := e.repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, sessionErr(sessionID, err)
	}
	standings, _, err := e.project(ctx, e.repos, session)
	return standings, err
}

// project reads the latest provisional snapshot and penalties through repos and ranks them
func (e *Engine) project(ctx context.Context, repos *repository.Repositories, session *models.Session) ([]*Standing, []AppliedPenalty, error) {
	provisional, err := repos.Results.ListProvisional(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load provisional results: %w", err)
	}
	if len(provisional) == 0 {
		return nil, nil, nil
	}

	penalties, err := repos.Penalties.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load penalties: %w", err)
	}

	in := Input{
		SessionType: session.SessionType,
		Provisional: provisional,
		Penalties:   penalties,
	}
	for _, p := range penalties {
		if p.Type != models.PenaltyLapInvalid {
			continue
		}
		if in.Laps == nil {
			in.Laps = make(map[uuid.UUID][]*models.Lap)
		}
		if _, ok := in.Laps[p.DriverID]; ok {
			continue
		}
		laps, err := repos.Laps.ListBySessionDriver(ctx, session.ID, p.DriverID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load laps for driver %s: %w", p.DriverID, err)
		}
		in.Laps[p.DriverID] = laps
	}

	standings, applied := ComputeOrder(in)
	return standings, applied, nil
}

// Publish writes the next official version of a session and its point awards
// as one unit of work, then marks the session official.
func (e *Engine) Publish(ctx context.Context, sessionID uuid.UUID, schemeName string) (*Publication, error) {
	start := e.clock.Now()
	if schemeName == "" {
		schemeName = DefaultSchemeName
	}

	var (
		pub       *Publication
		applied   []AppliedPenalty
		session   *models.Session
		oldStatus models.SessionStatus
	)
	err := e.repos.InTx(ctx, func(tx *repository.Repositories) error {
		var err error
		session, err = tx.Sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return sessionErr(sessionID, err)
		}
		oldStatus = session.Status

		var standings []*Standing
		standings, applied, err = e.project(ctx, tx, session)
		if err != nil {
			return err
		}

		latest, err := tx.Results.MaxOfficialVersion(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to read official version: %w", err)
		}
		pub = &Publication{SessionID: sessionID, Version: latest + 1, Standings: standings}

		if len(standings) > 0 {
			if err := tx.Results.InsertBatch(ctx, officialRows(sessionID, pub.Version, standings)); err != nil {
				return fmt.Errorf("failed to write official results: %w", err)
			}
		}

		session.Status = models.SessionStatusOfficial
		if session.EndedAt == nil {
			session.EndedAt = &start
		}
		if err := tx.Sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("failed to mark session official: %w", err)
		}

		pub.AwardType = session.AwardType()
		if pub.AwardType == "" {
			return nil
		}
		pub.Awards, err = e.award(ctx, tx, pub, schemeName)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.announce(ctx, session, oldStatus, pub, applied, schemeName, e.clock.Since(start))
	return pub, nil
}

// award writes one point award per standing at the publication's version
func (e *Engine) award(ctx context.Context, tx *repository.Repositories, pub *Publication, schemeName string) ([]*models.PointAward, error) {
	scale, err := e.scale(ctx, tx, schemeName, pub.AwardType)
	if err != nil {
		return nil, err
	}

	awards := make([]*models.PointAward, 0, len(pub.Standings))
	for _, s := range pub.Standings {
		points := 0
		if s.Position != nil && s.Status != models.ResultStatusDQ {
			points = scale[*s.Position]
		}
		awards = append(awards, &models.PointAward{
			ID:          uuid.New(),
			SessionID:   pub.SessionID,
			DriverID:    s.DriverID,
			Basis:       models.BasisOfficial,
			Version:     pub.Version,
			AwardType:   pub.AwardType,
			Position:    copyPtr(s.Position),
			BasePoints:  points,
			TotalPoints: points,
		})
	}
	if len(awards) == 0 {
		return nil, nil
	}
	if err := tx.PointAwards.InsertBatch(ctx, awards); err != nil {
		return nil, fmt.Errorf("failed to write point awards: %w", err)
	}
	return awards, nil
}

// scale returns the position to points table, seeding the default scheme when
// none exists. A scheme that still cannot be found scores every position zero.
func (e *Engine) scale(ctx context.Context, tx *repository.Repositories, schemeName string, awardType models.AwardType) (map[int]int, error) {
	scheme, err := tx.Points.GetSchemeByName(ctx, schemeName)
	if errors.Is(err, models.ErrNotFound) {
		e.seedDefault(ctx, tx)
		scheme, err = tx.Points.GetSchemeByName(ctx, schemeName)
	}
	if errors.Is(err, models.ErrNotFound) {
		e.logger.WithError(fmt.Errorf("%w: %s", models.ErrSchemeNotFound, schemeName)).
			WithField("award_type", awardType).
			Warn("Point scheme missing, awarding zero points")
		return map[int]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load point scheme %q: %w", schemeName, err)
	}

	scale, err := tx.Points.GetScale(ctx, scheme.ID, awardType)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s scale of %q: %w", awardType, schemeName, err)
	}
	return scale, nil
}

// seedDefault creates the default scheme in a nested unit of work so a failed
// seed leaves the publish intact
func (e *Engine) seedDefault(ctx context.Context, tx *repository.Repositories) {
	scheme, scales := DefaultScheme(e.fieldSize)
	err := tx.InTx(ctx, func(nested *repository.Repositories) error {
		return nested.Points.CreateScheme(ctx, scheme, scales)
	})
	if err != nil {
		e.logger.WithError(err).WithField("scheme", scheme.Name).Warn("Failed to seed default point scheme")
		return
	}
	e.audit.LogPointSchemeSeeded(scheme.Name, e.fieldSize)
}

func (e *Engine) announce(ctx context.Context, session *models.Session, oldStatus models.SessionStatus, pub *Publication, applied []AppliedPenalty, schemeName string, elapsed time.Duration) {
	sessionID := pub.SessionID.String()
	for _, a := range applied {
		e.audit.LogPenaltyApplied(sessionID, a.Penalty.DriverID.String(), string(a.Penalty.Type), a.Value)
	}
	if oldStatus != models.SessionStatusOfficial {
		e.audit.LogSessionStatusChange(sessionID, session.Name, string(oldStatus), string(models.SessionStatusOfficial))
	}
	e.audit.LogOfficialPublish(sessionID, pub.Version, len(pub.Standings), len(pub.Awards), schemeName)
	metrics.RecordOfficialPublish(string(session.SessionType), string(pub.AwardType), len(pub.Awards), elapsed)

	ev := notify.SessionEvent{
		SessionID: pub.SessionID,
		Status:    models.SessionStatusOfficial,
		Version:   pub.Version,
		At:        e.clock.Now(),
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to announce official results")
	}
}

func officialRows(sessionID uuid.UUID, version int, standings []*Standing) []*models.Result {
	rows := make([]*models.Result, 0, len(standings))
	for _, s := range standings {
		rows = append(rows, &models.Result{
			ID:            uuid.New(),
			SessionID:     sessionID,
			DriverID:      s.DriverID,
			Position:      copyPtr(s.Position),
			BestLapMs:     copyPtr(s.BestLapMs),
			LastLapMs:     copyPtr(s.LastLapMs),
			TotalTimeMs:   copyPtr(s.TotalTimeMs),
			GapToLeaderMs: copyPtr(s.GapToLeaderMs),
			Status:        s.Status,
			Basis:         models.BasisOfficial,
			Version:       version,
		})
	}
	return rows
}

func sessionErr(id uuid.UUID, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return fmt.Errorf("failed to load session %s: %w", id, err)
}
