package service

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
	"github.com/yourusername/kart-timing/internal/timing"
)

const defaultCacheTTL = 30 * time.Minute

// anchor is the event or class the ingestor last wrote to, used to tell a
// late-revealed name for the same row apart from a genuinely new one
type anchor struct {
	id          uuid.UUID
	name        string
	placeholder bool
	session     string
}

// Ingestor writes live timing state to durable storage. Apply must be called
// from the goroutine that owns the live state.
type Ingestor struct {
	repos      *repository.Repositories
	resolver   *EntityResolver
	normalizer *DataNormalizer
	validator  *DataValidator
	cache      *ResolutionCache
	notifier   notify.Notifier
	audit      *logger.AuditLogger
	clock      clockwork.Clock
	log        *logrus.Entry
	stats      *IngestionMetrics

	event anchor
	class anchor
}

// IngestorOption configures an Ingestor
type IngestorOption func(*Ingestor)

// WithNotifier sets where session status changes are announced
func WithNotifier(n notify.Notifier) IngestorOption {
	return func(i *Ingestor) { i.notifier = n }
}

// WithClock sets the clock used for timestamps
func WithClock(clock clockwork.Clock) IngestorOption {
	return func(i *Ingestor) { i.clock = clock }
}

// WithCacheTTL sets how long resolved rows stay cached
func WithCacheTTL(ttl time.Duration) IngestorOption {
	return func(i *Ingestor) { i.cache = NewResolutionCache(ttl) }
}

// NewIngestor creates an ingestor writing through repos
func NewIngestor(repos *repository.Repositories, log *logrus.Logger, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		repos:      repos,
		normalizer: NewDataNormalizer(),
		validator:  NewDataValidator(),
		cache:      NewResolutionCache(defaultCacheTTL),
		notifier:   notify.Noop{},
		audit:      logger.NewAuditLogger(log),
		clock:      clockwork.NewRealClock(),
		log:        log.WithField("component", "ingestor"),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.resolver = NewEntityResolver(i.normalizer, i.audit, i.clock)
	i.stats = NewIngestionMetrics(i.clock.Now())
	return i
}

// Stats returns the ingestion counters
func (i *Ingestor) Stats() *IngestionMetrics {
	return i.stats
}

// Resolver returns the entity resolver the ingestor writes through
func (i *Ingestor) Resolver() *EntityResolver {
	return i.resolver
}

type applyOutcome struct {
	event    anchor
	class    anchor
	session  *models.Session
	finished bool
	laps     int
	skipped  int
	merges   int
}

// Apply writes the live state as one unit of work. It is idempotent: applying
// the same state twice leaves storage unchanged the second time.
func (i *Ingestor) Apply(ctx context.Context, state *timing.LiveState) error {
	if !i.validator.IsValidSessionName(state.SessionName) {
		return nil
	}

	start := i.clock.Now()
	staged := i.cache.stage()

	var out applyOutcome
	err := i.repos.InTx(ctx, func(tx *repository.Repositories) error {
		var err error
		out, err = i.apply(ctx, tx, state, staged, start)
		return err
	})
	if err != nil {
		i.stats.RecordError()
		metrics.RecordIngestError()
		return fmt.Errorf("failed to apply live state for session %q: %w", state.SessionName, err)
	}

	staged.commit()
	i.event, i.class = out.event, out.class

	elapsed := i.clock.Since(start)
	i.stats.RecordApply(elapsed, out.skipped, out.laps, out.merges, out.finished)
	metrics.RecordSnapshotApplied(elapsed, len(state.Karts))
	metrics.RecordLapsPersisted(out.laps)

	if out.finished {
		i.announceProvisional(ctx, out.session, start)
	}
	return nil
}

func (i *Ingestor) apply(ctx context.Context, tx *repository.Repositories, state *timing.LiveState, staged *stagedCache, now time.Time) (applyOutcome, error) {
	var out applyOutcome

	event, eventAnchor, merged, err := i.resolveEvent(ctx, tx, state, now)
	if err != nil {
		return out, err
	}
	out.event = eventAnchor
	if merged {
		out.merges++
	}

	class, classAnchor, merged, err := i.resolveClass(ctx, tx, event, state)
	if err != nil {
		return out, err
	}
	out.class = classAnchor
	if merged {
		out.merges++
	}
	if out.merges > 0 {
		staged.invalidate()
	}

	session, err := i.resolver.ResolveSession(ctx, tx, event.ID, class.ID, i.normalizer.SessionName(state.SessionName), state.SessionType)
	if err != nil {
		return out, err
	}
	out.session = session

	karts := make([]*timing.Kart, 0, len(state.Karts))
	for _, k := range state.Standings() {
		if problems := i.validator.ValidateKart(k); len(problems) > 0 {
			out.skipped++
			i.log.WithFields(logrus.Fields{
				"number":   k.Number,
				"problems": problems,
			}).Debug("Skipping kart")
			continue
		}
		karts = append(karts, k)
	}

	ref, err := i.gapReference(ctx, tx, class.ID, state.SessionType, karts)
	if err != nil {
		return out, err
	}

	bound := make([]uuid.UUID, 0, len(karts))
	for idx, k := range karts {
		driverID, err := i.driverID(ctx, tx, staged, k.Driver)
		if err != nil {
			return out, err
		}
		bound = append(bound, driverID)
		if err := i.entry(ctx, tx, staged, event.ID, class.ID, driverID, k.Number); err != nil {
			return out, err
		}

		written, err := i.persistLaps(ctx, tx, staged, session.ID, driverID, k)
		if err != nil {
			return out, err
		}
		out.laps += written

		if err := tx.Results.UpsertProvisional(ctx, provisionalResult(session.ID, driverID, idx+1, k, ref)); err != nil {
			return out, fmt.Errorf("failed to upsert provisional result for kart %s: %w", k.Number, err)
		}
	}

	// a renamed or re-registered kart leaves its old driver's row behind
	if len(bound) > 0 {
		pruned, err := tx.Results.PruneProvisional(ctx, session.ID, bound)
		if err != nil {
			return out, fmt.Errorf("failed to prune provisional results: %w", err)
		}
		if pruned > 0 {
			i.log.WithFields(logrus.Fields{
				"session_id": session.ID,
				"pruned":     pruned,
			}).Debug("Dropped provisional rows of unbound drivers")
		}
	}

	if state.Checkered() && session.Status == models.SessionStatusLive {
		session.Status = models.SessionStatusProvisional
		if session.EndedAt == nil {
			session.EndedAt = &now
		}
		if err := tx.Sessions.Update(ctx, session); err != nil {
			return out, fmt.Errorf("failed to mark session provisional: %w", err)
		}
		out.finished = true
	}

	return out, nil
}

// follow keeps the session an anchor was established in while it still names the same row
func (a anchor) follow(next anchor) anchor {
	if a.id == next.id && a.name == next.name {
		next.session = a.session
	}
	return next
}

// renamable reports whether the anchored row may take name. A row may be
// renamed while it holds a placeholder or while the session that named it is running.
func (a anchor) renamable(name, session string) bool {
	return a.id != uuid.Nil && a.name != name && (a.placeholder || a.session == session)
}

// resolveEvent resolves the event for state, renaming the anchored event when allowed
func (i *Ingestor) resolveEvent(ctx context.Context, tx *repository.Repositories, state *timing.LiveState, now time.Time) (*models.Event, anchor, bool, error) {
	name, placeholder := i.normalizer.EventName(state.EventName, state.TrackName, now)
	next := anchor{name: name, placeholder: placeholder, session: state.SessionName}

	var (
		event  *models.Event
		merged bool
	)
	if cur := i.event; cur.renamable(name, state.SessionName) {
		existing, err := tx.Events.GetByID(ctx, cur.id)
		switch {
		case err == nil:
			event, merged, err = i.resolver.RenameEvent(ctx, tx, existing, name)
			if err != nil {
				return nil, anchor{}, false, err
			}
		case !errors.Is(err, models.ErrNotFound):
			return nil, anchor{}, false, fmt.Errorf("failed to load event %s: %w", cur.id, err)
		}
	}

	if event == nil {
		var err error
		if event, err = i.resolver.ResolveEvent(ctx, tx, name); err != nil {
			return nil, anchor{}, false, err
		}
	}
	if state.TrackName != "" && event.Location != state.TrackName {
		event.Location = state.TrackName
		if err := tx.Events.Update(ctx, event); err != nil {
			return nil, anchor{}, false, fmt.Errorf("failed to update event location: %w", err)
		}
	}

	next.id = event.ID
	return event, i.event.follow(next), merged, nil
}

// resolveClass applies the same rename rule as resolveEvent, scoped to the event
func (i *Ingestor) resolveClass(ctx context.Context, tx *repository.Repositories, event *models.Event, state *timing.LiveState) (*models.RaceClass, anchor, bool, error) {
	name, placeholder := i.normalizer.ClassNameOrPlaceholder(state.ClassName)
	next := anchor{name: name, placeholder: placeholder, session: state.SessionName}

	var (
		class  *models.RaceClass
		merged bool
	)
	if cur := i.class; cur.renamable(name, state.SessionName) {
		existing, err := tx.Classes.GetByID(ctx, cur.id)
		switch {
		case err == nil && existing.EventID == event.ID:
			class, merged, err = i.resolver.RenameClass(ctx, tx, existing, name)
			if err != nil {
				return nil, anchor{}, false, err
			}
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return nil, anchor{}, false, fmt.Errorf("failed to load class %s: %w", cur.id, err)
		}
	}

	if class == nil {
		var err error
		if class, err = i.resolver.ResolveClass(ctx, tx, event.ID, name); err != nil {
			return nil, anchor{}, false, err
		}
	}

	next.id = class.ID
	return class, i.class.follow(next), merged, nil
}

func (i *Ingestor) driverID(ctx context.Context, tx *repository.Repositories, staged *stagedCache, d timing.Driver) (uuid.UUID, error) {
	key := driverKey(i.normalizer.DriverName(d.First), i.normalizer.DriverName(d.Last))
	if v, ok := staged.get(key); ok {
		if cached, ok := v.(models.Driver); ok && !refreshDriver(&cached, d) {
			return cached.ID, nil
		}
	}

	driver, err := i.resolver.ResolveDriver(ctx, tx, d)
	if err != nil {
		return uuid.Nil, err
	}
	staged.set(key, *driver)
	return driver.ID, nil
}

func (i *Ingestor) entry(ctx context.Context, tx *repository.Repositories, staged *stagedCache, eventID, classID, driverID uuid.UUID, number string) error {
	key := entryKey(eventID, classID, number)
	if v, ok := staged.get(key); ok && v == driverID {
		return nil
	}

	if _, err := i.resolver.ResolveEntry(ctx, tx, eventID, classID, driverID, number); err != nil {
		return err
	}

	// the driver's previous number no longer maps to them
	byDriver := entryDriverKey(eventID, classID, driverID)
	if v, ok := staged.get(byDriver); ok && v != number {
		staged.delete(entryKey(eventID, classID, v.(string)))
	}
	staged.set(key, driverID)
	staged.set(byDriver, number)
	return nil
}

// persistLaps writes every lap between the last persisted one and the kart's
// lap count, once the latest lap has an accepted duration
func (i *Ingestor) persistLaps(ctx context.Context, tx *repository.Repositories, staged *stagedCache, sessionID, driverID uuid.UUID, k *timing.Kart) (int, error) {
	key := lapKey(sessionID, driverID)
	persisted, ok := staged.getInt(key)
	if !ok {
		var err error
		persisted, err = tx.Laps.MaxLapNumber(ctx, sessionID, driverID)
		if err != nil {
			return 0, fmt.Errorf("failed to read persisted laps: %w", err)
		}
		staged.set(key, persisted)
	}

	if k.Laps <= persisted || k.LastLapOf != k.Laps || k.LastLap <= 0 {
		return 0, nil
	}

	duration := k.LastLap.Milliseconds()
	laps := make([]*models.Lap, 0, k.Laps-persisted)
	for n := persisted + 1; n <= k.Laps; n++ {
		laps = append(laps, &models.Lap{
			ID:         uuid.New(),
			SessionID:  sessionID,
			DriverID:   driverID,
			LapNumber:  n,
			DurationMs: duration,
			Valid:      true,
		})
	}
	if err := tx.Laps.InsertBatch(ctx, laps); err != nil {
		return 0, fmt.Errorf("failed to insert laps for kart %s: %w", k.Number, err)
	}
	staged.set(key, k.Laps)
	return len(laps), nil
}

// gapReference returns the lap the gap column is measured against, or 0 for none.
// Qualifying measures against the class-wide best, practice against the session best.
func (i *Ingestor) gapReference(ctx context.Context, tx *repository.Repositories, classID uuid.UUID, sessionType models.SessionType, karts []*timing.Kart) (int64, error) {
	var ref int64
	for _, k := range karts {
		if best := k.BestLap.Milliseconds(); best > 0 && (ref == 0 || best < ref) {
			ref = best
		}
	}

	switch sessionType {
	case models.SessionTypePractice:
		return ref, nil
	case models.SessionTypeQualifying:
		classBest, err := tx.Results.BestProvisionalLap(ctx, classID, models.SessionTypeQualifying)
		if err != nil {
			return 0, fmt.Errorf("failed to read class best lap: %w", err)
		}
		if classBest != nil && (ref == 0 || *classBest < ref) {
			ref = *classBest
		}
		return ref, nil
	default:
		return 0, nil
	}
}

func provisionalResult(sessionID, driverID uuid.UUID, position int, k *timing.Kart, ref int64) *models.Result {
	result := &models.Result{
		ID:        uuid.New(),
		SessionID: sessionID,
		DriverID:  driverID,
		Position:  &position,
		Status:    models.ResultStatusFromCode(k.Status),
		Basis:     models.BasisProvisional,
		Version:   models.ProvisionalVersion,
	}
	if k.BestLap > 0 {
		best := k.BestLap.Milliseconds()
		result.BestLapMs = &best
		if ref > 0 {
			gap := best - ref
			result.GapToLeaderMs = &gap
		}
	}
	if k.LastLap > 0 {
		last := k.LastLap.Milliseconds()
		result.LastLapMs = &last
	}
	if k.HasCrossing {
		total := k.Elapsed.Milliseconds()
		result.TotalTimeMs = &total
	}
	return result
}

func (i *Ingestor) announceProvisional(ctx context.Context, session *models.Session, at time.Time) {
	i.audit.LogSessionStatusChange(session.ID.String(), session.Name,
		string(models.SessionStatusLive), string(models.SessionStatusProvisional))

	ev := notify.SessionEvent{SessionID: session.ID, Status: models.SessionStatusProvisional, At: at}
	if err := i.notifier.Notify(ctx, ev); err != nil {
		i.log.WithError(err).WithField("session_id", session.ID).Warn("Failed to announce provisional session")
	}
}
