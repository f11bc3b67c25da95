package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/yourusername/kart-timing/internal/logger"
	"github.com/yourusername/kart-timing/internal/metrics"
	"github.com/yourusername/kart-timing/internal/models"
	"github.com/yourusername/kart-timing/internal/repository"
	"github.com/yourusername/kart-timing/internal/timing"
)

// EntityResolver maps natural keys onto durable rows, creating rows that do not
// exist yet and merging duplicates. Every method runs inside the caller's unit of work.
type EntityResolver struct {
	normalizer *DataNormalizer
	audit      *logger.AuditLogger
	clock      clockwork.Clock
}

// NewEntityResolver creates a resolver. A nil clock uses the real clock.
func NewEntityResolver(normalizer *DataNormalizer, audit *logger.AuditLogger, clock clockwork.Clock) *EntityResolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EntityResolver{normalizer: normalizer, audit: audit, clock: clock}
}

// ResolveEvent returns the event called name, creating it when absent
func (r *EntityResolver) ResolveEvent(ctx context.Context, repos *repository.Repositories, name string) (*models.Event, error) {
	event, err := repos.Events.GetByName(ctx, name)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up event %q: %w", name, err)
	}

	today := r.clock.Now().UTC().Truncate(24 * time.Hour)
	event = &models.Event{ID: uuid.New(), Name: name, StartDate: &today}
	if err := repos.Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event %q: %w", name, err)
	}
	return event, nil
}

// RenameEvent gives event its newly revealed name. When another row already
// carries that name, event is merged into it and the surviving row is returned.
func (r *EntityResolver) RenameEvent(ctx context.Context, repos *repository.Repositories, event *models.Event, name string) (*models.Event, bool, error) {
	existing, err := repos.Events.GetByName(ctx, name)
	switch {
	case err == nil && existing.ID != event.ID:
		if err := r.MergeEvent(ctx, repos, event, existing); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up event %q: %w", name, err)
	}

	event.Name = name
	if err := repos.Events.Update(ctx, event); err != nil {
		return nil, false, fmt.Errorf("failed to rename event %s: %w", event.ID, err)
	}
	return event, false, nil
}

// MergeEvent moves every class of from into into, merging same-named classes, then deletes from
func (r *EntityResolver) MergeEvent(ctx context.Context, repos *repository.Repositories, from, into *models.Event) error {
	classes, err := repos.Classes.ListByEvent(ctx, from.ID)
	if err != nil {
		return fmt.Errorf("failed to list classes of event %s: %w", from.ID, err)
	}

	for _, class := range classes {
		existing, err := repos.Classes.GetByName(ctx, into.ID, class.Name)
		switch {
		case err == nil:
			if err := r.MergeClass(ctx, repos, class, existing); err != nil {
				return err
			}
		case errors.Is(err, models.ErrNotFound):
			if err := r.moveClass(ctx, repos, class, into.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("failed to look up class %q: %w", class.Name, err)
		}
	}

	if err := repos.Events.Delete(ctx, from.ID); err != nil {
		return fmt.Errorf("failed to delete merged event %s: %w", from.ID, err)
	}
	r.recordMerge("event", from.ID, into.ID, into.Name)
	return nil
}

// moveClass re-parents a class, its sessions and its entries onto another event
func (r *EntityResolver) moveClass(ctx context.Context, repos *repository.Repositories, class *models.RaceClass, eventID uuid.UUID) error {
	class.EventID = eventID
	if err := repos.Classes.Update(ctx, class); err != nil {
		return fmt.Errorf("failed to move class %s: %w", class.ID, err)
	}

	sessions, err := repos.Sessions.ListByClass(ctx, class.ID)
	if err != nil {
		return fmt.Errorf("failed to list sessions of class %s: %w", class.ID, err)
	}
	for _, s := range sessions {
		s.EventID = eventID
		if err := repos.Sessions.Update(ctx, s); err != nil {
			return fmt.Errorf("failed to move session %s: %w", s.ID, err)
		}
	}

	entries, err := repos.Entries.ListByClass(ctx, class.ID)
	if err != nil {
		return fmt.Errorf("failed to list entries of class %s: %w", class.ID, err)
	}
	for _, e := range entries {
		e.EventID = eventID
		if err := repos.Entries.Update(ctx, e); err != nil {
			return fmt.Errorf("failed to move entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// ResolveClass returns the class called name within an event, creating it when absent
func (r *EntityResolver) ResolveClass(ctx context.Context, repos *repository.Repositories, eventID uuid.UUID, name string) (*models.RaceClass, error) {
	class, err := repos.Classes.GetByName(ctx, eventID, name)
	if err == nil {
		return class, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up class %q: %w", name, err)
	}

	class = &models.RaceClass{ID: uuid.New(), EventID: eventID, Name: name}
	if err := repos.Classes.Create(ctx, class); err != nil {
		return nil, fmt.Errorf("failed to create class %q: %w", name, err)
	}
	return class, nil
}

// RenameClass gives class its newly revealed name, merging into a same-named class of the event
func (r *EntityResolver) RenameClass(ctx context.Context, repos *repository.Repositories, class *models.RaceClass, name string) (*models.RaceClass, bool, error) {
	existing, err := repos.Classes.GetByName(ctx, class.EventID, name)
	switch {
	case err == nil && existing.ID != class.ID:
		if err := r.MergeClass(ctx, repos, class, existing); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up class %q: %w", name, err)
	}

	class.Name = name
	if err := repos.Classes.Update(ctx, class); err != nil {
		return nil, false, fmt.Errorf("failed to rename class %s: %w", class.ID, err)
	}
	return class, false, nil
}

// MergeClass moves the sessions and entries of from into into, then deletes from.
// Sessions that collide by name are merged; entries that collide by number or driver are dropped.
func (r *EntityResolver) MergeClass(ctx context.Context, repos *repository.Repositories, from, into *models.RaceClass) error {
	sessions, err := repos.Sessions.ListByClass(ctx, from.ID)
	if err != nil {
		return fmt.Errorf("failed to list sessions of class %s: %w", from.ID, err)
	}
	for _, s := range sessions {
		existing, err := repos.Sessions.GetByName(ctx, into.EventID, into.ID, s.Name)
		switch {
		case err == nil:
			if err := r.MergeSession(ctx, repos, s, existing); err != nil {
				return err
			}
		case errors.Is(err, models.ErrNotFound):
			s.EventID, s.ClassID = into.EventID, into.ID
			if err := repos.Sessions.Update(ctx, s); err != nil {
				return fmt.Errorf("failed to move session %s: %w", s.ID, err)
			}
		default:
			return fmt.Errorf("failed to look up session %q: %w", s.Name, err)
		}
	}

	entries, err := repos.Entries.ListByClass(ctx, from.ID)
	if err != nil {
		return fmt.Errorf("failed to list entries of class %s: %w", from.ID, err)
	}
	for _, e := range entries {
		conflict, err := r.entryExists(ctx, repos, into, e)
		if err != nil {
			return err
		}
		if conflict {
			if err := repos.Entries.Delete(ctx, e.ID); err != nil {
				return fmt.Errorf("failed to delete duplicate entry %s: %w", e.ID, err)
			}
			continue
		}
		e.EventID, e.ClassID = into.EventID, into.ID
		if err := repos.Entries.Update(ctx, e); err != nil {
			return fmt.Errorf("failed to move entry %s: %w", e.ID, err)
		}
	}

	if err := repos.Classes.Delete(ctx, from.ID); err != nil {
		return fmt.Errorf("failed to delete merged class %s: %w", from.ID, err)
	}
	r.recordMerge("class", from.ID, into.ID, into.Name)
	return nil
}

func (r *EntityResolver) entryExists(ctx context.Context, repos *repository.Repositories, class *models.RaceClass, e *models.Entry) (bool, error) {
	_, err := repos.Entries.GetByNumber(ctx, class.EventID, class.ID, e.Number)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("failed to look up entry %q: %w", e.Number, err)
	}
	_, err = repos.Entries.GetByDriver(ctx, class.EventID, class.ID, e.DriverID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("failed to look up entry for driver %s: %w", e.DriverID, err)
	}
	return false, nil
}

// ResolveSession returns the session by (event, class, name), creating it live when absent.
// A changed session type is written back.
func (r *EntityResolver) ResolveSession(ctx context.Context, repos *repository.Repositories, eventID, classID uuid.UUID, name string, sessionType models.SessionType) (*models.Session, error) {
	session, err := repos.Sessions.GetByName(ctx, eventID, classID, name)
	if err == nil {
		if session.SessionType != sessionType {
			session.SessionType = sessionType
			if err := repos.Sessions.Update(ctx, session); err != nil {
				return nil, fmt.Errorf("failed to update session type: %w", err)
			}
		}
		return session, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up session %q: %w", name, err)
	}

	now := r.clock.Now()
	session = &models.Session{
		ID:          uuid.New(),
		EventID:     eventID,
		ClassID:     classID,
		Name:        name,
		SessionType: sessionType,
		Status:      models.SessionStatusLive,
		StartedAt:   &now,
	}
	if err := repos.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session %q: %w", name, err)
	}
	return session, nil
}

// MergeSession moves laps, results, penalties and awards of from into into, then deletes from.
// Rows that collide with rows already in into are dropped with from.
func (r *EntityResolver) MergeSession(ctx context.Context, repos *repository.Repositories, from, into *models.Session) error {
	if _, err := repos.Laps.MoveSession(ctx, from.ID, into.ID); err != nil {
		return fmt.Errorf("failed to move laps: %w", err)
	}
	if _, err := repos.Results.MoveSession(ctx, from.ID, into.ID); err != nil {
		return fmt.Errorf("failed to move results: %w", err)
	}
	if _, err := repos.Penalties.MoveSession(ctx, from.ID, into.ID); err != nil {
		return fmt.Errorf("failed to move penalties: %w", err)
	}
	if _, err := repos.PointAwards.MoveSession(ctx, from.ID, into.ID); err != nil {
		return fmt.Errorf("failed to move point awards: %w", err)
	}

	if from.StartedAt != nil && (into.StartedAt == nil || from.StartedAt.Before(*into.StartedAt)) {
		into.StartedAt = from.StartedAt
		if err := repos.Sessions.Update(ctx, into); err != nil {
			return fmt.Errorf("failed to update merged session %s: %w", into.ID, err)
		}
	}

	if err := repos.Sessions.Delete(ctx, from.ID); err != nil {
		return fmt.Errorf("failed to delete merged session %s: %w", from.ID, err)
	}
	r.recordMerge("session", from.ID, into.ID, into.Name)
	return nil
}

// ResolveDriver returns the driver keyed by first and last name, refreshing
// metadata from any non-empty values the feed now reports
func (r *EntityResolver) ResolveDriver(ctx context.Context, repos *repository.Repositories, d timing.Driver) (*models.Driver, error) {
	first, last := r.normalizer.DriverName(d.First), r.normalizer.DriverName(d.Last)

	driver, err := repos.Drivers.GetByName(ctx, first, last)
	if errors.Is(err, models.ErrNotFound) {
		driver = &models.Driver{
			ID:          uuid.New(),
			FirstName:   first,
			LastName:    last,
			Team:        d.Team,
			Chassis:     d.Chassis,
			Transponder: d.Transponder,
		}
		if err := repos.Drivers.Create(ctx, driver); err != nil {
			return nil, fmt.Errorf("failed to create driver %q: %w", driver.FullName(), err)
		}
		return driver, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up driver: %w", err)
	}

	if refreshDriver(driver, d) {
		if err := repos.Drivers.Update(ctx, driver); err != nil {
			return nil, fmt.Errorf("failed to update driver %s: %w", driver.ID, err)
		}
	}
	return driver, nil
}

// refreshDriver copies non-empty metadata onto driver and reports whether anything changed
func refreshDriver(driver *models.Driver, d timing.Driver) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&driver.Team, d.Team)
	set(&driver.Chassis, d.Chassis)
	set(&driver.Transponder, d.Transponder)
	return changed
}

// ResolveEntry binds driver to number within an event class. The row found by
// number wins and takes the driver; a second row held by the driver is removed.
func (r *EntityResolver) ResolveEntry(ctx context.Context, repos *repository.Repositories, eventID, classID, driverID uuid.UUID, number string) (*models.Entry, error) {
	byNumber, err := repos.Entries.GetByNumber(ctx, eventID, classID, number)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up entry %q: %w", number, err)
	}
	byDriver, err := repos.Entries.GetByDriver(ctx, eventID, classID, driverID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up entry for driver %s: %w", driverID, err)
	}

	switch {
	case byNumber == nil && byDriver == nil:
		entry := &models.Entry{ID: uuid.New(), EventID: eventID, ClassID: classID, DriverID: driverID, Number: number}
		if err := repos.Entries.Create(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to create entry %q: %w", number, err)
		}
		return entry, nil

	case byNumber == nil:
		byDriver.Number = number
		if err := repos.Entries.Update(ctx, byDriver); err != nil {
			return nil, fmt.Errorf("failed to renumber entry %s: %w", byDriver.ID, err)
		}
		return byDriver, nil

	case byNumber.DriverID == driverID:
		return byNumber, nil
	}

	if byDriver != nil {
		if err := repos.Entries.Delete(ctx, byDriver.ID); err != nil {
			return nil, fmt.Errorf("failed to delete duplicate entry %s: %w", byDriver.ID, err)
		}
	}
	byNumber.DriverID = driverID
	if err := repos.Entries.Update(ctx, byNumber); err != nil {
		return nil, fmt.Errorf("failed to reassign entry %s: %w", byNumber.ID, err)
	}
	return byNumber, nil
}

func (r *EntityResolver) recordMerge(kind string, from, into uuid.UUID, name string) {
	metrics.RecordEntityMerge(kind)
	if r.audit != nil {
		r.audit.LogEntityMerge(kind, from.String(), into.String(), name)
	}
}
