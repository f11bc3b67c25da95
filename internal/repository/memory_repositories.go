package repository

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/yourusername/kart-timing/internal/models"
)

type memoryEventRepository struct{ s *memoryScope }

func (r *memoryEventRepository) Create(_ context.Context, event *models.Event) error {
	return r.s.view(func(d *memoryData) error {
		d.track(&event.ID)
		now := r.s.store.clock.Now()
		event.CreatedAt, event.UpdatedAt = now, now
		d.events[event.ID] = *event
		return nil
	})
}

func (r *memoryEventRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	var out *models.Event
	err := r.s.view(func(d *memoryData) error {
		e, ok := d.events[id]
		if !ok {
			return models.ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *memoryEventRepository) GetByName(_ context.Context, name string) (*models.Event, error) {
	var out *models.Event
	err := r.s.view(func(d *memoryData) error {
		found := sortedValues(d, d.events, func(e models.Event) bool { return e.Name == name })
		if len(found) == 0 {
			return models.ErrNotFound
		}
		out = &found[0]
		return nil
	})
	return out, err
}

func (r *memoryEventRepository) Update(_ context.Context, event *models.Event) error {
	return r.s.view(func(d *memoryData) error {
		if _, ok := d.events[event.ID]; !ok {
			return models.ErrNotFound
		}
		event.UpdatedAt = r.s.store.clock.Now()
		d.events[event.ID] = *event
		return nil
	})
}

func (r *memoryEventRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.s.view(func(d *memoryData) error {
		delete(d.events, id)
		for k, c := range d.classes {
			if c.EventID == id {
				d.deleteClass(k)
			}
		}
		return nil
	})
}

type memoryClassRepository struct{ s *memoryScope }

func (r *memoryClassRepository) Create(_ context.Context, class *models.RaceClass) error {
	return r.s.view(func(d *memoryData) error {
		for _, c := range d.classes {
			if c.EventID == class.EventID && c.Name == class.Name {
				return duplicate("create class")
			}
		}
		d.track(&class.ID)
		class.CreatedAt = r.s.store.clock.Now()
		d.classes[class.ID] = *class
		return nil
	})
}

func (r *memoryClassRepository) GetByID(_ context.Context, id uuid.UUID) (*models.RaceClass, error) {
	var out *models.RaceClass
	err := r.s.view(func(d *memoryData) error {
		c, ok := d.classes[id]
		if !ok {
			return models.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *memoryClassRepository) GetByName(_ context.Context, eventID uuid.UUID, name string) (*models.RaceClass, error) {
	var out *models.RaceClass
	err := r.s.view(func(d *memoryData) error {
		for _, c := range d.classes {
			if c.EventID == eventID && c.Name == name {
				out = &c
				return nil
			}
		}
		return models.ErrNotFound
	})
	return out, err
}

func (r *memoryClassRepository) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*models.RaceClass, error) {
	var out []*models.RaceClass
	err := r.s.view(func(d *memoryData) error {
		for _, c := range sortedValues(d, d.classes, func(c models.RaceClass) bool { return c.EventID == eventID }) {
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

func (r *memoryClassRepository) Update(_ context.Context, class *models.RaceClass) error {
	return r.s.view(func(d *memoryData) error {
		if _, ok := d.classes[class.ID]; !ok {
			return models.ErrNotFound
		}
		for id, c := range d.classes {
			if id != class.ID && c.EventID == class.EventID && c.Name == class.Name {
				return duplicate("update class")
			}
		}
		d.classes[class.ID] = *class
		return nil
	})
}

func (r *memoryClassRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.s.view(func(d *memoryData) error {
		d.deleteClass(id)
		return nil
	})
}

type memorySessionRepository struct{ s *memoryScope }

func (r *memorySessionRepository) Create(_ context.Context, session *models.Session) error {
	return r.s.view(func(d *memoryData) error {
		for _, s := range d.sessions {
			if s.EventID == session.EventID && s.ClassID == session.ClassID && s.Name == session.Name {
				return duplicate("create session")
			}
		}
		if session.Status == "" {
			session.Status = models.SessionStatusLive
		}
		d.track(&session.ID)
		now := r.s.store.clock.Now()
		session.CreatedAt, session.UpdatedAt = now, now
		d.sessions[session.ID] = *session
		return nil
	})
}

func (r *memorySessionRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	var out *models.Session
	err := r.s.view(func(d *memoryData) error {
		s, ok := d.sessions[id]
		if !ok {
			return models.ErrNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock; transactions are already serialized
func (r *memorySessionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return r.GetByID(ctx, id)
}

func (r *memorySessionRepository) GetByName(_ context.Context, eventID, classID uuid.UUID, name string) (*models.Session, error) {
	var out *models.Session
	err := r.s.view(func(d *memoryData) error {
		for _, s := range d.sessions {
			if s.EventID == eventID && s.ClassID == classID && s.Name == name {
				out = &s
				return nil
			}
		}
		return models.ErrNotFound
	})
	return out, err
}

func (r *memorySessionRepository) ListByClass(_ context.Context, classID uuid.UUID) ([]*models.Session, error) {
	var out []*models.Session
	err := r.s.view(func(d *memoryData) error {
		for _, s := range sortedValues(d, d.sessions, func(s models.Session) bool { return s.ClassID == classID }) {
			out = append(out, &s)
		}
		return nil
	})
	return out, err
}

func (r *memorySessionRepository) Update(_ context.Context, session *models.Session) error {
	return r.s.view(func(d *memoryData) error {
		if _, ok := d.sessions[session.ID]; !ok {
			return models.ErrNotFound
		}
		for id, s := range d.sessions {
			if id != session.ID && s.EventID == session.EventID && s.ClassID == session.ClassID && s.Name == session.Name {
				return duplicate("update session")
			}
		}
		session.UpdatedAt = r.s.store.clock.Now()
		d.sessions[session.ID] = *session
		return nil
	})
}

func (r *memorySessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.s.view(func(d *memoryData) error {
		d.deleteSession(id)
		return nil
	})
}

type memoryDriverRepository struct{ s *memoryScope }

func (r *memoryDriverRepository) Create(_ context.Context, driver *models.Driver) error {
	return r.s.view(func(d *memoryData) error {
		for _, x := range d.drivers {
			if x.FirstName == driver.FirstName && x.LastName == driver.LastName {
				return duplicate("create driver")
			}
		}
		d.track(&driver.ID)
		now := r.s.store.clock.Now()
		driver.CreatedAt, driver.UpdatedAt = now, now
		d.drivers[driver.ID] = *driver
		return nil
	})
}

func (r *memoryDriverRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Driver, error) {
	var out *models.Driver
	err := r.s.view(func(d *memoryData) error {
		x, ok := d.drivers[id]
		if !ok {
			return models.ErrNotFound
		}
		out = &x
		return nil
	})
	return out, err
}

func (r *memoryDriverRepository) GetByName(_ context.Context, firstName, lastName string) (*models.Driver, error) {
	var out *models.Driver
	err := r.s.view(func(d *memoryData) error {
		for _, x := range d.drivers {
			if x.FirstName == firstName && x.LastName == lastName {
				out = &x
				return nil
			}
		}
		return models.ErrNotFound
	})
	return out, err
}

func (r *memoryDriverRepository) Update(_ context.Context, driver *models.Driver) error {
	return r.s.view(func(d *memoryData) error {
		if _, ok := d.drivers[driver.ID]; !ok {
			return models.ErrNotFound
		}
		driver.UpdatedAt = r.s.store.clock.Now()
		d.drivers[driver.ID] = *driver
		return nil
	})
}

type memoryEntryRepository struct{ s *memoryScope }

func entryConflict(d *memoryData, e *models.Entry) bool {
	for id, x := range d.entries {
		if id == e.ID || x.EventID != e.EventID || x.ClassID != e.ClassID {
			continue
		}
		if x.Number == e.Number || x.DriverID == e.DriverID {
			return true
		}
	}
	return false
}

func (r *memoryEntryRepository) Create(_ context.Context, entry *models.Entry) error {
	return r.s.view(func(d *memoryData) error {
		if entryConflict(d, entry) {
			return duplicate("create entry")
		}
		d.track(&entry.ID)
		entry.CreatedAt = r.s.store.clock.Now()
		d.entries[entry.ID] = *entry
		return nil
	})
}

func (r *memoryEntryRepository) find(match func(models.Entry) bool) (*models.Entry, error) {
	var out *models.Entry
	err := r.s.view(func(d *memoryData) error {
		for _, e := range d.entries {
			if match(e) {
				out = &e
				return nil
			}
		}
		return models.ErrNotFound
	})
	return out, err
}

func (r *memoryEntryRepository) GetByNumber(_ context.Context, eventID, classID uuid.UUID, number string) (*models.Entry, error) {
	return r.find(func(e models.Entry) bool {
		return e.EventID == eventID && e.ClassID == classID && e.Number == number
	})
}

func (r *memoryEntryRepository) GetByDriver(_ context.Context, eventID, classID, driverID uuid.UUID) (*models.Entry, error) {
	return r.find(func(e models.Entry) bool {
		return e.EventID == eventID && e.ClassID == classID && e.DriverID == driverID
	})
}

func (r *memoryEntryRepository) ListByClass(_ context.Context, classID uuid.UUID) ([]*models.Entry, error) {
	var out []*models.Entry
	err := r.s.view(func(d *memoryData) error {
		for _, e := range sortedValues(d, d.entries, func(e models.Entry) bool { return e.ClassID == classID }) {
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func (r *memoryEntryRepository) Update(_ context.Context, entry *models.Entry) error {
	return r.s.view(func(d *memoryData) error {
		if _, ok := d.entries[entry.ID]; !ok {
			return models.ErrNotFound
		}
		if entryConflict(d, entry) {
			return duplicate("update entry")
		}
		d.entries[entry.ID] = *entry
		return nil
	})
}

func (r *memoryEntryRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.s.view(func(d *memoryData) error {
		delete(d.entries, id)
		return nil
	})
}

type memoryLapRepository struct{ s *memoryScope }

func (r *memoryLapRepository) InsertBatch(_ context.Context, laps []*models.Lap) error {
	return r.s.view(func(d *memoryData) error {
		for _, lap := range laps {
			for _, x := range d.laps {
				if x.SessionID == lap.SessionID && x.DriverID == lap.DriverID && x.LapNumber == lap.LapNumber {
					return duplicate("batch insert laps")
				}
			}
			d.track(&lap.ID)
			if lap.CreatedAt.IsZero() {
				lap.CreatedAt = r.s.store.clock.Now()
			}
			d.laps[lap.ID] = *lap
		}
		return nil
	})
}

func (r *memoryLapRepository) MaxLapNumber(_ context.Context, sessionID, driverID uuid.UUID) (int, error) {
	max := 0
	err := r.s.view(func(d *memoryData) error {
		for _, x := range d.laps {
			if x.SessionID == sessionID && x.DriverID == driverID && x.LapNumber > max {
				max = x.LapNumber
			}
		}
		return nil
	})
	return max, err
}

func (r *memoryLapRepository) list(keep func(models.Lap) bool) ([]*models.Lap, error) {
	var out []*models.Lap
	err := r.s.view(func(d *memoryData) error {
		for _, x := range d.laps {
			if keep(x) {
				out = append(out, &x)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.Lap) int {
		if c := cmp.Compare(a.DriverID.String(), b.DriverID.String()); c != 0 {
			return c
		}
		return cmp.Compare(a.LapNumber, b.LapNumber)
	})
	return out, err
}

func (r *memoryLapRepository) ListBySessionDriver(_ context.Context, sessionID, driverID uuid.UUID) ([]*models.Lap, error) {
	return r.list(func(x models.Lap) bool { return x.SessionID == sessionID && x.DriverID == driverID })
}

func (r *memoryLapRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*models.Lap, error) {
	return r.list(func(x models.Lap) bool { return x.SessionID == sessionID })
}

func (r *memoryLapRepository) MoveSession(_ context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	var moved int64
	err := r.s.view(func(d *memoryData) error {
		taken := make(map[uuid.UUID]map[int]bool)
		for _, x := range d.laps {
			if x.SessionID == toSessionID {
				if taken[x.DriverID] == nil {
					taken[x.DriverID] = make(map[int]bool)
				}
				taken[x.DriverID][x.LapNumber] = true
			}
		}
		for id, x := range d.laps {
			if x.SessionID == fromSessionID && !taken[x.DriverID][x.LapNumber] {
				x.SessionID = toSessionID
				d.laps[id] = x
				moved++
			}
		}
		return nil
	})
	return moved, err
}

type memoryResultRepository struct{ s *memoryScope }

func minPtr(a, b *int64) *int64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b < *a:
		return b
	default:
		return a
	}
}

func (r *memoryResultRepository) UpsertProvisional(_ context.Context, result *models.Result) error {
	return r.s.view(func(d *memoryData) error {
		result.Basis = models.BasisProvisional
		result.Version = models.ProvisionalVersion
		now := r.s.store.clock.Now()
		for id, x := range d.results {
			if x.SessionID != result.SessionID || x.DriverID != result.DriverID || x.Basis != models.BasisProvisional {
				continue
			}
			x.Position = result.Position
			x.BestLapMs = minPtr(x.BestLapMs, result.BestLapMs)
			x.LastLapMs = cmp.Or(result.LastLapMs, x.LastLapMs)
			x.TotalTimeMs = cmp.Or(result.TotalTimeMs, x.TotalTimeMs)
			x.GapToLeaderMs = result.GapToLeaderMs
			x.Status = result.Status
			x.UpdatedAt = now
			d.results[id] = x
			*result = x
			return nil
		}
		d.track(&result.ID)
		result.CreatedAt, result.UpdatedAt = now, now
		d.results[result.ID] = *result
		return nil
	})
}

func (r *memoryResultRepository) list(keep func(models.Result) bool) ([]*models.Result, error) {
	var out []*models.Result
	err := r.s.view(func(d *memoryData) error {
		for _, x := range d.results {
			if keep(x) {
				out = append(out, &x)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *models.Result) int {
		switch {
		case a.Position != nil && b.Position == nil:
			return -1
		case a.Position == nil && b.Position != nil:
			return 1
		case a.Position != nil && *a.Position != *b.Position:
			return cmp.Compare(*a.Position, *b.Position)
		}
		if c := cmp.Compare(a.Status, b.Status); c != 0 {
			return c
		}
		return cmp.Compare(a.DriverID.String(), b.DriverID.String())
	})
	return out, err
}

func (r *memoryResultRepository) ListProvisional(_ context.Context, sessionID uuid.UUID) ([]*models.Result, error) {
	return r.list(func(x models.Result) bool {
		return x.SessionID == sessionID && x.Basis == models.BasisProvisional
	})
}

func (r *memoryResultRepository) PruneProvisional(_ context.Context, sessionID uuid.UUID, keep []uuid.UUID) (int64, error) {
	var pruned int64
	err := r.s.view(func(d *memoryData) error {
		for id, x := range d.results {
			if x.SessionID == sessionID && x.Basis == models.BasisProvisional && !slices.Contains(keep, x.DriverID) {
				delete(d.results, id)
				pruned++
			}
		}
		return nil
	})
	return pruned, err
}

func (r *memoryResultRepository) ListOfficial(_ context.Context, sessionID uuid.UUID, version int) ([]*models.Result, error) {
	return r.list(func(x models.Result) bool {
		return x.SessionID == sessionID && x.Basis == models.BasisOfficial && x.Version == version
	})
}

func (r *memoryResultRepository) MaxOfficialVersion(_ context.Context, sessionID uuid.UUID) (int, error) {
	max := 0
	err := r.s.view(func(d *memoryData) error {
		for _, x := range d.results {
			if x.SessionID == sessionID && x.Basis == models.BasisOfficial && x.Version > max {
				max = x.Version
			}
		}
		return nil
	})
	return max, err
}

func (r *memoryResultRepository) InsertBatch(_ context.Context, results []*models.Result) error {
	return r.s.view(func(d *memoryData) error {
		now := r.s.store.clock.Now()
		for _, res := range results {
			for _, x := range d.results {
				if x.SessionID == res.SessionID && x.DriverID == res.DriverID && x.Basis == res.Basis && x.Version == res.Version {
					return duplicate("batch insert results")
				}
			}
			d.track(&res.ID)
			res.CreatedAt, res.UpdatedAt = now, now
			d.results[res.ID] = *res
		}
		return nil
	})
}

func (r *memoryResultRepository) BestProvisionalLap(_ context.Context, classID uuid.UUID, sessionType models.SessionType) (*int64, error) {
	var best *int64
	err := r.s.view(func(d *memoryData) error {
		for _, x := range d.results {
			s, ok := d.sessions[x.SessionID]
			if !ok || s.ClassID != classID || s.SessionType != sessionType || x.Basis != models.BasisProvisional {
				continue
			}
			best = minPtr(best, x.BestLapMs)
		}
		return nil
	})
	return best, err
}

func (r *memoryResultRepository) MoveSession(_ context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	var moved int64
	err := r.s.view(func(d *memoryData) error {
		type key struct {
			driver  uuid.UUID
			basis   models.ResultBasis
			version int
		}
		taken := make(map[key]bool)
		for _, x := range d.results {
			if x.SessionID == toSessionID {
				taken[key{x.DriverID, x.Basis, x.Version}] = true
			}
		}
		for id, x := range d.results {
			if x.SessionID == fromSessionID && !taken[key{x.DriverID, x.Basis, x.Version}] {
				x.SessionID = toSessionID
				d.results[id] = x
				moved++
			}
		}
		return nil
	})
	return moved, err
}

type memoryPenaltyRepository struct{ s *memoryScope }

func (r *memoryPenaltyRepository) Create(_ context.Context, penalty *models.Penalty) error {
	return r.s.view(func(d *memoryData) error {
		d.track(&penalty.ID)
		if penalty.CreatedAt.IsZero() {
			penalty.CreatedAt = r.s.store.clock.Now()
		}
		d.penalties[penalty.ID] = *penalty
		return nil
	})
}

func (r *memoryPenaltyRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*models.Penalty, error) {
	var out []*models.Penalty
	err := r.s.view(func(d *memoryData) error {
		found := sortedValues(d, d.penalties, func(p models.Penalty) bool { return p.SessionID == sessionID })
		slices.SortStableFunc(found, func(a, b models.Penalty) int { return a.CreatedAt.Compare(b.CreatedAt) })
		for _, p := range found {
			out = append(out, &p)
		}
		return nil
	})
	return out, err
}

func (r *memoryPenaltyRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.s.view(func(d *memoryData) error {
		if _, ok := d.penalties[id]; !ok {
			return models.ErrNotFound
		}
		delete(d.penalties, id)
		return nil
	})
}

func (r *memoryPenaltyRepository) MoveSession(_ context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	var moved int64
	err := r.s.view(func(d *memoryData) error {
		for id, p := range d.penalties {
			if p.SessionID == fromSessionID {
				p.SessionID = toSessionID
				d.penalties[id] = p
				moved++
			}
		}
		return nil
	})
	return moved, err
}

type memoryPointRepository struct{ s *memoryScope }

func (r *memoryPointRepository) GetSchemeByName(_ context.Context, name string) (*models.PointScheme, error) {
	var out *models.PointScheme
	err := r.s.view(func(d *memoryData) error {
		for _, s := range d.schemes {
			if s.Name == name {
				out = &s
				return nil
			}
		}
		return models.ErrNotFound
	})
	return out, err
}

func (r *memoryPointRepository) CreateScheme(_ context.Context, scheme *models.PointScheme, scales []models.PointScale) error {
	return r.s.view(func(d *memoryData) error {
		for _, s := range d.schemes {
			if s.Name == scheme.Name {
				return duplicate("create point scheme")
			}
		}
		d.track(&scheme.ID)
		scheme.CreatedAt = r.s.store.clock.Now()
		d.schemes[scheme.ID] = *scheme
		for _, sc := range scales {
			sc.SchemeID = scheme.ID
			d.scales = append(d.scales, sc)
		}
		return nil
	})
}

func (r *memoryPointRepository) GetScale(_ context.Context, schemeID uuid.UUID, awardType models.AwardType) (map[int]int, error) {
	scale := make(map[int]int)
	err := r.s.view(func(d *memoryData) error {
		for _, sc := range d.scales {
			if sc.SchemeID == schemeID && sc.AwardType == awardType {
				scale[sc.Position] = sc.Points
			}
		}
		return nil
	})
	return scale, err
}

type memoryPointAwardRepository struct{ s *memoryScope }

func (r *memoryPointAwardRepository) InsertBatch(_ context.Context, awards []*models.PointAward) error {
	return r.s.view(func(d *memoryData) error {
		now := r.s.store.clock.Now()
		for _, a := range awards {
			for _, x := range d.awards {
				if x.SessionID == a.SessionID && x.DriverID == a.DriverID && x.Basis == a.Basis && x.Version == a.Version {
					return duplicate("batch insert point awards")
				}
			}
			d.track(&a.ID)
			a.CreatedAt = now
			d.awards[a.ID] = *a
		}
		return nil
	})
}

func (r *memoryPointAwardRepository) ListBySession(_ context.Context, sessionID uuid.UUID, basis models.ResultBasis, version int) ([]*models.PointAward, error) {
	var out []*models.PointAward
	err := r.s.view(func(d *memoryData) error {
		for _, a := range sortedValues(d, d.awards, func(a models.PointAward) bool {
			return a.SessionID == sessionID && a.Basis == basis && a.Version == version
		}) {
			out = append(out, &a)
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b *models.PointAward) int {
		switch {
		case a.Position == nil && b.Position == nil:
			return 0
		case a.Position == nil:
			return 1
		case b.Position == nil:
			return -1
		}
		return cmp.Compare(*a.Position, *b.Position)
	})
	return out, err
}

func (r *memoryPointAwardRepository) MoveSession(_ context.Context, fromSessionID, toSessionID uuid.UUID) (int64, error) {
	var moved int64
	err := r.s.view(func(d *memoryData) error {
		type key struct {
			driver  uuid.UUID
			basis   models.ResultBasis
			version int
		}
		taken := make(map[key]bool)
		for _, a := range d.awards {
			if a.SessionID == toSessionID {
				taken[key{a.DriverID, a.Basis, a.Version}] = true
			}
		}
		for id, a := range d.awards {
			if a.SessionID == fromSessionID && !taken[key{a.DriverID, a.Basis, a.Version}] {
				a.SessionID = toSessionID
				d.awards[id] = a
				moved++
			}
		}
		return nil
	})
	return moved, err
}
