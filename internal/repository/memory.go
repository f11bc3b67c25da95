package repository

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/yourusername/kart-timing/internal/models"
)

// memoryData is one consistent snapshot of the in-memory store
type memoryData struct {
	events    map[uuid.UUID]models.Event
	classes   map[uuid.UUID]models.RaceClass
	sessions  map[uuid.UUID]models.Session
	drivers   map[uuid.UUID]models.Driver
	entries   map[uuid.UUID]models.Entry
	laps      map[uuid.UUID]models.Lap
	results   map[uuid.UUID]models.Result
	penalties map[uuid.UUID]models.Penalty
	schemes   map[uuid.UUID]models.PointScheme
	scales    []models.PointScale
	awards    map[uuid.UUID]models.PointAward

	// seq records insertion order for stable listings
	seq  map[uuid.UUID]int64
	next int64
}

func newMemoryData() *memoryData {
	return &memoryData{
		events:    make(map[uuid.UUID]models.Event),
		classes:   make(map[uuid.UUID]models.RaceClass),
		sessions:  make(map[uuid.UUID]models.Session),
		drivers:   make(map[uuid.UUID]models.Driver),
		entries:   make(map[uuid.UUID]models.Entry),
		laps:      make(map[uuid.UUID]models.Lap),
		results:   make(map[uuid.UUID]models.Result),
		penalties: make(map[uuid.UUID]models.Penalty),
		schemes:   make(map[uuid.UUID]models.PointScheme),
		awards:    make(map[uuid.UUID]models.PointAward),
		seq:       make(map[uuid.UUID]int64),
	}
}

func (d *memoryData) clone() *memoryData {
	return &memoryData{
		events:    maps.Clone(d.events),
		classes:   maps.Clone(d.classes),
		sessions:  maps.Clone(d.sessions),
		drivers:   maps.Clone(d.drivers),
		entries:   maps.Clone(d.entries),
		laps:      maps.Clone(d.laps),
		results:   maps.Clone(d.results),
		penalties: maps.Clone(d.penalties),
		schemes:   maps.Clone(d.schemes),
		scales:    slices.Clone(d.scales),
		awards:    maps.Clone(d.awards),
		seq:       maps.Clone(d.seq),
		next:      d.next,
	}
}

// track assigns an ID if missing and records insertion order
func (d *memoryData) track(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	d.next++
	d.seq[*id] = d.next
}

// sortedValues returns map values ordered by insertion
func sortedValues[T any](d *memoryData, m map[uuid.UUID]T, keep func(T) bool) []T {
	ids := make([]uuid.UUID, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return cmp.Compare(d.seq[a], d.seq[b]) })
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

func (d *memoryData) deleteSession(id uuid.UUID) {
	delete(d.sessions, id)
	for k, v := range d.laps {
		if v.SessionID == id {
			delete(d.laps, k)
		}
	}
	for k, v := range d.results {
		if v.SessionID == id {
			delete(d.results, k)
		}
	}
	for k, v := range d.penalties {
		if v.SessionID == id {
			delete(d.penalties, k)
		}
	}
	for k, v := range d.awards {
		if v.SessionID == id {
			delete(d.awards, k)
		}
	}
}

func (d *memoryData) deleteClass(id uuid.UUID) {
	delete(d.classes, id)
	for k, v := range d.sessions {
		if v.ClassID == id {
			d.deleteSession(k)
		}
	}
	for k, v := range d.entries {
		if v.ClassID == id {
			delete(d.entries, k)
		}
	}
}

func duplicate(what string) error {
	return fmt.Errorf("failed to %s: %w", what, models.ErrDuplicateKey)
}

type memoryStore struct {
	mu    sync.Mutex
	data  *memoryData
	clock clockwork.Clock
}

// memoryScope binds repositories to either the committed store or a
// transaction's private working copy
type memoryScope struct {
	store *memoryStore
	work  *memoryData
}

func (s *memoryScope) view(fn func(d *memoryData) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return fn(s.store.data)
}

func (s *memoryScope) begin(ctx context.Context, fn func(*Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.work != nil {
		work := s.work.clone()
		if err := fn(newScopedRepositories(&memoryScope{store: s.store, work: work})); err != nil {
			return err
		}
		*s.work = *work
		return nil
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	work := s.store.data.clone()
	if err := fn(newScopedRepositories(&memoryScope{store: s.store, work: work})); err != nil {
		return err
	}
	s.store.data = work
	return nil
}

// NewMemoryRepositories creates repositories backed by process memory.
// Transactions operate on a private copy that replaces the store on commit;
// they are serialized against each other.
func NewMemoryRepositories(clock clockwork.Clock) *Repositories {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	store := &memoryStore{data: newMemoryData(), clock: clock}
	return newScopedRepositories(&memoryScope{store: store})
}

func newScopedRepositories(s *memoryScope) *Repositories {
	repos := &Repositories{
		Events:      &memoryEventRepository{s},
		Classes:     &memoryClassRepository{s},
		Sessions:    &memorySessionRepository{s},
		Drivers:     &memoryDriverRepository{s},
		Entries:     &memoryEntryRepository{s},
		Laps:        &memoryLapRepository{s},
		Results:     &memoryResultRepository{s},
		Penalties:   &memoryPenaltyRepository{s},
		Points:      &memoryPointRepository{s},
		PointAwards: &memoryPointAwardRepository{s},
	}
	repos.begin = s.begin
	return repos
}
