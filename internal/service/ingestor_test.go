package service

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kart-timing/internal/models"
	"github.com/yourusername/kart-timing/internal/notify"
	"github.com/yourusername/kart-timing/internal/repository"
	"github.com/yourusername/kart-timing/internal/timing"
)

type ingestFixture struct {
	repos    *repository.Repositories
	clock    *clockwork.FakeClock
	recorder *notify.Recorder
	ingestor *Ingestor
	pipeline *LivePipeline
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	repos := repository.NewMemoryRepositories(clock)
	recorder := &notify.Recorder{}

	ingestor := NewIngestor(repos, log, WithClock(clock), WithNotifier(recorder))
	parser := timing.NewParser(timing.DefaultConfig(), clock, nil)

	return &ingestFixture{
		repos:    repos,
		clock:    clock,
		recorder: recorder,
		ingestor: ingestor,
		pipeline: NewLivePipeline(parser, ingestor, log),
	}
}

func (f *ingestFixture) feed(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		f.pipeline.HandleLine(t.Context(), line)
	}
}

func (f *ingestFixture) session(t *testing.T, eventName, className, sessionName string) *models.Session {
	t.Helper()
	ctx := t.Context()

	event, err := f.repos.Events.GetByName(ctx, eventName)
	require.NoError(t, err, "event %q", eventName)
	class, err := f.repos.Classes.GetByName(ctx, event.ID, className)
	require.NoError(t, err, "class %q", className)
	session, err := f.repos.Sessions.GetByName(ctx, event.ID, class.ID, sessionName)
	require.NoError(t, err, "session %q", sessionName)
	return session
}

func (f *ingestFixture) driver(t *testing.T, first, last string) *models.Driver {
	t.Helper()
	d, err := f.repos.Drivers.GetByName(t.Context(), first, last)
	require.NoError(t, err)
	return d
}

func TestIngestorPersistsDerivedLap(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Senior Rotax Group 2"`,
		`$E,"TRACKNAME","Speedway"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK","Team A"`,
		`$G,1,"12",5,"00:03:10.500"`,
		`$G,1,"12",6,"00:03:40.700"`,
	)

	session := f.session(t, "Speedway 2026-10-16", "Senior Rotax", "Heat 1")
	assert.Equal(t, models.SessionTypeHeat, session.SessionType)
	assert.Equal(t, models.SessionStatusLive, session.Status)

	ana := f.driver(t, "Ana", "Silva")
	assert.Equal(t, "Team A", ana.Team)
	assert.Equal(t, "OTK", ana.Chassis)

	laps, err := f.repos.Laps.ListBySessionDriver(ctx, session.ID, ana.ID)
	require.NoError(t, err)
	require.Len(t, laps, 6)
	for i, lap := range laps {
		assert.Equal(t, i+1, lap.LapNumber)
		assert.True(t, lap.Valid)
	}
	assert.Equal(t, int64(30200), laps[5].DurationMs)

	results, err := f.repos.Results.ListProvisional(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	require.NotNil(t, r.Position)
	assert.Equal(t, 1, *r.Position)
	assert.Equal(t, int64(30200), *r.LastLapMs)
	assert.Equal(t, int64(30200), *r.BestLapMs)
	assert.Equal(t, int64(220700), *r.TotalTimeMs)
	assert.Nil(t, r.GapToLeaderMs, "races carry no gap")
	assert.Equal(t, models.ResultStatusOK, r.Status)

	entry, err := f.repos.Entries.GetByNumber(ctx, session.EventID, session.ClassID, "12")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, entry.DriverID)

	event, err := f.repos.Events.GetByID(ctx, session.EventID)
	require.NoError(t, err)
	assert.Equal(t, "Speedway", event.Location)

	_, err = f.repos.Events.GetByName(ctx, "Auto Event 2026-10-16")
	assert.ErrorIs(t, err, models.ErrNotFound, "placeholder event should have been renamed")
	_, err = f.repos.Classes.GetByName(ctx, session.EventID, "Unknown Class")
	assert.ErrorIs(t, err, models.ErrNotFound, "placeholder class should have been renamed")
}

func TestIngestorIsIdempotent(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$G,1,"12",1,"00:00:45.000"`,
		`$G,1,"12",2,"00:01:31.000"`,
	)

	state := f.pipeline.State()
	require.NoError(t, f.ingestor.Apply(ctx, state))
	f.ingestor.cache.Clear()
	require.NoError(t, f.ingestor.Apply(ctx, state))

	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Heat 1")
	ana := f.driver(t, "Ana", "Silva")

	laps, err := f.repos.Laps.ListBySessionDriver(ctx, session.ID, ana.ID)
	require.NoError(t, err)
	assert.Len(t, laps, 2)

	results, err := f.repos.Results.ListProvisional(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIngestorRetriesLapAfterImplausibleDuration(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$G,1,"12",1,"00:00:45.000"`,
		`$G,1,"12",2,"00:00:50.000"`,
	)

	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Heat 1")
	ana := f.driver(t, "Ana", "Silva")

	laps, err := f.repos.Laps.ListBySessionDriver(ctx, session.ID, ana.ID)
	require.NoError(t, err)
	assert.Empty(t, laps, "a 5s lap must not be persisted")

	f.feed(t, `$G,1,"12",3,"00:01:36.000"`)

	laps, err = f.repos.Laps.ListBySessionDriver(ctx, session.ID, ana.ID)
	require.NoError(t, err)
	require.Len(t, laps, 3)
	assert.Equal(t, 3, laps[2].LapNumber)
	assert.Equal(t, int64(46000), laps[2].DurationMs)
}

func TestIngestorSkipsNamelessKarts(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Practice 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$H,1,"7",3,"00:00:45.100"`,
		`$H,2,"12",3,"00:00:46.000"`,
	)

	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Practice 1")
	results, err := f.repos.Results.ListProvisional(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, f.driver(t, "Ana", "Silva").ID, r.DriverID)
	assert.Equal(t, 1, *r.Position)
	require.NotNil(t, r.GapToLeaderMs)
	assert.Equal(t, int64(0), *r.GapToLeaderMs)

	assert.Positive(t, f.ingestor.Stats().KartsSkipped)
	assert.Zero(t, f.ingestor.Stats().Errors)
}

func TestIngestorPracticeGapToSessionBest(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Practice 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$COMP,"33",0,0,"Ben","Okafor","KR",""`,
		`$H,2,"33",3,"00:00:46.000"`,
		`$H,1,"12",3,"00:00:45.100"`,
	)

	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Practice 1")
	results, err := f.repos.Results.ListProvisional(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, f.driver(t, "Ana", "Silva").ID, results[0].DriverID)
	assert.Equal(t, int64(0), *results[0].GapToLeaderMs)
	assert.Equal(t, f.driver(t, "Ben", "Okafor").ID, results[1].DriverID)
	assert.Equal(t, 2, *results[1].Position)
	assert.Equal(t, int64(900), *results[1].GapToLeaderMs)
}

func TestIngestorQualifyingGapToClassBest(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Qualifying 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$H,1,"12",2,"00:00:45.000"`,

		`$B,2,"Qualifying 2"`,
		`$COMP,"33",0,0,"Ben","Okafor","KR",""`,
		`$H,1,"33",2,"00:00:46.000"`,
	)

	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Qualifying 2")
	assert.Equal(t, models.SessionTypeQualifying, session.SessionType)

	results, err := f.repos.Results.ListProvisional(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].GapToLeaderMs)
	assert.Equal(t, int64(1000), *results[0].GapToLeaderMs)
}

func TestIngestorCheckeredMarksProvisional(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$G,1,"12",1,"00:00:45.000"`,
		`$F,0,"00:00:00","12:00:00","00:10:00","Green"`,
	)
	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Heat 1")
	assert.Equal(t, models.SessionStatusLive, session.Status)
	assert.Empty(t, f.recorder.Events())

	f.clock.Advance(10 * time.Minute)
	f.feed(t, `$F,0,"00:00:00","12:10:00","00:10:00","Finish"`)

	session, err := f.repos.Sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProvisional, session.Status)
	require.NotNil(t, session.EndedAt)
	assert.True(t, session.EndedAt.Equal(f.clock.Now()))

	events := f.recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, session.ID, events[0].SessionID)
	assert.Equal(t, models.SessionStatusProvisional, events[0].Status)

	// a repeated flag does not transition again
	f.feed(t, `$F,0,"00:00:00","12:10:05","00:10:05","Finish"`)
	assert.Len(t, f.recorder.Events(), 1)
	assert.Equal(t, 1, f.ingestor.Stats().StatusTransitions)
}

func TestIngestorNeverRegressesOfficialSession(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
	)
	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Heat 1")
	session.Status = models.SessionStatusOfficial
	require.NoError(t, f.repos.Sessions.Update(ctx, session))

	f.feed(t, `$F,0,"00:00:00","12:10:00","00:10:00","Checkered"`)

	session, err := f.repos.Sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusOfficial, session.Status)
	assert.Empty(t, f.recorder.Events())
}

func TestIngestorRenamesEventWithinSession(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$E,"MEETING","Spring Cup"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$E,"MEETING","Spring Cup Round 2"`,
	)

	_, err := f.repos.Events.GetByName(ctx, "Spring Cup")
	assert.ErrorIs(t, err, models.ErrNotFound)
	f.session(t, "Spring Cup Round 2", "Junior", "Heat 1")

	// once another session is running a new name is a new event
	f.feed(t,
		`$B,2,"Heat 2"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$E,"MEETING","Autumn Cup"`,
	)

	f.session(t, "Spring Cup Round 2", "Junior", "Heat 1")
	f.session(t, "Autumn Cup", "Junior", "Heat 2")
}

func TestIngestorMergesPlaceholderIntoExistingEvent(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	existing := &models.Event{Name: "Spring Cup"}
	require.NoError(t, f.repos.Events.Create(ctx, existing))

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$E,"TRACK","Speedway"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$G,1,"12",1,"00:00:45.000"`,
		`$E,"MEETING","Spring Cup"`,
	)

	_, err := f.repos.Events.GetByName(ctx, "Speedway 2026-10-16")
	assert.ErrorIs(t, err, models.ErrNotFound)

	session := f.session(t, "Spring Cup", "Junior", "Heat 1")
	assert.Equal(t, existing.ID, session.EventID)

	results, err := f.repos.Results.ListProvisional(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, f.ingestor.Stats().Merges)
}

func TestIngestorStripsGroupTokensFromClass(t *testing.T) {
	f := newIngestFixture(t)

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Senior Rotax Group A"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,

		`$B,2,"Heat 2"`,
		`$C,1,"Senior Rotax Grp B"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
	)

	heat1 := f.session(t, "Auto Event 2026-10-16", "Senior Rotax", "Heat 1")
	heat2 := f.session(t, "Auto Event 2026-10-16", "Senior Rotax", "Heat 2")
	assert.Equal(t, heat1.ClassID, heat2.ClassID)
}

func TestIngestorRenumberedDriverKeepsOneEntry(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,

		`$B,2,"Heat 2"`,
		`$COMP,"21",0,0,"Ana","Silva","OTK",""`,
	)

	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Heat 2")
	entries, err := f.repos.Entries.ListByClass(ctx, session.ClassID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "21", entries[0].Number)
	assert.Equal(t, f.driver(t, "Ana", "Silva").ID, entries[0].DriverID)
}

func TestIngestorDropsRowOfRenamedDriver(t *testing.T) {
	f := newIngestFixture(t)
	ctx := t.Context()

	f.feed(t,
		`$B,1,"Heat 1"`,
		`$C,1,"Junior"`,
		`$COMP,"12",0,0,"Ana","Silva","OTK",""`,
		`$COMP,"7",0,0,"Bo","Berg","OTK",""`,
		`$G,1,"12",1,"00:00:45.000"`,
		`$G,2,"7",1,"00:00:45.400"`,

		`$COMP,"12",0,0,"Anna","Silva","OTK",""`,
		`$G,1,"12",2,"00:01:30.000"`,
	)

	session := f.session(t, "Auto Event 2026-10-16", "Junior", "Heat 1")
	results, err := f.repos.Results.ListProvisional(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, results, 2, "one row per kart")

	drivers := []uuid.UUID{results[0].DriverID, results[1].DriverID}
	assert.Contains(t, drivers, f.driver(t, "Anna", "Silva").ID)
	assert.Contains(t, drivers, f.driver(t, "Bo", "Berg").ID)
	assert.NotContains(t, drivers, f.driver(t, "Ana", "Silva").ID)
}
