package official

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kart-timing/internal/models"
	"github.com/yourusername/kart-timing/internal/notify"
	"github.com/yourusername/kart-timing/internal/repository"
)

func intPtr(v int) *int    { return &v }
func msPtr(v int64) *int64 { return &v }

func newDrivers(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func provisional(driverID uuid.UUID, pos int, bestMs int64) *models.Result {
	return &models.Result{
		DriverID:  driverID,
		Position:  intPtr(pos),
		BestLapMs: msPtr(bestMs),
		Status:    models.ResultStatusOK,
		Basis:     models.BasisProvisional,
		Version:   models.ProvisionalVersion,
	}
}

func positions(standings []*Standing) map[uuid.UUID]*int {
	out := make(map[uuid.UUID]*int, len(standings))
	for _, s := range standings {
		out[s.DriverID] = s.Position
	}
	return out
}

func TestComputeOrderDQAndPositionDrop(t *testing.T) {
	d := newDrivers(6)
	x, y := d[2], d[0]

	var rows []*models.Result
	for i, id := range d {
		rows = append(rows, provisional(id, i+1, 45000+int64(i)*100))
	}

	standings, applied := ComputeOrder(Input{
		SessionType: models.SessionTypeHeat,
		Provisional: rows,
		Penalties: []*models.Penalty{
			{DriverID: x, Type: models.PenaltyPosition, Positions: intPtr(2)},
			{DriverID: y, Type: models.PenaltyDQ},
		},
	})
	require.Len(t, standings, 6)
	assert.Len(t, applied, 2)

	got := make([]uuid.UUID, 0, len(standings))
	for _, s := range standings {
		got = append(got, s.DriverID)
	}
	assert.Equal(t, []uuid.UUID{d[1], d[3], d[4], d[5], x, y}, got)

	pos := positions(standings)
	assert.Equal(t, 5, *pos[x])
	assert.Nil(t, pos[y])
	assert.Equal(t, models.ResultStatusDQ, standings[5].Status)
	for i, s := range standings[:5] {
		assert.Equal(t, i+1, *s.Position)
	}
}

func TestComputeOrderPositionDropPreservesOthers(t *testing.T) {
	d := newDrivers(5)
	var rows []*models.Result
	for i, id := range d {
		rows = append(rows, provisional(id, i+1, 45000))
	}

	tests := []struct {
		name      string
		penalties []*models.Penalty
		want      []uuid.UUID
	}{
		{
			name:      "leader drops one",
			penalties: []*models.Penalty{{DriverID: d[0], Type: models.PenaltyPosition, Positions: intPtr(1)}},
			want:      []uuid.UUID{d[1], d[0], d[2], d[3], d[4]},
		},
		{
			name:      "drop past the field is clamped",
			penalties: []*models.Penalty{{DriverID: d[3], Type: models.PenaltyPosition, Positions: intPtr(10)}},
			want:      []uuid.UUID{d[0], d[1], d[2], d[4], d[3]},
		},
		{
			name: "drops accumulate",
			penalties: []*models.Penalty{
				{DriverID: d[0], Type: models.PenaltyPosition, Positions: intPtr(1)},
				{DriverID: d[0], Type: models.PenaltyPosition, Positions: intPtr(2)},
			},
			want: []uuid.UUID{d[1], d[2], d[3], d[0], d[4]},
		},
		{
			name: "two penalized drivers",
			penalties: []*models.Penalty{
				{DriverID: d[1], Type: models.PenaltyPosition, Positions: intPtr(2)},
				{DriverID: d[0], Type: models.PenaltyPosition, Positions: intPtr(1)},
			},
			want: []uuid.UUID{d[2], d[0], d[3], d[1], d[4]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			standings, _ := ComputeOrder(Input{
				SessionType: models.SessionTypeFinal,
				Provisional: rows,
				Penalties:   tt.penalties,
			})
			got := make([]uuid.UUID, 0, len(standings))
			for i, s := range standings {
				got = append(got, s.DriverID)
				assert.Equal(t, i+1, *s.Position)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeOrderDoesNotMutateInput(t *testing.T) {
	d := newDrivers(2)
	rows := []*models.Result{provisional(d[0], 1, 45000), provisional(d[1], 2, 46000)}

	ComputeOrder(Input{
		SessionType: models.SessionTypeHeat,
		Provisional: rows,
		Penalties:   []*models.Penalty{{DriverID: d[0], Type: models.PenaltyDQ}},
	})

	assert.Equal(t, 1, *rows[0].Position)
	assert.Equal(t, models.ResultStatusOK, rows[0].Status)
}

func TestComputeOrderTimedSessions(t *testing.T) {
	d := newDrivers(3)
	rows := []*models.Result{
		provisional(d[0], 1, 45000),
		provisional(d[1], 2, 46000),
		provisional(d[2], 3, 45500),
	}

	standings, _ := ComputeOrder(Input{
		SessionType: models.SessionTypeQualifying,
		Provisional: rows,
		Penalties: []*models.Penalty{
			{DriverID: d[0], Type: models.PenaltyDQ},
			// position drops only apply to races
			{DriverID: d[2], Type: models.PenaltyPosition, Positions: intPtr(1)},
		},
	})

	require.Len(t, standings, 3)
	assert.Equal(t, d[2], standings[0].DriverID)
	assert.Equal(t, 1, *standings[0].Position)
	assert.Equal(t, d[1], standings[1].DriverID)
	assert.Equal(t, 2, *standings[1].Position)
	assert.Equal(t, d[0], standings[2].DriverID)
	assert.Nil(t, standings[2].Position)
}

func TestComputeOrderTimePenalty(t *testing.T) {
	d := newDrivers(2)
	first := provisional(d[0], 1, 45000)
	first.TotalTimeMs = msPtr(600000)
	rows := []*models.Result{first, provisional(d[1], 2, 46000)}

	standings, _ := ComputeOrder(Input{
		SessionType: models.SessionTypeHeat,
		Provisional: rows,
		Penalties: []*models.Penalty{
			{DriverID: d[0], Type: models.PenaltyTime, ValueMs: msPtr(5000)},
			{DriverID: d[1], Type: models.PenaltyTime, ValueMs: msPtr(3000)},
		},
	})

	assert.Equal(t, d[0], standings[0].DriverID, "time penalties do not reorder")
	assert.Equal(t, int64(605000), *standings[0].TotalTimeMs)
	assert.Equal(t, int64(3000), *standings[1].TotalTimeMs)
}

func TestComputeOrderLapInvalid(t *testing.T) {
	driver := uuid.New()
	laps := []*models.Lap{
		{DriverID: driver, LapNumber: 3, DurationMs: 47000, Valid: true},
		{DriverID: driver, LapNumber: 1, DurationMs: 46000, Valid: true},
		{DriverID: driver, LapNumber: 2, DurationMs: 45000, Valid: true},
	}
	row := provisional(driver, 1, 45000)
	row.LastLapMs = msPtr(47000)

	in := Input{
		SessionType: models.SessionTypeHeat,
		Provisional: []*models.Result{row},
		Penalties:   []*models.Penalty{{DriverID: driver, Type: models.PenaltyLapInvalid, LapNumber: intPtr(2)}},
		Laps:        map[uuid.UUID][]*models.Lap{driver: laps},
	}
	standings, _ := ComputeOrder(in)
	assert.Equal(t, int64(46000), *standings[0].BestLapMs)
	assert.Equal(t, int64(47000), *standings[0].LastLapMs)

	in.Penalties = append(in.Penalties, &models.Penalty{DriverID: driver, Type: models.PenaltyLapInvalid, LapNumber: intPtr(3)})
	standings, _ = ComputeOrder(in)
	assert.Equal(t, int64(46000), *standings[0].BestLapMs)
	assert.Equal(t, int64(46000), *standings[0].LastLapMs)
	assert.True(t, laps[2].Valid, "persisted laps are untouched")
}

type engineFixture struct {
	repos    *repository.Repositories
	clock    *clockwork.FakeClock
	recorder *notify.Recorder
	engine   *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC))
	repos := repository.NewMemoryRepositories(clock)
	recorder := &notify.Recorder{}
	return &engineFixture{
		repos:    repos,
		clock:    clock,
		recorder: recorder,
		engine:   NewEngine(repos, log, WithClock(clock), WithNotifier(recorder), WithFieldSize(10)),
	}
}

func (f *engineFixture) session(t *testing.T, ctx context.Context, name string, sessionType models.SessionType, drivers []uuid.UUID) *models.Session {
	t.Helper()
	s := &models.Session{
		EventID:     uuid.New(),
		ClassID:     uuid.New(),
		Name:        name,
		SessionType: sessionType,
		Status:      models.SessionStatusProvisional,
	}
	require.NoError(t, f.repos.Sessions.Create(ctx, s))
	for i, id := range drivers {
		r := provisional(id, i+1, 45000+int64(i)*100)
		r.SessionID = s.ID
		require.NoError(t, f.repos.Results.UpsertProvisional(ctx, r))
	}
	return s
}

func TestPublishHeatAwardsSchemePoints(t *testing.T) {
	f := newEngineFixture(t)
	ctx := t.Context()

	require.NoError(t, f.repos.Points.CreateScheme(ctx, &models.PointScheme{Name: "SCHEME_A"}, []models.PointScale{
		{AwardType: models.AwardTypeHeat, Position: 1, Points: 0},
		{AwardType: models.AwardTypeHeat, Position: 2, Points: 2},
	}))

	d := newDrivers(3)
	s := f.session(t, ctx, "Heat 1", models.SessionTypeHeat, d)

	pub, err := f.engine.Publish(ctx, s.ID, "SCHEME_A")
	require.NoError(t, err)
	assert.Equal(t, 1, pub.Version)
	assert.Equal(t, models.AwardTypeHeat, pub.AwardType)

	awards, err := f.repos.PointAwards.ListBySession(ctx, s.ID, models.BasisOfficial, 1)
	require.NoError(t, err)
	require.Len(t, awards, 3)
	points := make(map[uuid.UUID]int)
	for _, a := range awards {
		points[a.DriverID] = a.TotalPoints
		assert.Equal(t, a.BasePoints, a.TotalPoints)
	}
	assert.Equal(t, 0, points[d[0]])
	assert.Equal(t, 2, points[d[1]])
	assert.Equal(t, 0, points[d[2]], "positions missing from the scale score nothing")

	stored, err := f.repos.Sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusOfficial, stored.Status)
	require.NotNil(t, stored.EndedAt)

	events := f.recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.SessionStatusOfficial, events[0].Status)
	assert.Equal(t, 1, events[0].Version)
}

func TestPublishTwiceCreatesVersions(t *testing.T) {
	f := newEngineFixture(t)
	ctx := t.Context()

	d := newDrivers(3)
	s := f.session(t, ctx, "Final", models.SessionTypeFinal, d)

	first, err := f.engine.Publish(ctx, s.ID, "")
	require.NoError(t, err)
	require.NoError(t, f.repos.Penalties.Create(ctx, &models.Penalty{SessionID: s.ID, DriverID: d[0], Type: models.PenaltyDQ}))
	second, err := f.engine.Publish(ctx, s.ID, "")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Empty(t, second.Awards, "finals earn no points")

	v1, err := f.repos.Results.ListOfficial(ctx, s.ID, 1)
	require.NoError(t, err)
	v2, err := f.repos.Results.ListOfficial(ctx, s.ID, 2)
	require.NoError(t, err)
	require.Len(t, v1, 3)
	require.Len(t, v2, 3)

	assert.Equal(t, d[0], v1[0].DriverID)
	assert.Equal(t, 1, *v1[0].Position)

	// version 2 reflects the DQ while version 1 is unchanged
	assert.Equal(t, d[1], v2[0].DriverID)
	assert.Equal(t, 1, *v2[0].Position)
	assert.Equal(t, 2, *v2[1].Position)
	assert.Nil(t, v2[2].Position)
	assert.Equal(t, models.ResultStatusDQ, v2[2].Status)

	latest, err := f.repos.Results.MaxOfficialVersion(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestPublishSeedsDefaultScheme(t *testing.T) {
	f := newEngineFixture(t)
	ctx := t.Context()

	d := newDrivers(2)
	s := f.session(t, ctx, "Qualifying", models.SessionTypeQualifying, d)

	pub, err := f.engine.Publish(ctx, s.ID, "")
	require.NoError(t, err)
	require.Len(t, pub.Awards, 2)
	assert.Equal(t, models.AwardTypeQualifying, pub.AwardType)

	scheme, err := f.repos.Points.GetSchemeByName(ctx, DefaultSchemeName)
	require.NoError(t, err)
	heat, err := f.repos.Points.GetScale(ctx, scheme.ID, models.AwardTypeHeat)
	require.NoError(t, err)
	assert.Len(t, heat, 10)
	assert.Equal(t, 0, heat[1])
	assert.Equal(t, 10, heat[10])

	assert.Equal(t, 1, pub.Awards[0].TotalPoints)
	assert.True(t, decimal.RequireFromString("0.01").Equal(pub.Awards[0].Display()))
	assert.True(t, decimal.RequireFromString("0.02").Equal(pub.Awards[1].Display()))
}

func TestPublishUnknownSchemeAwardsZero(t *testing.T) {
	f := newEngineFixture(t)
	ctx := t.Context()

	d := newDrivers(2)
	s := f.session(t, ctx, "Heat 2", models.SessionTypeHeat, d)

	pub, err := f.engine.Publish(ctx, s.ID, "NO_SUCH_SCHEME")
	require.NoError(t, err)
	require.Len(t, pub.Awards, 2)
	for _, a := range pub.Awards {
		assert.Zero(t, a.TotalPoints)
	}
}

func TestPublishHeatByName(t *testing.T) {
	f := newEngineFixture(t)
	ctx := t.Context()

	d := newDrivers(2)
	s := f.session(t, ctx, "Junior Heat Race", models.SessionTypeFinal, d)

	pub, err := f.engine.Publish(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.AwardTypeHeat, pub.AwardType)
	require.Len(t, pub.Awards, 2)
	assert.Equal(t, 0, pub.Awards[0].TotalPoints)
	assert.Equal(t, 2, pub.Awards[1].TotalPoints)
}

func TestComputeOfficialOrderDoesNotPersist(t *testing.T) {
	f := newEngineFixture(t)
	ctx := t.Context()

	d := newDrivers(3)
	s := f.session(t, ctx, "Heat 3", models.SessionTypeHeat, d)
	require.NoError(t, f.repos.Penalties.Create(ctx, &models.Penalty{SessionID: s.ID, DriverID: d[0], Type: models.PenaltyPosition, Positions: intPtr(1)}))

	standings, err := f.engine.ComputeOfficialOrder(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, standings, 3)
	assert.Equal(t, d[1], standings[0].DriverID)
	assert.Equal(t, d[0], standings[1].DriverID)

	latest, err := f.repos.Results.MaxOfficialVersion(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, latest)

	stored, err := f.repos.Sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusProvisional, stored.Status)
	assert.Empty(t, f.recorder.Events())
}

func TestPublishUnknownSession(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Publish(t.Context(), uuid.New(), "")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	_, err = f.engine.ComputeOfficialOrder(t.Context(), uuid.New())
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
