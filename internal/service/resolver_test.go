package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kart-timing/internal/logger"
	"github.com/yourusername/kart-timing/internal/models"
	"github.com/yourusername/kart-timing/internal/repository"
	"github.com/yourusername/kart-timing/internal/timing"
)

func newTestResolver(t *testing.T) (*EntityResolver, *repository.Repositories, *clockwork.FakeClock) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	resolver := NewEntityResolver(NewDataNormalizer(), logger.NewAuditLogger(log), clock)
	return resolver, repository.NewMemoryRepositories(clock), clock
}

func mustDriver(t *testing.T, ctx context.Context, r *EntityResolver, repos *repository.Repositories, first, last string) *models.Driver {
	t.Helper()
	d, err := r.ResolveDriver(ctx, repos, timing.Driver{First: first, Last: last})
	require.NoError(t, err)
	return d
}

func TestResolveEventCreatesOnce(t *testing.T) {
	r, repos, _ := newTestResolver(t)
	ctx := t.Context()

	first, err := r.ResolveEvent(ctx, repos, "Spring Cup")
	require.NoError(t, err)
	second, err := r.ResolveEvent(ctx, repos, "Spring Cup")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, first.StartDate)
	assert.True(t, first.StartDate.Equal(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)))
}

func TestResolveDriverRefreshesMetadata(t *testing.T) {
	r, repos, _ := newTestResolver(t)
	ctx := t.Context()

	created, err := r.ResolveDriver(ctx, repos, timing.Driver{First: " Ana ", Last: "Silva", Chassis: "OTK"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", created.FirstName)

	updated, err := r.ResolveDriver(ctx, repos, timing.Driver{First: "Ana", Last: "Silva", Team: "Team A"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Team A", updated.Team)
	assert.Equal(t, "OTK", updated.Chassis, "empty values never clear metadata")
}

func TestResolveSessionUpdatesType(t *testing.T) {
	r, repos, clock := newTestResolver(t)
	ctx := t.Context()
	eventID, classID := uuid.New(), uuid.New()

	s, err := r.ResolveSession(ctx, repos, eventID, classID, "Race 1", models.SessionTypePractice)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusLive, s.Status)
	require.NotNil(t, s.StartedAt)
	assert.True(t, s.StartedAt.Equal(clock.Now()))

	again, err := r.ResolveSession(ctx, repos, eventID, classID, "Race 1", models.SessionTypeHeat)
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)

	stored, err := repos.Sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTypeHeat, stored.SessionType)
}

func TestResolveEntry(t *testing.T) {
	r, repos, _ := newTestResolver(t)
	ctx := t.Context()
	eventID, classID := uuid.New(), uuid.New()

	ana := mustDriver(t, ctx, r, repos, "Ana", "Silva")
	ben := mustDriver(t, ctx, r, repos, "Ben", "Okafor")

	t.Run("creates and reuses", func(t *testing.T) {
		first, err := r.ResolveEntry(ctx, repos, eventID, classID, ana.ID, "12")
		require.NoError(t, err)
		second, err := r.ResolveEntry(ctx, repos, eventID, classID, ana.ID, "12")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("renumbers the driver's entry", func(t *testing.T) {
		entry, err := r.ResolveEntry(ctx, repos, eventID, classID, ana.ID, "21")
		require.NoError(t, err)
		assert.Equal(t, "21", entry.Number)

		_, err = repos.Entries.GetByNumber(ctx, eventID, classID, "12")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("number wins over driver", func(t *testing.T) {
		_, err := r.ResolveEntry(ctx, repos, eventID, classID, ben.ID, "33")
		require.NoError(t, err)

		entry, err := r.ResolveEntry(ctx, repos, eventID, classID, ben.ID, "21")
		require.NoError(t, err)
		assert.Equal(t, ben.ID, entry.DriverID)

		entries, err := repos.Entries.ListByClass(ctx, classID)
		require.NoError(t, err)
		require.Len(t, entries, 1, "the driver's second entry is removed")
		assert.Equal(t, "21", entries[0].Number)
	})
}

func TestMergeClassMovesChildren(t *testing.T) {
	r, repos, clock := newTestResolver(t)
	ctx := t.Context()

	event, err := r.ResolveEvent(ctx, repos, "Spring Cup")
	require.NoError(t, err)
	from, err := r.ResolveClass(ctx, repos, event.ID, "Unknown Class")
	require.NoError(t, err)
	into, err := r.ResolveClass(ctx, repos, event.ID, "Junior")
	require.NoError(t, err)

	ana := mustDriver(t, ctx, r, repos, "Ana", "Silva")
	ben := mustDriver(t, ctx, r, repos, "Ben", "Okafor")

	// heat 1 exists in both classes; the copy in into started later
	fromHeat, err := r.ResolveSession(ctx, repos, event.ID, from.ID, "Heat 1", models.SessionTypeHeat)
	require.NoError(t, err)
	fromPractice, err := r.ResolveSession(ctx, repos, event.ID, from.ID, "Practice", models.SessionTypePractice)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	intoHeat, err := r.ResolveSession(ctx, repos, event.ID, into.ID, "Heat 1", models.SessionTypeHeat)
	require.NoError(t, err)

	require.NoError(t, repos.Laps.InsertBatch(ctx, []*models.Lap{
		{SessionID: fromHeat.ID, DriverID: ana.ID, LapNumber: 1, DurationMs: 45000, Valid: true},
		{SessionID: fromHeat.ID, DriverID: ana.ID, LapNumber: 2, DurationMs: 45500, Valid: true},
		{SessionID: intoHeat.ID, DriverID: ana.ID, LapNumber: 1, DurationMs: 44000, Valid: true},
	}))

	_, err = r.ResolveEntry(ctx, repos, event.ID, from.ID, ana.ID, "12")
	require.NoError(t, err)
	_, err = r.ResolveEntry(ctx, repos, event.ID, from.ID, ben.ID, "33")
	require.NoError(t, err)
	_, err = r.ResolveEntry(ctx, repos, event.ID, into.ID, ana.ID, "12")
	require.NoError(t, err)

	require.NoError(t, r.MergeClass(ctx, repos, from, into))

	_, err = repos.Classes.GetByID(ctx, from.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// colliding lap 1 keeps the target's row
	laps, err := repos.Laps.ListBySessionDriver(ctx, intoHeat.ID, ana.ID)
	require.NoError(t, err)
	require.Len(t, laps, 2)
	assert.Equal(t, int64(44000), laps[0].DurationMs)
	assert.Equal(t, int64(45500), laps[1].DurationMs)

	merged, err := repos.Sessions.GetByID(ctx, intoHeat.ID)
	require.NoError(t, err)
	assert.True(t, merged.StartedAt.Equal(*fromHeat.StartedAt), "earliest start is kept")

	practice, err := repos.Sessions.GetByID(ctx, fromPractice.ID)
	require.NoError(t, err)
	assert.Equal(t, into.ID, practice.ClassID)

	entries, err := repos.Entries.ListByClass(ctx, into.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRenameEventMergesIntoExisting(t *testing.T) {
	r, repos, _ := newTestResolver(t)
	ctx := t.Context()

	placeholder, err := r.ResolveEvent(ctx, repos, "Speedway 2026-10-16")
	require.NoError(t, err)
	target, err := r.ResolveEvent(ctx, repos, "Spring Cup")
	require.NoError(t, err)

	class, err := r.ResolveClass(ctx, repos, placeholder.ID, "Junior")
	require.NoError(t, err)
	session, err := r.ResolveSession(ctx, repos, placeholder.ID, class.ID, "Heat 1", models.SessionTypeHeat)
	require.NoError(t, err)

	survivor, merged, err := r.RenameEvent(ctx, repos, placeholder, "Spring Cup")
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, target.ID, survivor.ID)

	_, err = repos.Events.GetByID(ctx, placeholder.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	moved, err := repos.Sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, moved.EventID)

	renamed, merged, err := r.RenameEvent(ctx, repos, target, "Spring Cup Round 2")
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, target.ID, renamed.ID)
	assert.Equal(t, "Spring Cup Round 2", renamed.Name)
}
