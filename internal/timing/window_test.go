package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func displayOrder(p *Parser) []string {
	var out []string
	for _, k := range p.State().Standings() {
		out = append(out, k.Number)
	}
	return out
}

func lapOne(t *testing.T, p *Parser) {
	t.Helper()
	feed(t, p,
		`$B,1,"Final"`,
		`$G,1,"12",1,"00:00:45.000"`,
		`$G,2,"7",1,"00:00:45.400"`,
		`$G,3,"33",1,"00:00:46.000"`,
	)
}

func TestWindowResolvesAfterDeadline(t *testing.T) {
	p, clock := newTestParser(t)
	lapOne(t, p)

	assert.False(t, p.TryResolveWindow(clock.Now()))
	assert.Empty(t, p.State().DisplayOrder)

	clock.Advance(1100 * time.Millisecond)
	assert.True(t, p.TryResolveWindow(clock.Now()))
	assert.Equal(t, []string{"12", "7", "33"}, p.State().DisplayOrder)
	assert.False(t, p.TryResolveWindow(clock.Now()), "already resolved")
}

func TestWindowOrderIndependentOfArrival(t *testing.T) {
	lapTwo := []string{
		`$G,1,"7",2,"00:01:15.100"`,
		`$G,2,"12",2,"00:01:15.300"`,
		`$G,3,"33",2,"00:01:16.500"`,
	}
	arrivals := [][]int{
		{0, 1, 2},
		{2, 1, 0},
		{1, 0, 2},
		{2, 0, 1},
	}

	for _, order := range arrivals {
		p, clock := newTestParser(t)
		lapOne(t, p)
		clock.Advance(2 * time.Second)
		require.True(t, p.TryResolveWindow(clock.Now()))

		for _, i := range order {
			feed(t, p, lapTwo[i])
			clock.Advance(100 * time.Millisecond)
		}
		clock.Advance(2 * time.Second)
		p.TryResolveWindow(clock.Now())

		assert.Equal(t, []string{"7", "12", "33"}, displayOrder(p), "arrival order %v", order)
	}
}

func TestWindowKeepsLastObservationPerKart(t *testing.T) {
	p, clock := newTestParser(t)
	lapOne(t, p)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	feed(t, p,
		`$G,1,"7",2,"00:01:15.100"`,
		`$G,2,"33",2,"00:01:15.200"`,
		`$G,3,"12",2,"00:01:15.300"`,
		`$G,2,"12",2,"00:01:15.300"`,
		`$G,3,"33",2,"00:01:15.200"`,
	)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	assert.Equal(t, []string{"7", "12", "33"}, p.State().DisplayOrder)
}

func TestWindowForceResolvedByNextLeaderLap(t *testing.T) {
	p, _ := newTestParser(t)
	lapOne(t, p)

	feed(t, p,
		`$G,1,"7",2,"00:01:15.100"`,
	)
	assert.True(t, p.State().window.active)
	assert.Equal(t, 2, p.State().window.lap)
	assert.Equal(t, []string{"12", "7", "33"}, p.State().DisplayOrder)
}

func TestWindowResolvedByUndecodedRecord(t *testing.T) {
	p, clock := newTestParser(t)
	lapOne(t, p)

	applied, resolved := p.ParseLine(`$ZZ,"noise"`)
	assert.False(t, applied)
	assert.False(t, resolved, "deadline not reached")

	clock.Advance(2 * time.Second)
	applied, resolved = p.ParseLine(`$ZZ,"noise"`)
	assert.False(t, applied)
	assert.True(t, resolved)
	assert.False(t, p.State().window.active)
}

func TestWindowLappedKartsTrailByLaps(t *testing.T) {
	p, clock := newTestParser(t)
	lapOne(t, p)

	feed(t, p,
		`$G,1,"12",2,"00:01:15.000"`,
		`$G,2,"7",2,"00:01:15.500"`,
	)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	assert.Equal(t, []string{"12", "7", "33"}, p.State().DisplayOrder)
	assert.Equal(t, 1, p.State().window.misses["33"])
	assert.Zero(t, p.State().window.misses["12"])
}

func TestWindowUnseenKartOnLeadLapRanksBehind(t *testing.T) {
	p, clock := newTestParser(t)
	lapOne(t, p)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	// 33 completes lap 2 through a passing record, never through a crossing in the window
	feed(t, p,
		`$SP,0,"33",2,"00:00:30.000"`,
		`$G,1,"12",2,"00:01:15.000"`,
		`$G,2,"7",2,"00:01:15.500"`,
	)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	assert.Equal(t, []string{"12", "7", "33"}, p.State().DisplayOrder)
}

func TestWindowSecondConsecutiveMissRanksBehindFirst(t *testing.T) {
	p, clock := newTestParser(t)
	lapOne(t, p)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	feed(t, p,
		`$SP,0,"33",2,"00:00:30.000"`,
		`$G,1,"12",2,"00:01:15.000"`,
		`$G,2,"7",2,"00:01:15.500"`,
	)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())
	require.Equal(t, 1, p.State().window.misses["33"])

	// 33 last crossed on lap 1 so its crossing time is earlier than 7's
	feed(t, p,
		`$SP,0,"33",3,"00:00:30.000"`,
		`$SP,0,"7",3,"00:00:30.000"`,
		`$G,1,"12",3,"00:01:45.000"`,
	)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	assert.Equal(t, []string{"12", "7", "33"}, p.State().DisplayOrder)
	assert.Equal(t, 2, p.State().window.misses["33"])
	assert.Equal(t, 1, p.State().window.misses["7"])
}

func TestRaceStandingsIncludeUnlistedKarts(t *testing.T) {
	p, clock := newTestParser(t)
	lapOne(t, p)
	clock.Advance(2 * time.Second)
	p.TryResolveWindow(clock.Now())

	feed(t, p,
		`$A,"99","","","Late","Entry","",1`,
		`$A,"98","","","Later","Entry","",1`,
	)
	p.State().Karts["98"].Position = 4

	assert.Equal(t, []string{"12", "7", "33", "98", "99"}, displayOrder(p))
}

func TestCompareNumbers(t *testing.T) {
	assert.Equal(t, -1, compareNumbers("2", "10"))
	assert.Equal(t, 1, compareNumbers("10", "2"))
	assert.Equal(t, -1, compareNumbers("7", "7A"))
	assert.Equal(t, -1, compareNumbers("A1", "B1"))
	assert.Equal(t, 0, compareNumbers("12", "12"))
}
