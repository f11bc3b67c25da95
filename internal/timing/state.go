package timing

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/yourusername/kart-timing/internal/models"
)

// Driver is the roster metadata announced for a kart
type Driver struct {
	First       string
	Last        string
	Team        string
	Chassis     string
	Transponder string
	Active      bool
}

// HasName reports whether the driver has at least one name part
func (d Driver) HasName() bool {
	return strings.TrimSpace(d.First) != "" || strings.TrimSpace(d.Last) != ""
}

// Kart holds the live state of one kart number within the current session
type Kart struct {
	Number string
	Driver Driver

	// LastLap is the most recent accepted lap and LastLapOf the lap count it completed.
	LastLap   time.Duration
	LastLapOf int
	BestLap   time.Duration

	Laps     int
	Position int
	Status   int

	// Elapsed is the session time of the last accepted crossing.
	Elapsed     time.Duration
	CrossingLap int
	HasCrossing bool

	crossingPosition int
	rosterIndex      int
}

// LiveState is the parser's view of the session currently on the feed
type LiveState struct {
	SessionName string
	SessionType models.SessionType
	ClassName   string
	EventName   string
	TrackName   string
	TrackLength float64
	Flag        string

	Karts        map[string]*Kart
	DisplayOrder []string

	roster []string
	window window
}

func newLiveState() *LiveState {
	return &LiveState{
		SessionType: models.SessionTypePractice,
		Karts:       make(map[string]*Kart),
		window:      newWindow(),
	}
}

// resetSession clears per-kart and ordering state while keeping event metadata
func (s *LiveState) resetSession(name string) {
	s.SessionName = name
	s.SessionType = InferSessionType(name)
	s.Flag = ""
	s.Karts = make(map[string]*Kart)
	s.DisplayOrder = nil
	s.roster = nil
	s.window = newWindow()
}

// kart returns the state for number, registering it on first sighting
func (s *LiveState) kart(number string) *Kart {
	if k, ok := s.Karts[number]; ok {
		return k
	}
	k := &Kart{Number: number, rosterIndex: len(s.roster)}
	s.Karts[number] = k
	s.roster = append(s.roster, number)
	return k
}

// Roster returns kart numbers in first-sighting order
func (s *LiveState) Roster() []string {
	return slices.Clone(s.roster)
}

// Checkered reports whether the current flag means the session has finished
func (s *LiveState) Checkered() bool {
	return IsCheckered(s.Flag)
}

// BestLap returns the fastest accepted lap of any kart in the session
func (s *LiveState) BestLap() (time.Duration, bool) {
	var best time.Duration
	for _, k := range s.Karts {
		if k.BestLap > 0 && (best == 0 || k.BestLap < best) {
			best = k.BestLap
		}
	}
	return best, best > 0
}

// Standings returns the karts in provisional order.
// Race sessions follow the resolved running order, the rest rank by best lap.
func (s *LiveState) Standings() []*Kart {
	if s.SessionType.IsRace() {
		return s.raceStandings()
	}
	return s.timedStandings()
}

func (s *LiveState) raceStandings() []*Kart {
	out := make([]*Kart, 0, len(s.Karts))
	listed := make(map[string]bool, len(s.DisplayOrder))
	for _, n := range s.DisplayOrder {
		if k, ok := s.Karts[n]; ok && !listed[n] {
			out = append(out, k)
			listed[n] = true
		}
	}

	var rest []*Kart
	for _, n := range s.roster {
		if !listed[n] {
			rest = append(rest, s.Karts[n])
		}
	}
	slices.SortStableFunc(rest, func(a, b *Kart) int {
		return cmp.Or(
			comparePositions(a.Position, b.Position),
			cmp.Compare(a.rosterIndex, b.rosterIndex),
		)
	})
	return append(out, rest...)
}

func (s *LiveState) timedStandings() []*Kart {
	out := make([]*Kart, 0, len(s.Karts))
	for _, n := range s.roster {
		out = append(out, s.Karts[n])
	}
	slices.SortStableFunc(out, func(a, b *Kart) int {
		return cmp.Or(
			compareLaps(a.BestLap, b.BestLap),
			comparePositions(a.Position, b.Position),
			compareNumbers(a.Number, b.Number),
		)
	})
	return out
}

// comparePositions orders known positions first
func comparePositions(a, b int) int {
	switch {
	case a > 0 && b > 0:
		return cmp.Compare(a, b)
	case a > 0:
		return -1
	case b > 0:
		return 1
	}
	return 0
}

// compareLaps orders recorded lap times first, fastest leading
func compareLaps(a, b time.Duration) int {
	switch {
	case a > 0 && b > 0:
		return cmp.Compare(a, b)
	case a > 0:
		return -1
	case b > 0:
		return 1
	}
	return 0
}
