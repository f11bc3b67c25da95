package timing

import (
	"cmp"
	"math"
	"slices"
	"time"
)

const (
	// missRank places karts absent from a window behind every observed crossing
	missRank = 1000
	// graceWindows is how many consecutive misses, counting the current one,
	// cost no extra rank
	graceWindows = 1
)

type observation struct {
	position int
	elapsed  time.Duration
}

// window buffers leader-lap crossings until the deadline passes
type window struct {
	active   bool
	lap      int
	deadline time.Time
	seen     map[string]observation

	highestOpened int
	misses        map[string]int
}

func newWindow() window {
	return window{misses: make(map[string]int)}
}

// openWindow starts a window for lap, resolving any window still pending.
// Crossings onto lap that arrived ahead of the leader's are carried into it.
func (s *LiveState) openWindow(lap int, now time.Time, span time.Duration) {
	if s.window.active {
		s.resolveWindow()
	}
	s.window.active = true
	s.window.lap = lap
	s.window.deadline = now.Add(span)
	s.window.seen = make(map[string]observation)
	s.window.highestOpened = lap

	for n, k := range s.Karts {
		if k.HasCrossing && k.CrossingLap == lap {
			s.window.seen[n] = observation{position: k.crossingPosition, elapsed: k.Elapsed}
		}
	}
}

// observe records the latest crossing of a kart onto the open window's lap
func (s *LiveState) observe(number string, position, laps int, elapsed time.Duration) {
	if !s.window.active || laps != s.window.lap {
		return
	}
	s.window.seen[number] = observation{position: position, elapsed: elapsed}
}

// resolveWindow rebuilds the display order from everything known about the karts
func (s *LiveState) resolveWindow() {
	w := &s.window
	if !w.active {
		return
	}

	previous := make(map[string]int, len(s.DisplayOrder))
	for i, n := range s.DisplayOrder {
		previous[n] = i
	}

	rank := func(k *Kart) int {
		if obs, ok := w.seen[k.Number]; ok {
			if obs.position > 0 {
				return obs.position
			}
			return missRank - 1
		}
		return missRank + max(0, w.misses[k.Number]+1-graceWindows)
	}
	crossing := func(k *Kart) time.Duration {
		if obs, ok := w.seen[k.Number]; ok && obs.elapsed > 0 {
			return obs.elapsed
		}
		if k.HasCrossing {
			return k.Elapsed
		}
		return time.Duration(math.MaxInt64)
	}
	prevIndex := func(k *Kart) int {
		if i, ok := previous[k.Number]; ok {
			return i
		}
		return len(previous)
	}

	order := make([]*Kart, 0, len(s.Karts))
	for _, n := range s.roster {
		order = append(order, s.Karts[n])
	}
	slices.SortStableFunc(order, func(a, b *Kart) int {
		if c := cmp.Compare(b.Laps, a.Laps); c != 0 {
			return c
		}
		if a.Laps == w.lap {
			if c := cmp.Compare(rank(a), rank(b)); c != 0 {
				return c
			}
		}
		return cmp.Or(
			cmp.Compare(crossing(a), crossing(b)),
			cmp.Compare(prevIndex(a), prevIndex(b)),
			compareNumbers(a.Number, b.Number),
		)
	})

	s.DisplayOrder = make([]string, len(order))
	for i, k := range order {
		s.DisplayOrder[i] = k.Number
		if _, ok := w.seen[k.Number]; ok {
			w.misses[k.Number] = 0
		} else {
			w.misses[k.Number]++
		}
	}

	w.active = false
	w.seen = nil
}
