// Package official turns provisional results into penalty-adjusted, versioned
// official results and awards championship points from them.
package official

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"github.com/yourusername/kart-timing/internal/models"
)

// Standing is one driver's row of a penalty-adjusted ranking
type Standing struct {
	DriverID      uuid.UUID           `json:"driver_id"`
	Position      *int                `json:"position"`
	BestLapMs     *int64              `json:"best_lap_ms"`
	LastLapMs     *int64              `json:"last_lap_ms"`
	TotalTimeMs   *int64              `json:"total_time_ms"`
	GapToLeaderMs *int64              `json:"gap_to_leader_ms"`
	Status        models.ResultStatus `json:"status"`

	// rank is the pre-penalty position among every placed driver
	rank int
	drop int
}

// Ranked reports whether the driver holds a numeric position
func (s *Standing) Ranked() bool {
	return s.Position != nil
}

// Input is everything a ranking is computed from
type Input struct {
	SessionType models.SessionType
	Provisional []*models.Result
	// Penalties in the order they were recorded
	Penalties []*models.Penalty
	// Laps per driver, consulted only for lap invalidation
	Laps map[uuid.UUID][]*models.Lap
}

// AppliedPenalty records a penalty that matched a driver in the ranking
type AppliedPenalty struct {
	Penalty *models.Penalty
	Value   any
}

// ComputeOrder applies penalties to the provisional rows and ranks the result.
// It does not modify its input.
func ComputeOrder(in Input) ([]*Standing, []AppliedPenalty) {
	standings := make([]*Standing, 0, len(in.Provisional))
	byDriver := make(map[uuid.UUID]*Standing, len(in.Provisional))
	for _, r := range in.Provisional {
		s := &Standing{
			DriverID:      r.DriverID,
			Position:      copyPtr(r.Position),
			BestLapMs:     copyPtr(r.BestLapMs),
			LastLapMs:     copyPtr(r.LastLapMs),
			TotalTimeMs:   copyPtr(r.TotalTimeMs),
			GapToLeaderMs: copyPtr(r.GapToLeaderMs),
			Status:        r.Status,
		}
		standings = append(standings, s)
		byDriver[r.DriverID] = s
	}
	assignRanks(standings)

	applied := applyPenalties(in, byDriver)

	if in.SessionType.IsRace() {
		return rankRace(standings), applied
	}
	return rankTimed(standings), applied
}

// assignRanks numbers placed drivers by provisional position, best lap breaking ties
func assignRanks(standings []*Standing) {
	placed := make([]*Standing, 0, len(standings))
	for _, s := range standings {
		if s.Position != nil {
			placed = append(placed, s)
		}
	}
	slices.SortStableFunc(placed, func(a, b *Standing) int {
		return cmp.Or(
			cmp.Compare(*a.Position, *b.Position),
			compareLap(a.BestLapMs, b.BestLapMs),
		)
	})
	for i, s := range placed {
		s.rank = i + 1
	}
}

func applyPenalties(in Input, byDriver map[uuid.UUID]*Standing) []AppliedPenalty {
	var applied []AppliedPenalty
	invalid := make(map[uuid.UUID]map[int]bool)

	for _, p := range in.Penalties {
		s, ok := byDriver[p.DriverID]
		if !ok {
			continue
		}

		switch p.Type {
		case models.PenaltyDQ:
			s.Status = models.ResultStatusDQ
			s.Position = nil
			applied = append(applied, AppliedPenalty{Penalty: p, Value: models.ResultStatusDQ})

		case models.PenaltyPosition:
			drop := max(0, deref(p.Positions))
			s.drop += drop
			applied = append(applied, AppliedPenalty{Penalty: p, Value: drop})

		case models.PenaltyTime:
			add := deref(p.ValueMs)
			total := deref(s.TotalTimeMs) + add
			s.TotalTimeMs = &total
			applied = append(applied, AppliedPenalty{Penalty: p, Value: add})

		case models.PenaltyLapInvalid:
			if p.LapNumber == nil {
				continue
			}
			if invalid[p.DriverID] == nil {
				invalid[p.DriverID] = make(map[int]bool)
			}
			invalid[p.DriverID][*p.LapNumber] = true
			s.BestLapMs, s.LastLapMs = bestAndLast(in.Laps[p.DriverID], invalid[p.DriverID])
			applied = append(applied, AppliedPenalty{Penalty: p, Value: *p.LapNumber})
		}
	}
	return applied
}

// bestAndLast recomputes lap figures with the excluded laps left out
func bestAndLast(laps []*models.Lap, excluded map[int]bool) (best, last *int64) {
	ordered := slices.Clone(laps)
	slices.SortFunc(ordered, func(a, b *models.Lap) int { return cmp.Compare(a.LapNumber, b.LapNumber) })

	for _, lap := range ordered {
		if !lap.Valid || excluded[lap.LapNumber] {
			continue
		}
		d := lap.DurationMs
		last = &d
		if best == nil || d < *best {
			best = &d
		}
	}
	return best, last
}

// rankRace orders placed drivers by pre-penalty rank, moves each penalized
// driver exactly its drop count later, and appends everyone unplaced
func rankRace(standings []*Standing) []*Standing {
	var (
		kept      []*Standing
		penalized []*Standing
		tail      []*Standing
	)
	for _, s := range standings {
		switch {
		case s.Position == nil:
			tail = append(tail, s)
		case s.drop > 0:
			penalized = append(penalized, s)
		default:
			kept = append(kept, s)
		}
	}

	slices.SortStableFunc(kept, func(a, b *Standing) int { return cmp.Compare(a.rank, b.rank) })
	slices.SortStableFunc(penalized, func(a, b *Standing) int {
		return cmp.Or(
			cmp.Compare(a.rank+a.drop, b.rank+b.drop),
			cmp.Compare(a.rank, b.rank),
		)
	})

	order := kept
	for _, s := range penalized {
		at := min(s.rank+s.drop-1, len(order))
		order = slices.Insert(order, at, s)
	}
	renumber(order)

	sortTail(tail)
	return append(order, tail...)
}

// rankTimed orders drivers by best lap; disqualified drivers are left unranked
func rankTimed(standings []*Standing) []*Standing {
	var ranked, tail []*Standing
	for _, s := range standings {
		if s.Status == models.ResultStatusDQ {
			s.Position = nil
			tail = append(tail, s)
			continue
		}
		ranked = append(ranked, s)
	}

	slices.SortStableFunc(ranked, func(a, b *Standing) int {
		return cmp.Or(
			compareLap(a.BestLapMs, b.BestLapMs),
			compareRank(a.rank, b.rank),
			cmp.Compare(a.DriverID.String(), b.DriverID.String()),
		)
	})
	renumber(ranked)

	sortTail(tail)
	return append(ranked, tail...)
}

func renumber(order []*Standing) {
	for i, s := range order {
		pos := i + 1
		s.Position = &pos
	}
}

func sortTail(tail []*Standing) {
	slices.SortStableFunc(tail, func(a, b *Standing) int {
		return cmp.Or(
			cmp.Compare(a.Status, b.Status),
			cmp.Compare(a.DriverID.String(), b.DriverID.String()),
		)
	})
}

// compareLap orders recorded laps first, fastest leading
func compareLap(a, b *int64) int {
	switch {
	case a != nil && b != nil:
		return cmp.Compare(*a, *b)
	case a != nil:
		return -1
	case b != nil:
		return 1
	}
	return 0
}

// compareRank orders placed drivers before unplaced ones
func compareRank(a, b int) int {
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

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref[T int | int64](p *T) T {
	if p == nil {
		return 0
	}
	return *p
}
