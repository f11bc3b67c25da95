// Package timing decodes the live timing protocol into per-session kart state.
package timing

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yourusername/kart-timing/internal/logger"
)

// Tag identifies a protocol record type
type Tag int

const (
	TagUnknown Tag = iota
	TagSession
	TagClass
	TagMetadata
	TagRegistration
	TagCompetitor
	TagFlag
	TagCrossing
	TagPractice
	TagPassing
	TagResult
	TagFastest
)

var tagsByPrefix = map[string]Tag{
	"$B":    TagSession,
	"$C":    TagClass,
	"$E":    TagMetadata,
	"$A":    TagRegistration,
	"$COMP": TagCompetitor,
	"$F":    TagFlag,
	"$G":    TagCrossing,
	"$H":    TagPractice,
	"$SP":   TagPassing,
	"$SR":   TagResult,
	"$J":    TagFastest,
}

// ParseTag returns the tag for a record's first field
func ParseTag(prefix string) Tag {
	return tagsByPrefix[strings.ToUpper(strings.TrimSpace(prefix))]
}

func (t Tag) String() string {
	for prefix, tag := range tagsByPrefix {
		if tag == t {
			return prefix
		}
	}
	return "unknown"
}

type handler func(p *Parser, f []string) bool

var handlers = map[Tag]handler{
	TagSession:      (*Parser).handleSession,
	TagClass:        (*Parser).handleClass,
	TagMetadata:     (*Parser).handleMetadata,
	TagRegistration: (*Parser).handleRegistration,
	TagCompetitor:   (*Parser).handleCompetitor,
	TagFlag:         (*Parser).handleFlag,
	TagCrossing:     (*Parser).handleCrossing,
	TagPractice:     (*Parser).handlePractice,
	TagPassing:      (*Parser).handlePassing,
	TagResult:       (*Parser).handleResult,
	TagFastest:      (*Parser).handleFastest,
}

// Config bounds plausible lap times and sets the crossing window span
type Config struct {
	MinLap         time.Duration
	MaxLap         time.Duration
	CrossingWindow time.Duration
}

// DefaultConfig returns the standard sprint kart bounds
func DefaultConfig() Config {
	return Config{
		MinLap:         15 * time.Second,
		MaxLap:         5 * time.Minute,
		CrossingWindow: 1100 * time.Millisecond,
	}
}

// Parser applies protocol records to a LiveState. It is not safe for concurrent use.
type Parser struct {
	cfg   Config
	clock clockwork.Clock
	state *LiveState
	log   *logger.FeedLogger

	// OnLapRejected is called when a derived lap falls outside the plausible band.
	OnLapRejected func(number string, lap time.Duration)
}

// NewParser creates a parser with an empty live state. A nil clock uses the real clock.
func NewParser(cfg Config, clock clockwork.Clock, log *logger.FeedLogger) *Parser {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Parser{
		cfg:   cfg,
		clock: clock,
		state: newLiveState(),
		log:   log,
	}
}

// State returns the live state the parser maintains
func (p *Parser) State() *LiveState {
	return p.state
}

// Parse applies one feed line and reports whether it changed the live state.
// Lines that are not protocol records, or do not decode, are ignored.
func (p *Parser) Parse(line string) bool {
	applied, _ := p.ParseLine(line)
	return applied
}

// ParseLine is Parse that also reports whether the line's arrival resolved an
// expired crossing window. A record that does not decode still resolves one.
func (p *Parser) ParseLine(line string) (applied, resolved bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false, false
	}

	if fields, ok := splitRecord(line); ok {
		if h, ok := handlers[ParseTag(fields[0])]; ok {
			applied = h(p, fields)
		}
	}
	if !applied && p.log != nil {
		p.log.LogMalformed(line)
	}

	resolved = p.TryResolveWindow(p.clock.Now())
	return applied, resolved
}

// TryResolveWindow resolves the open crossing window once its deadline has passed
func (p *Parser) TryResolveWindow(now time.Time) bool {
	w := &p.state.window
	if !w.active || now.Before(w.deadline) {
		return false
	}
	p.state.resolveWindow()
	return true
}

func (p *Parser) handleSession(f []string) bool {
	name := field(f, 2)
	if name == "" {
		return false
	}
	if name != p.state.SessionName {
		if p.log != nil && p.state.SessionName != "" {
			p.log.LogSessionChange(p.state.SessionName, name)
		}
		p.state.resetSession(name)
	}
	return true
}

func (p *Parser) handleClass(f []string) bool {
	name := field(f, 2)
	if name == "" {
		return false
	}
	p.state.ClassName = name
	return true
}

func (p *Parser) handleMetadata(f []string) bool {
	key := strings.ToUpper(field(f, 1))
	value := field(f, 2)
	switch key {
	case "TRACKNAME", "TRACK":
		p.state.TrackName = value
	case "TRACKLENGTH":
		length, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		p.state.TrackLength = length
	case "MEETING", "EVENT", "EVENTNAME", "TITLE":
		p.state.EventName = value
	default:
		return false
	}
	return true
}

func (p *Parser) handleRegistration(f []string) bool {
	number := field(f, 1)
	if number == "" {
		return false
	}
	k := p.state.kart(number)
	k.Driver.Transponder = field(f, 2)
	k.Driver.First = field(f, 4)
	k.Driver.Last = field(f, 5)
	k.Driver.Chassis = field(f, 6)
	k.Driver.Active = field(f, 7) == "1"
	return true
}

func (p *Parser) handleCompetitor(f []string) bool {
	number := field(f, 1)
	if number == "" {
		return false
	}
	k := p.state.kart(number)
	k.Driver.First = field(f, 4)
	k.Driver.Last = field(f, 5)
	k.Driver.Chassis = field(f, 6)
	k.Driver.Team = field(f, 7)
	return true
}

func (p *Parser) handleFlag(f []string) bool {
	if len(f) < 6 {
		return false
	}
	p.state.Flag = field(f, 5)
	return true
}

// handleCrossing derives lap times from successive elapsed crossings and feeds the window
func (p *Parser) handleCrossing(f []string) bool {
	pos, ok := intField(f, 1)
	number := field(f, 2)
	if !ok || number == "" {
		return false
	}
	laps, lapsOK := intField(f, 3)
	elapsed, elapsedOK := ParseTime(field(f, 4))

	k := p.state.kart(number)
	if lapsOK && pos == 1 && laps > p.state.window.highestOpened {
		p.state.openWindow(laps, p.clock.Now(), p.cfg.CrossingWindow)
	}
	if pos > 0 {
		k.Position = pos
	}

	if lapsOK && elapsedOK {
		advanced := laps > k.CrossingLap
		if advanced && k.HasCrossing {
			p.acceptLap(k, (elapsed-k.Elapsed)/time.Duration(laps-k.CrossingLap), laps)
		}
		if advanced || !k.HasCrossing {
			k.Elapsed = elapsed
			k.CrossingLap = laps
			k.HasCrossing = true
		}
	}
	if lapsOK {
		k.Laps = max(k.Laps, laps)
		k.crossingPosition = pos
		p.state.observe(number, pos, laps, elapsed)
	}
	return true
}

// handlePractice applies a position and best lap record
func (p *Parser) handlePractice(f []string) bool {
	pos, ok := intField(f, 1)
	number := field(f, 2)
	if !ok || number == "" {
		return false
	}
	k := p.state.kart(number)
	if pos > 0 {
		k.Position = pos
	}
	if best, ok := ParseTime(field(f, 4)); ok {
		p.acceptBest(k, best)
	}
	return true
}

// handlePassing applies a position, lap count and last lap record
func (p *Parser) handlePassing(f []string) bool {
	number := field(f, 2)
	if number == "" {
		return false
	}
	k := p.state.kart(number)
	if pos, ok := intField(f, 1); ok && pos > 0 {
		k.Position = pos
	}
	laps, lapsOK := intField(f, 3)
	if lapsOK && laps > k.Laps {
		k.Laps = laps
	}
	if last, ok := ParseTime(field(f, 4)); ok {
		lapOf := k.Laps
		if lapsOK {
			lapOf = laps
		}
		p.acceptLap(k, last, lapOf)
	}
	if status, ok := intField(f, 5); ok {
		k.Status = status
	}
	return true
}

// handleResult applies a position, lap count, best lap and status record
func (p *Parser) handleResult(f []string) bool {
	number := field(f, 2)
	if number == "" {
		return false
	}
	k := p.state.kart(number)
	if pos, ok := intField(f, 1); ok && pos > 0 {
		k.Position = pos
	}
	if laps, ok := intField(f, 3); ok && laps > k.Laps {
		k.Laps = laps
	}
	if best, ok := ParseTime(field(f, 4)); ok {
		p.acceptBest(k, best)
	}
	if status, ok := intField(f, 5); ok {
		k.Status = status
	}
	return true
}

// handleFastest updates the best lap only
func (p *Parser) handleFastest(f []string) bool {
	number := field(f, 1)
	if number == "" {
		return false
	}
	k := p.state.kart(number)
	if best, ok := ParseTime(field(f, 2)); ok {
		p.acceptBest(k, best)
	}
	return true
}

func (p *Parser) plausible(lap time.Duration) bool {
	return lap >= p.cfg.MinLap && lap <= p.cfg.MaxLap
}

// acceptLap records a lap as the kart's last lap when it falls in the plausible band
func (p *Parser) acceptLap(k *Kart, lap time.Duration, lapOf int) bool {
	if !p.plausible(lap) {
		if p.OnLapRejected != nil {
			p.OnLapRejected(k.Number, lap)
		}
		return false
	}
	k.LastLap = lap
	k.LastLapOf = lapOf
	p.acceptBest(k, lap)
	return true
}

func (p *Parser) acceptBest(k *Kart, lap time.Duration) {
	if !p.plausible(lap) {
		return
	}
	if k.BestLap == 0 || lap < k.BestLap {
		k.BestLap = lap
	}
}
