package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionType is the kind of timed segment
type SessionType string

const (
	SessionTypePractice   SessionType = "Practice"
	SessionTypeQualifying SessionType = "Qualifying"
	SessionTypeHeat       SessionType = "Heat"
	SessionTypePrefinal   SessionType = "Prefinal"
	SessionTypeFinal      SessionType = "Final"
)

// IsRace reports whether the session is ranked by running order rather than best lap
func (t SessionType) IsRace() bool {
	switch t {
	case SessionTypeHeat, SessionTypePrefinal, SessionTypeFinal:
		return true
	}
	return false
}

// SessionStatus tracks a session through live, provisional and official states
type SessionStatus string

const (
	SessionStatusLive        SessionStatus = "live"
	SessionStatusProvisional SessionStatus = "provisional"
	SessionStatusOfficial    SessionStatus = "official"
)

// Session represents one timed segment of an event class
type Session struct {
	ID          uuid.UUID     `db:"id" json:"id" validate:"required"`
	EventID     uuid.UUID     `db:"event_id" json:"event_id" validate:"required"`
	ClassID     uuid.UUID     `db:"class_id" json:"class_id" validate:"required"`
	Name        string        `db:"name" json:"name" validate:"required"`
	SessionType SessionType   `db:"session_type" json:"session_type" validate:"required,oneof=Practice Qualifying Heat Prefinal Final"`
	Status      SessionStatus `db:"status" json:"status" validate:"required,oneof=live provisional official"`
	StartedAt   *time.Time    `db:"started_at" json:"started_at"`
	EndedAt     *time.Time    `db:"ended_at" json:"ended_at"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// AwardType returns the point scale a published session earns, or empty if none
func (s *Session) AwardType() AwardType {
	if s.SessionType == SessionTypeQualifying {
		return AwardTypeQualifying
	}
	if s.SessionType == SessionTypeHeat || strings.Contains(strings.ToLower(s.Name), "heat") {
		return AwardTypeHeat
	}
	return ""
}
