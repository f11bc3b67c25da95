package models

import (
	"time"

	"github.com/google/uuid"
)

// PenaltyType is the kind of steward adjustment
type PenaltyType string

const (
	PenaltyDQ         PenaltyType = "DQ"
	PenaltyPosition   PenaltyType = "POSITION"
	PenaltyTime       PenaltyType = "TIME"
	PenaltyLapInvalid PenaltyType = "LAP_INVALID"
)

// Penalty is an operator-entered adjustment applied at publish time
type Penalty struct {
	ID        uuid.UUID   `db:"id" json:"id" validate:"required"`
	SessionID uuid.UUID   `db:"session_id" json:"session_id" validate:"required"`
	DriverID  uuid.UUID   `db:"driver_id" json:"driver_id" validate:"required"`
	Type      PenaltyType `db:"type" json:"type" validate:"required,oneof=DQ POSITION TIME LAP_INVALID"`
	ValueMs   *int64      `db:"value_ms" json:"value_ms"`
	Positions *int        `db:"positions" json:"positions"`
	LapNumber *int        `db:"lap_number" json:"lap_number"`
	Note      string      `db:"note" json:"note"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
