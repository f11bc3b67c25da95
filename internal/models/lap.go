package models

import (
	"time"

	"github.com/google/uuid"
)

// Lap is one completed lap; rows are append-only
type Lap struct {
	ID         uuid.UUID `db:"id" json:"id" validate:"required"`
	SessionID  uuid.UUID `db:"session_id" json:"session_id" validate:"required"`
	DriverID   uuid.UUID `db:"driver_id" json:"driver_id" validate:"required"`
	LapNumber  int       `db:"lap_number" json:"lap_number" validate:"required,gt=0"`
	DurationMs int64     `db:"duration_ms" json:"duration_ms" validate:"gt=0"`
	Valid      bool      `db:"valid" json:"valid"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
