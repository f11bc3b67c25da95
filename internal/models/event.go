package models

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a race meeting
type Event struct {
	ID        uuid.UUID  `db:"id" json:"id" validate:"required"`
	Name      string     `db:"name" json:"name" validate:"required"`
	StartDate *time.Time `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date"`
	Location  string     `db:"location" json:"location"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// RaceClass represents a competition class within an event
type RaceClass struct {
	ID        uuid.UUID `db:"id" json:"id" validate:"required"`
	EventID   uuid.UUID `db:"event_id" json:"event_id" validate:"required"`
	Name      string    `db:"name" json:"name" validate:"required"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
