package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Driver represents a unique person identified by first and last name
type Driver struct {
	ID          uuid.UUID `db:"id" json:"id" validate:"required"`
	FirstName   string    `db:"first_name" json:"first_name" validate:"required"`
	LastName    string    `db:"last_name" json:"last_name"`
	Team        string    `db:"team" json:"team"`
	Chassis     string    `db:"chassis" json:"chassis"`
	Transponder string    `db:"transponder" json:"transponder"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name of the driver
func (d *Driver) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// Entry binds a driver to a kart number within an event class
type Entry struct {
	ID        uuid.UUID `db:"id" json:"id" validate:"required"`
	EventID   uuid.UUID `db:"event_id" json:"event_id" validate:"required"`
	ClassID   uuid.UUID `db:"class_id" json:"class_id" validate:"required"`
	DriverID  uuid.UUID `db:"driver_id" json:"driver_id" validate:"required"`
	Number    string    `db:"number" json:"number" validate:"required"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
