package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AwardType names a position-to-points table within a scheme
type AwardType string

const (
	AwardTypeHeat       AwardType = "Heat"
	AwardTypeQualifying AwardType = "Qualifying"
)

// PointScheme is a named scoring scheme
type PointScheme struct {
	ID        uuid.UUID `db:"id" json:"id" validate:"required"`
	Name      string    `db:"name" json:"name" validate:"required"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PointScale is one position-to-points entry of a scheme
type PointScale struct {
	SchemeID  uuid.UUID `db:"scheme_id" json:"scheme_id" validate:"required"`
	AwardType AwardType `db:"award_type" json:"award_type" validate:"required,oneof=Heat Qualifying"`
	Position  int       `db:"position" json:"position" validate:"required,gt=0"`
	Points    int       `db:"points" json:"points" validate:"gte=0"`
}

// PointAward is the scored outcome of one driver for one result version
type PointAward struct {
	ID          uuid.UUID   `db:"id" json:"id" validate:"required"`
	SessionID   uuid.UUID   `db:"session_id" json:"session_id" validate:"required"`
	DriverID    uuid.UUID   `db:"driver_id" json:"driver_id" validate:"required"`
	Basis       ResultBasis `db:"basis" json:"basis" validate:"required"`
	Version     int         `db:"version" json:"version" validate:"gte=1"`
	AwardType   AwardType   `db:"award_type" json:"award_type"`
	Position    *int        `db:"position" json:"position"`
	BasePoints  int         `db:"base_points" json:"base_points"`
	BonusPoints int         `db:"bonus_points" json:"bonus_points"`
	TotalPoints int         `db:"total_points" json:"total_points"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// DisplayPoints renders stored points; qualifying points are stored in hundredths
func DisplayPoints(awardType AwardType, points int) decimal.Decimal {
	if awardType == AwardTypeQualifying {
		return decimal.New(int64(points), -2)
	}
	return decimal.NewFromInt(int64(points))
}

// Display returns the award total in display units
func (a *PointAward) Display() decimal.Decimal {
	return DisplayPoints(a.AwardType, a.TotalPoints)
}
