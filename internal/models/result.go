package models

import (
	"time"

	"github.com/google/uuid"
)

// ResultBasis classifies a result or award as live or published
type ResultBasis string

const (
	BasisProvisional ResultBasis = "provisional"
	BasisOfficial    ResultBasis = "official"
)

// ResultStatus is the classification code of a driver in a session
type ResultStatus string

const (
	ResultStatusOK  ResultStatus = "OK"
	ResultStatusDNF ResultStatus = "DNF"
	ResultStatusDNS ResultStatus = "DNS"
	ResultStatusDQ  ResultStatus = "DQ"
)

// ResultStatusFromCode maps the feed's numeric status to a result status
func ResultStatusFromCode(code int) ResultStatus {
	switch code {
	case 1:
		return ResultStatusDNF
	case 2:
		return ResultStatusDNS
	case 3:
		return ResultStatusDQ
	default:
		return ResultStatusOK
	}
}

// ProvisionalVersion is the fixed version of the single live result row
const ProvisionalVersion = 1

// Result is a ranking row for a driver in a session
type Result struct {
	ID            uuid.UUID    `db:"id" json:"id" validate:"required"`
	SessionID     uuid.UUID    `db:"session_id" json:"session_id" validate:"required"`
	DriverID      uuid.UUID    `db:"driver_id" json:"driver_id" validate:"required"`
	Position      *int         `db:"position" json:"position"`
	BestLapMs     *int64       `db:"best_lap_ms" json:"best_lap_ms"`
	LastLapMs     *int64       `db:"last_lap_ms" json:"last_lap_ms"`
	TotalTimeMs   *int64       `db:"total_time_ms" json:"total_time_ms"`
	GapToLeaderMs *int64       `db:"gap_to_leader_ms" json:"gap_to_leader_ms"`
	Status        ResultStatus `db:"status" json:"status" validate:"required,oneof=OK DNF DNS DQ"`
	Basis         ResultBasis  `db:"basis" json:"basis" validate:"required,oneof=provisional official"`
	Version       int          `db:"version" json:"version" validate:"gte=1"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
