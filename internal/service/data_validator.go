package service

import (
	"fmt"
	"strings"

	"github.com/yourusername/kart-timing/internal/timing"
)

// DataValidator decides which live karts can be written to storage
type DataValidator struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

// ValidateKart returns the reasons a kart cannot be persisted, or nothing
func (v *DataValidator) ValidateKart(k *timing.Kart) []string {
	var errors []string

	if strings.TrimSpace(k.Number) == "" {
		errors = append(errors, "kart number is required")
	}

	if !k.Driver.HasName() {
		errors = append(errors, "driver name is required")
	}

	if k.Laps < 0 {
		errors = append(errors, fmt.Sprintf("lap count cannot be negative, got %d", k.Laps))
	}

	if k.LastLapOf > k.Laps {
		errors = append(errors, fmt.Sprintf("last lap %d is beyond lap count %d", k.LastLapOf, k.Laps))
	}

	return errors
}

// IsValidSessionName checks the session name is usable as a natural key
func (v *DataValidator) IsValidSessionName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) > 0 && len(name) < 200
}
