package official

import (
	"github.com/yourusername/kart-timing/internal/models"
)

// DefaultSchemeName is the scheme seeded when a publish finds none
const DefaultSchemeName = "SKUSA_SN28"

// DefaultFieldSize is the number of positions the default scheme covers
const DefaultFieldSize = 120

// HeatScale scores P1 as 0 and every later position as its own number
func HeatScale(fieldSize int) map[int]int {
	scale := make(map[int]int, fieldSize)
	if fieldSize < 1 {
		return scale
	}
	scale[1] = 0
	for pos := 2; pos <= fieldSize; pos++ {
		scale[pos] = pos
	}
	return scale
}

// QualifyingScale stores position n as n hundredths of a point
func QualifyingScale(fieldSize int) map[int]int {
	scale := make(map[int]int, fieldSize)
	for pos := 1; pos <= fieldSize; pos++ {
		scale[pos] = pos
	}
	return scale
}

// DefaultScheme builds the default scheme and its heat and qualifying scales
func DefaultScheme(fieldSize int) (*models.PointScheme, []models.PointScale) {
	scheme := &models.PointScheme{Name: DefaultSchemeName}

	heat, qualifying := HeatScale(fieldSize), QualifyingScale(fieldSize)
	scales := make([]models.PointScale, 0, 2*max(fieldSize, 0))
	for pos := 1; pos <= fieldSize; pos++ {
		scales = append(scales,
			models.PointScale{AwardType: models.AwardTypeHeat, Position: pos, Points: heat[pos]},
			models.PointScale{AwardType: models.AwardTypeQualifying, Position: pos, Points: qualifying[pos]},
		)
	}
	return scheme, scales
}
