package solar

import (
	"github.com/haavardst/solar-estimation/internal/region"
)

// Orientation is the compass direction a roof surface faces.
type Orientation string

const (
	OrientationSouth Orientation = "south"
	OrientationWest  Orientation = "west"
	OrientationEast  Orientation = "east"
	OrientationNorth Orientation = "north"
)

// Aspect returns the panel azimuth in degrees from south as the PVGIS API
// encodes it (0 = south, 90 = west, -90 = east, 180 = north). Unknown
// orientations fall back to south.
func (o Orientation) Aspect() int {
	switch o {
	case OrientationWest:
		return 90
	case OrientationEast:
		return -90
	case OrientationNorth:
		return 180
	default:
		return 0
	}
}

// Location is a resolved address point. Immutable once resolved from an
// address lookup.
type Location struct {
	Name       string      `json:"name"`
	Lat        float64     `json:"lat"`
	Lon        float64     `json:"lon"`
	PostalCode string      `json:"postalCode"`
	Place      string      `json:"place"`
	IsHouse    bool        `json:"isHouse"`
	Zone       region.Zone `json:"zone"`
}

// RoofSurface is a single named roof plane (takflate). Surfaces are added or
// removed wholesale, never edited in place.
type RoofSurface struct {
	Name        string      `json:"name" validate:"required"`
	AreaM2      float64     `json:"areaM2" validate:"required,gt=0"`
	TiltDeg     int         `json:"tiltDeg" validate:"gte=0,lte=89"`
	Orientation Orientation `json:"orientation" validate:"required,oneof=south west east north"`
}

// MonthlySeries holds exactly 12 values, index 0 = January.
type MonthlySeries [12]float64

// Average returns the mean of the 12 values.
func (s MonthlySeries) Average() float64 {
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / 12.0
}

// ProductionEstimate is an adjusted production figure for one roof surface.
// Derived, never persisted; recomputed on demand behind in-memory caches.
type ProductionEstimate struct {
	AnnualKWh  float64        `json:"annualKWh"`
	MonthlyKWh *MonthlySeries `json:"monthlyKWh,omitempty"`
}

// MonthlySaving is the estimated saving for one month. Month is 1-based.
type MonthlySaving struct {
	Month     int     `json:"month"`
	SavingsKr float64 `json:"savingsKr"`
}

// SavingsResult summarises a profitability calculation. PaybackYears is
// carried on the wire but is never computed; it stays zero until the payback
// formula is settled.
type SavingsResult struct {
	AnnualSavingsKr float64         `json:"annualSavingsKr"`
	PaybackYears    float64         `json:"paybackYears"`
	Monthly         []MonthlySaving `json:"monthly"`
}
