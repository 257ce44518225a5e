package region

import (
	"errors"
	"fmt"
	"strconv"
)

// Zone is one of the five Norwegian electricity spot-price regions.
type Zone string

const (
	NO1 Zone = "NO1" // Oslo / Øst-Norge
	NO2 Zone = "NO2" // Kristiansand / Sør-Norge
	NO3 Zone = "NO3" // Trondheim / Midt-Norge
	NO4 Zone = "NO4" // Tromsø / Nord-Norge
	NO5 Zone = "NO5" // Bergen / Vest-Norge
)

// ErrInvalidPostalCode is returned when the input is not a 4-digit postal code.
var ErrInvalidPostalCode = errors.New("invalid postal code")

// All returns every price zone.
func All() []Zone {
	return []Zone{NO1, NO2, NO3, NO4, NO5}
}

// Valid reports whether z is a known price zone code.
func Valid(z Zone) bool {
	switch z {
	case NO1, NO2, NO3, NO4, NO5:
		return true
	}
	return false
}

// ForPostalCode maps a Norwegian postal code to its electricity price zone.
// The two-digit prefix ranges are exhaustive over 00-99, so every well-formed
// postal code maps to exactly one zone.
func ForPostalCode(postnummer string) (Zone, error) {
	if len(postnummer) != 4 {
		return "", fmt.Errorf("%w: %q is not 4 digits", ErrInvalidPostalCode, postnummer)
	}
	for _, r := range postnummer {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidPostalCode, postnummer)
		}
	}

	prefix, err := strconv.Atoi(postnummer[:2])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPostalCode, postnummer)
	}

	switch {
	case prefix <= 39:
		return NO1, nil
	case prefix >= 44 && prefix <= 49:
		return NO2, nil
	case prefix >= 70 && prefix <= 79:
		return NO3, nil
	case prefix >= 80:
		return NO4, nil
	default:
		// 40-43 and 50-69.
		return NO5, nil
	}
}
