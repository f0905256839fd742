package domain

import (
	"math"
	"time"
)

const (
	// MaxSavedPlaces caps an account's saved places list.
	MaxSavedPlaces = 50

	// SamePlaceTolerance is the per-axis distance in degrees under which two places are the same.
	SamePlaceTolerance = 0.0001
)

// SavedPlace is a named location saved by an account.
type SavedPlace struct {
	Name    string    `json:"name"`
	Address string    `json:"address,omitempty"`
	Lat     float64   `json:"lat"`
	Lng     float64   `json:"lng"`
	SavedAt time.Time `json:"savedAt"`
}

// SameSpot reports whether the place is within tolerance of (lat, lng).
func (p SavedPlace) SameSpot(lat, lng float64) bool {
	return math.Abs(p.Lat-lat) < SamePlaceTolerance && math.Abs(p.Lng-lng) < SamePlaceTolerance
}

// AddSavedPlace prepends p unless an entry already sits at the same spot.
// It returns the new list and whether p was added.
func AddSavedPlace(places []SavedPlace, p SavedPlace) ([]SavedPlace, bool) {
	for _, existing := range places {
		if existing.SameSpot(p.Lat, p.Lng) {
			return places, false
		}
	}
	out := make([]SavedPlace, 0, len(places)+1)
	out = append(out, p)
	out = append(out, places...)
	if len(out) > MaxSavedPlaces {
		out = out[:MaxSavedPlaces]
	}
	return out, true
}

// RemoveSavedPlaceAt drops the entry at index i. Out of range indexes leave the list unchanged.
func RemoveSavedPlaceAt(places []SavedPlace, i int) []SavedPlace {
	if i < 0 || i >= len(places) {
		return places
	}
	out := make([]SavedPlace, 0, len(places)-1)
	out = append(out, places[:i]...)
	return append(out, places[i+1:]...)
}

// RemoveSavedPlacesNear drops every entry at the same spot as (lat, lng).
func RemoveSavedPlacesNear(places []SavedPlace, lat, lng float64) []SavedPlace {
	out := make([]SavedPlace, 0, len(places))
	for _, p := range places {
		if !p.SameSpot(lat, lng) {
			out = append(out, p)
		}
	}
	return out
}
