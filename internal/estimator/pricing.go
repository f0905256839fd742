package estimator

import (
	"math"
	"strings"
)

// Rate is the base fare and per-kilometre price of a vehicle type.
type Rate struct {
	Base  float64
	PerKm float64
}

// Rates are keyed by lowercase vehicle type.
var Rates = map[string]Rate{
	"bike":    {Base: 15, PerKm: 8},
	"auto":    {Base: 25, PerKm: 12},
	"car":     {Base: 50, PerKm: 18},
	"suv":     {Base: 80, PerKm: 25},
	"carpool": {Base: 30, PerKm: 10},
	"shuttle": {Base: 20, PerKm: 6},
}

const defaultRateType = "car"

// RateFor returns the rate of vehicleType, defaulting to car.
func RateFor(vehicleType string) Rate {
	if r, ok := Rates[strings.ToLower(vehicleType)]; ok {
		return r
	}
	return Rates[defaultRateType]
}

// FareFor prices a trip of distanceKm in vehicleType, rounded to whole rupees.
func FareFor(vehicleType string, distanceKm float64) float64 {
	r := RateFor(vehicleType)
	return math.Round(r.Base + distanceKm*r.PerKm)
}

var driverTypes = map[string][]string{
	"bike":    {"Bike", "Scooter"},
	"auto":    {"Auto", "Rickshaw"},
	"car":     {"Sedan", "Hatchback"},
	"suv":     {"SUV"},
	"carpool": {"Sedan", "Hatchback", "SUV"},
	"shuttle": {"SUV", "Van", "Minibus"},
}

// MatchingDriverTypes maps a rider's vehicle choice to the driver vehicle types that may serve it.
func MatchingDriverTypes(vehicleType string) []string {
	if types, ok := driverTypes[strings.ToLower(vehicleType)]; ok {
		out := make([]string, len(types))
		copy(out, types)
		return out
	}
	return []string{"Sedan"}
}
