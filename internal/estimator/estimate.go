// Package estimator produces fare and ETA estimates from the external
// estimation service, falling back to straight-line figures when it is down.
package estimator

import "time"

// Currency of every fare produced here.
const Currency = "INR"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within latitude and longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Request describes a trip to estimate.
type Request struct {
	Pickup       Point
	Destination  Point
	TrafficLevel float64 // 1.0 is normal traffic
	At           time.Time
}

func (r Request) traffic() float64 {
	if r.TrafficLevel == 0 {
		return 1.0
	}
	return r.TrafficLevel
}

// Estimate is a fare and ETA for one trip.
type Estimate struct {
	Fare       float64 `json:"fare"`
	DistanceKm float64 `json:"distance_km"`
	Currency   string  `json:"currency"`
	ETASeconds int     `json:"eta_seconds"`
	Confidence float64 `json:"confidence"`
}

// ETAMinutes rounds the ETA to whole minutes.
func (e Estimate) ETAMinutes() int {
	return (e.ETASeconds + 30) / 60
}

// Result is either Authoritative or Fallback.
type Result interface {
	Estimate() Estimate
	isResult()
}

// Authoritative is an estimate computed entirely by the estimation service.
type Authoritative struct {
	Value Estimate
}

func (a Authoritative) Estimate() Estimate { return a.Value }
func (Authoritative) isResult()            {}

// Fallback is an estimate where at least one half was computed locally.
type Fallback struct {
	Value        Estimate
	FareFallback bool
	ETAFallback  bool
}

func (f Fallback) Estimate() Estimate { return f.Value }
func (Fallback) isResult()            {}

// Variant names a result's kind for logs, metrics and cache entries.
func Variant(r Result) string {
	if _, ok := r.(Fallback); ok {
		return "fallback"
	}
	return "authoritative"
}

// IsFallback reports whether r was computed at least partly locally.
func IsFallback(r Result) bool {
	_, ok := r.(Fallback)
	return ok
}
