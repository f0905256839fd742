package estimator

import "math"

const (
	earthRadiusKm     = 6371.0
	earthRadiusMeters = 6371e3
)

// HaversineKm returns the great-circle distance in kilometres, rounded to 3 decimals.
func HaversineKm(a, b Point) float64 {
	d := haversine(a, b, earthRadiusKm)
	return math.Round(d*1000) / 1000
}

// HaversineMeters returns the unrounded great-circle distance in metres.
func HaversineMeters(a, b Point) float64 {
	return haversine(a, b, earthRadiusMeters)
}

func haversine(a, b Point, radius float64) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return radius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FareFallback is the locally computed fare for distanceKm.
func FareFallback(distanceKm float64) float64 {
	return 20 + distanceKm*8
}

// ETAFallback is the locally computed ETA in seconds at 30 km/h, with its confidence.
func ETAFallback(distanceKm float64) (int, float64) {
	return int(math.Round(distanceKm / 30 * 3600)), 0.5
}
