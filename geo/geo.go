// Package geo provides the coordinate types and great-circle distance math
// used by the geofence engine. All functions are pure and allocation-free.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the point is the zero value. (0, 0) is in the
// Gulf of Guinea, not a meaningful job or technician location.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// HaversineMeters returns the great-circle distance between a and b in
// meters using the haversine formula on a spherical Earth.
func HaversineMeters(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Within reports whether a and b are at most radiusMeters apart.
func Within(a, b Point, radiusMeters float64) bool {
	return HaversineMeters(a, b) <= radiusMeters
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
