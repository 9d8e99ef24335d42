package geo

import (
	"errors"
	"math"
	"strings"
)

// Point is a geographic location with an optional human-readable address.
type Point struct {
	Latitude  float64
	Longitude float64
	Address   string
}

var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
)

// NewPoint validates coordinates and returns a Point.
func NewPoint(lat, lng float64, address string) (Point, error) {
	if lat < -90 || lat > 90 {
		return Point{}, ErrLatitudeOutOfRange
	}
	if lng < -180 || lng > 180 {
		return Point{}, ErrLongitudeOutOfRange
	}
	return Point{Latitude: lat, Longitude: lng, Address: strings.TrimSpace(address)}, nil
}

// HaversineKM returns the great-circle distance between two points in kilometers.
func HaversineKM(a, b Point) float64 {
	const earthRadiusKM = 6371.0

	la1 := a.Latitude * math.Pi / 180
	la2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

// EstimateDurationMinutes converts a distance to an ETA with an average-city-speed heuristic.
func EstimateDurationMinutes(distanceKM float64) int {
	const avgSpeedKMH = 21.0

	minutes := (distanceKM / avgSpeedKMH) * 60.0
	m := int(math.Ceil(minutes))
	if m < 1 {
		return 1
	}
	return m
}
