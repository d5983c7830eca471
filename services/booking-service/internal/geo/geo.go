package geo

import (
	"math"
	"time"
)

const (
	earthRadiusKm   = 6371.0088
	kmPerMile       = 1.609344
	DefaultSpeedMPH = 25.0
)

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm is the great-circle (haversine) distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func KmToMiles(km float64) float64 {
	return km / kmPerMile
}

// DriveTime approximates travel time at a fixed average speed, rounded up to the minute.
func DriveTime(miles, speedMPH float64) time.Duration {
	if speedMPH <= 0 {
		speedMPH = DefaultSpeedMPH
	}
	minutes := math.Ceil(miles / speedMPH * 60)
	return time.Duration(minutes) * time.Minute
}
