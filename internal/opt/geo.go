package opt

import (
	"fmt"
	"math"
	"strings"
)

const (
	earthRadiusKm = 6371.0
	kmPerDegree   = 111.0
)

// Unreachable is returned by the metrics when either point is invalid.
const Unreachable = math.MaxFloat64

// Metric returns the distance in kilometres between two coordinates.
type Metric func(a, b Coordinate) float64

// Haversine is the great-circle distance on a sphere of radius 6371 km.
func Haversine(a, b Coordinate) float64 {
	if !a.Valid() || !b.Valid() {
		return Unreachable
	}
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Equirectangular is a flat-earth approximation that is good enough for
// city-sized plans and cheaper than Haversine.
func Equirectangular(a, b Coordinate) float64 {
	if !a.Valid() || !b.Valid() {
		return Unreachable
	}
	meanLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	dx := (b.Lng - a.Lng) * kmPerDegree * math.Cos(meanLat)
	dy := (b.Lat - a.Lat) * kmPerDegree
	return math.Sqrt(dx*dx + dy*dy)
}

// MetricByName resolves a metric name; empty selects Haversine.
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "haversine":
		return Haversine, nil
	case "equirectangular", "euclidean":
		return Equirectangular, nil
	default:
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
}
