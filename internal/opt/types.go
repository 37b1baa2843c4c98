package opt

import (
	"encoding/json"
	"math"
	"time"
)

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the coordinate lies within the WGS84 degree ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Customer is a delivery point with a non-negative demand.
type Customer struct {
	ID       string     `json:"id" yaml:"id"`
	Location Coordinate `json:"location" yaml:"location"`
	Demand   float64    `json:"demand" yaml:"demand"`
}

// Vehicle is a fleet member with a positive capacity.
type Vehicle struct {
	ID       string  `json:"id" yaml:"id"`
	Capacity float64 `json:"capacity" yaml:"capacity"`
}

// RouteDetail is one finalized route served by a single vehicle. A route
// touching an invalid coordinate has an infinite Distance.
type RouteDetail struct {
	VehicleID string   `json:"vehicleId"`
	Stops     []string `json:"stops"`
	Distance  float64  `json:"distance"`
	Demand    float64  `json:"demand"`
}

// Stats counts what happened inside one Solve call.
type Stats struct {
	Savings         int `json:"savings"`
	Merges          int `json:"merges"`
	SkippedCapacity int `json:"skippedCapacity"`
	SkippedEndpoint int `json:"skippedEndpoint"`
	Dropped         int `json:"dropped"`
	Truncated       int `json:"truncated"`
	Improvements    int `json:"improvements"`
}

// Solution is the result of a Solve call. TotalDistance is infinite when
// any route is unreachable; both encode as null in JSON.
type Solution struct {
	PlanID        string        `json:"planId"`
	Routes        []RouteDetail `json:"routes"`
	Unassigned    []string      `json:"unassigned"`
	TotalDistance float64       `json:"totalDistance"`
	Duration      time.Duration `json:"duration"`
	Stats         Stats         `json:"stats"`
}

// MarshalJSON writes an unreachable distance as null.
func (r RouteDetail) MarshalJSON() ([]byte, error) {
	type plain RouteDetail
	return json.Marshal(struct {
		plain
		Distance *float64 `json:"distance"`
	}{plain(r), finite(r.Distance)})
}

// MarshalJSON writes an unreachable total as null.
func (s Solution) MarshalJSON() ([]byte, error) {
	type plain Solution
	return json.Marshal(struct {
		plain
		TotalDistance *float64 `json:"totalDistance"`
	}{plain(s), finite(s.TotalDistance)})
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
