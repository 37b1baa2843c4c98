package model

import "time"

// Event types published to brokers and webhook subscribers.
const (
	EventPlanCompleted = "plan.completed"
	EventPlanFailed    = "plan.failed"
)

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Depot is the single start and end point of every route of a tenant.
type Depot struct {
	TenantID  string    `json:"tenantId,omitempty"`
	Name      string    `json:"name" yaml:"name"`
	Address   string    `json:"address,omitempty" yaml:"address"`
	Location  GeoPoint  `json:"location" yaml:"location"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

type Customer struct {
	ID       string   `json:"id" yaml:"id"`
	TenantID string   `json:"tenantId,omitempty" yaml:"-"`
	Name     string   `json:"name" yaml:"name"`
	Address  string   `json:"address,omitempty" yaml:"address"`
	Location GeoPoint `json:"location" yaml:"location"`
	Demand   float64  `json:"demand" yaml:"demand"`
	Notes    string   `json:"notes,omitempty" yaml:"notes"`
}

type Vehicle struct {
	ID          string  `json:"id" yaml:"id"`
	TenantID    string  `json:"tenantId,omitempty" yaml:"-"`
	Name        string  `json:"name" yaml:"name"`
	PlateNumber string  `json:"plateNumber,omitempty" yaml:"plateNumber"`
	Capacity    float64 `json:"capacity" yaml:"capacity"`
}

// PlanRequest asks for a new plan. Inline depot, customers and vehicles
// replace the stored fleet; CustomerIDs and VehicleIDs select a subset of
// the stored records instead.
type PlanRequest struct {
	PlanDate    string     `json:"planDate,omitempty" yaml:"planDate"`
	Metric      string     `json:"metric,omitempty" yaml:"metric"`
	Depot       *Depot     `json:"depot,omitempty" yaml:"depot"`
	Customers   []Customer `json:"customers,omitempty" yaml:"customers"`
	Vehicles    []Vehicle  `json:"vehicles,omitempty" yaml:"vehicles"`
	CustomerIDs []string   `json:"customerIds,omitempty" yaml:"customerIds"`
	VehicleIDs  []string   `json:"vehicleIds,omitempty" yaml:"vehicleIds"`

	// Strict refuses to plan when any feasibility warning applies.
	Strict bool `json:"strict,omitempty" yaml:"strict"`
}

type Plan struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenantId"`
	PlanDate        string        `json:"planDate,omitempty"`
	Metric          string        `json:"metric"`
	Depot           GeoPoint      `json:"depot"`
	CreatedAt       time.Time     `json:"createdAt"`
	Routes          []PlanRoute   `json:"routes"`
	Unassigned      []string      `json:"unassigned"`
	TotalDistanceKm float64       `json:"totalDistanceKm"`
	TotalDemand     float64       `json:"totalDemand"`
	DurationMs      int64         `json:"durationMs"`
	Stats           PlanStats     `json:"stats"`
	Warnings        []PlanWarning `json:"warnings,omitempty"`
}

// Feasibility warning codes.
const (
	WarnNoCustomers        = "no_customers"
	WarnNoVehicles         = "no_vehicles"
	WarnDemandExceedsFleet = "demand_exceeds_fleet"
	WarnCustomerTooLarge   = "customer_exceeds_capacity"
)

// PlanWarning flags a fleet selection that cannot serve every customer.
type PlanWarning struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	CustomerID string `json:"customerId,omitempty"`
}

type PlanRoute struct {
	Seq         int        `json:"seq"`
	VehicleID   string     `json:"vehicleId"`
	VehicleName string     `json:"vehicleName,omitempty"`
	Capacity    float64    `json:"capacity"`
	Demand      float64    `json:"demand"`
	Utilization float64    `json:"utilization"`
	DistanceKm  float64    `json:"distanceKm"`
	Stops       []PlanStop `json:"stops"`
}

type PlanStop struct {
	Seq        int      `json:"seq"`
	CustomerID string   `json:"customerId"`
	Name       string   `json:"name,omitempty"`
	Location   GeoPoint `json:"location"`
	Demand     float64  `json:"demand"`
}

// PlanStats mirrors the solver counters.
type PlanStats struct {
	Savings         int `json:"savings"`
	Merges          int `json:"merges"`
	SkippedCapacity int `json:"skippedCapacity"`
	SkippedEndpoint int `json:"skippedEndpoint"`
	Dropped         int `json:"dropped"`
	Truncated       int `json:"truncated"`
	Improvements    int `json:"improvements"`
}

// PlanSummary is the list view of a plan.
type PlanSummary struct {
	ID              string    `json:"id"`
	PlanDate        string    `json:"planDate,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	Routes          int       `json:"routes"`
	Unassigned      int       `json:"unassigned"`
	TotalDistanceKm float64   `json:"totalDistanceKm"`
}

func (p Plan) Summary() PlanSummary {
	return PlanSummary{
		ID:              p.ID,
		PlanDate:        p.PlanDate,
		CreatedAt:       p.CreatedAt,
		Routes:          len(p.Routes),
		Unassigned:      len(p.Unassigned),
		TotalDistanceKm: p.TotalDistanceKm,
	}
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Event is a plan lifecycle notification streamed to SSE and WebSocket clients.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}
