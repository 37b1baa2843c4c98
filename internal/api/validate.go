package api

import (
	"fmt"
	"math"
	"net/url"

	"routeplan/internal/model"
)

func validLocation(p model.GeoPoint) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("location %.6f,%.6f out of range", p.Lat, p.Lng)
	}
	return nil
}

func validateDepot(d *model.Depot) error {
	if err := validLocation(d.Location); err != nil {
		return fmt.Errorf("depot: %w", err)
	}
	return nil
}

// validateCustomers checks an upsert batch; blank ids are assigned by the store.
func validateCustomers(cs []model.Customer) error {
	if len(cs) == 0 {
		return fmt.Errorf("customers must not be empty")
	}
	seen := map[string]struct{}{}
	for i, c := range cs {
		if c.ID != "" {
			if _, dup := seen[c.ID]; dup {
				return fmt.Errorf("customers[%d]: duplicate id %s", i, c.ID)
			}
			seen[c.ID] = struct{}{}
		}
		if err := validLocation(c.Location); err != nil {
			return fmt.Errorf("customers[%d]: %w", i, err)
		}
		if math.IsNaN(c.Demand) || math.IsInf(c.Demand, 0) || c.Demand < 0 {
			return fmt.Errorf("customers[%d]: demand must be >= 0", i)
		}
	}
	return nil
}

func validateVehicles(vs []model.Vehicle) error {
	if len(vs) == 0 {
		return fmt.Errorf("vehicles must not be empty")
	}
	seen := map[string]struct{}{}
	for i, v := range vs {
		if v.ID != "" {
			if _, dup := seen[v.ID]; dup {
				return fmt.Errorf("vehicles[%d]: duplicate id %s", i, v.ID)
			}
			seen[v.ID] = struct{}{}
		}
		if math.IsNaN(v.Capacity) || math.IsInf(v.Capacity, 0) || v.Capacity <= 0 {
			return fmt.Errorf("vehicles[%d]: capacity must be > 0", i)
		}
	}
	return nil
}

func validateSubscription(req *model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) url")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for _, e := range req.Events {
		switch e {
		case model.EventPlanCompleted, model.EventPlanFailed:
		default:
			return fmt.Errorf("unknown event %s", e)
		}
	}
	return nil
}
