package planner

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"routeplan/internal/model"
)

func validPoint(p model.GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// validate reports every problem with the snapshot at once.
func validate(depot model.Depot, customers []model.Customer, vehicles []model.Vehicle) error {
	var errs []error
	if !validPoint(depot.Location) {
		errs = append(errs, invalid("depot location %.6f,%.6f out of range", depot.Location.Lat, depot.Location.Lng))
	}
	seen := make(map[string]struct{}, len(customers))
	for i, c := range customers {
		switch id := strings.TrimSpace(c.ID); {
		case id == "":
			errs = append(errs, invalid("customers[%d]: id is required", i))
		default:
			if _, dup := seen[id]; dup {
				errs = append(errs, invalid("customer %s: duplicate id", id))
			}
			seen[id] = struct{}{}
		}
		if !validPoint(c.Location) {
			errs = append(errs, invalid("customer %s: location %.6f,%.6f out of range", c.ID, c.Location.Lat, c.Location.Lng))
		}
		if !finite(c.Demand) || c.Demand < 0 {
			errs = append(errs, invalid("customer %s: demand must be >= 0", c.ID))
		}
	}
	seen = make(map[string]struct{}, len(vehicles))
	for i, v := range vehicles {
		switch id := strings.TrimSpace(v.ID); {
		case id == "":
			errs = append(errs, invalid("vehicles[%d]: id is required", i))
		default:
			if _, dup := seen[id]; dup {
				errs = append(errs, invalid("vehicle %s: duplicate id", id))
			}
			seen[id] = struct{}{}
		}
		if !finite(v.Capacity) || v.Capacity <= 0 {
			errs = append(errs, invalid("vehicle %s: capacity must be > 0", v.ID))
		}
	}
	return errors.Join(errs...)
}

// selectByID keeps the records named in ids, in the order of ids.
func selectByID[T any](all []T, ids []string, key func(T) string, kind string) ([]T, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]T, len(all))
	for _, r := range all {
		byID[key(r)] = r
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, invalid("unknown %s id %s", kind, id)
		}
		out = append(out, r)
	}
	return out, nil
}
