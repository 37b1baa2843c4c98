package opt

import "sort"

// route is a segment that holds a vehicle.
type route struct {
	stops   []int
	demand  float64
	vehicle int
}

// assignVehicles gives every segment a vehicle, heaviest segment first.
// Segments that acquired a vehicle while merging keep it without touching
// the pool; the rest take the tightest-fitting unused vehicle. Segments
// nothing fits are dropped.
func assignVehicles(segs []segment, vehicles []Vehicle, stats *Stats) []route {
	ordered := append([]segment(nil), segs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].demand > ordered[j].demand })

	pool := make([]int, len(vehicles))
	for i := range pool {
		pool[i] = i
	}
	sort.SliceStable(pool, func(i, j int) bool { return vehicles[pool[i]].Capacity < vehicles[pool[j]].Capacity })

	out := make([]route, 0, len(ordered))
	for _, s := range ordered {
		if len(s.stops) == 0 {
			continue
		}
		if s.vehicle != noVehicle {
			out = append(out, route{stops: s.stops, demand: s.demand, vehicle: s.vehicle})
			continue
		}
		picked := -1
		for k, v := range pool {
			if vehicles[v].Capacity >= s.demand {
				picked = k
				break
			}
		}
		if picked < 0 {
			stats.Dropped++
			continue
		}
		out = append(out, route{stops: s.stops, demand: s.demand, vehicle: pool[picked]})
		pool = append(pool[:picked], pool[picked+1:]...)
	}
	return out
}

// truncateRoutes keeps at most limit routes, preferring the highest total
// demand. Several merged segments can share one vehicle, so this is where the
// fleet size is finally enforced. It is a tie-break, not an optimisation: a
// capacity-valid route may be discarded while a different selection would
// have served more demand.
func truncateRoutes(routes []route, limit int, stats *Stats) []route {
	if len(routes) <= limit {
		return routes
	}
	kept := append([]route(nil), routes...)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].demand > kept[j].demand })
	stats.Truncated += len(kept) - limit
	return kept[:limit]
}
