package planner

import (
	"routeplan/internal/model"
	"routeplan/internal/opt"
)

func toCoordinate(p model.GeoPoint) opt.Coordinate {
	return opt.Coordinate{Lat: p.Lat, Lng: p.Lng}
}

func toCustomers(cs []model.Customer) []opt.Customer {
	out := make([]opt.Customer, len(cs))
	for i, c := range cs {
		out[i] = opt.Customer{ID: c.ID, Location: toCoordinate(c.Location), Demand: c.Demand}
	}
	return out
}

func toVehicles(vs []model.Vehicle) []opt.Vehicle {
	out := make([]opt.Vehicle, len(vs))
	for i, v := range vs {
		out[i] = opt.Vehicle{ID: v.ID, Capacity: v.Capacity}
	}
	return out
}

func buildPlan(tenantID, planDate, metric string, snap snapshot, sol opt.Solution) model.Plan {
	customers := make(map[string]model.Customer, len(snap.customers))
	for _, c := range snap.customers {
		customers[c.ID] = c
	}
	vehicles := make(map[string]model.Vehicle, len(snap.vehicles))
	for _, v := range snap.vehicles {
		vehicles[v.ID] = v
	}

	plan := model.Plan{
		ID:              sol.PlanID,
		TenantID:        tenantID,
		PlanDate:        planDate,
		Metric:          metric,
		Depot:           snap.depot.Location,
		Routes:          make([]model.PlanRoute, 0, len(sol.Routes)),
		Unassigned:      append([]string{}, sol.Unassigned...),
		TotalDistanceKm: sol.TotalDistance,
		DurationMs:      sol.Duration.Milliseconds(),
		Stats:           model.PlanStats(sol.Stats),
	}
	for i, r := range sol.Routes {
		v := vehicles[r.VehicleID]
		pr := model.PlanRoute{
			Seq:         i + 1,
			VehicleID:   r.VehicleID,
			VehicleName: v.Name,
			Capacity:    v.Capacity,
			Demand:      r.Demand,
			DistanceKm:  r.Distance,
			Stops:       make([]model.PlanStop, len(r.Stops)),
		}
		if v.Capacity > 0 {
			pr.Utilization = r.Demand / v.Capacity
		}
		for k, id := range r.Stops {
			c := customers[id]
			pr.Stops[k] = model.PlanStop{Seq: k + 1, CustomerID: id, Name: c.Name, Location: c.Location, Demand: c.Demand}
		}
		plan.TotalDemand += r.Demand
		plan.Routes = append(plan.Routes, pr)
	}
	return plan
}
