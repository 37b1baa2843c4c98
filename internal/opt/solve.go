package opt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// mergeCheckEvery bounds how many savings are processed between
// cancellation checks.
const mergeCheckEvery = 1024

type solver struct {
	dist Metric
	log  zerolog.Logger
}

// Option configures Solve.
type Option func(*solver)

// WithMetric replaces the Haversine distance.
func WithMetric(m Metric) Option {
	return func(s *solver) {
		if m != nil {
			s.dist = m
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(s *solver) { s.log = l }
}

// Solve builds capacitated routes from depot with Clarke-Wright savings,
// assigns vehicles, and refines every route with 2-opt. Inputs are not
// modified. The only error is cancellation of ctx, in which case no
// solution is returned.
func Solve(ctx context.Context, depot Coordinate, customers []Customer, vehicles []Vehicle, opts ...Option) (Solution, error) {
	s := &solver{dist: Haversine, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	start := time.Now()
	sol := Solution{PlanID: uuid.NewString(), Routes: []RouteDetail{}, Unassigned: []string{}}

	if len(customers) == 0 {
		sol.Duration = time.Since(start)
		return sol, nil
	}
	if len(vehicles) == 0 {
		for _, c := range customers {
			sol.Unassigned = append(sol.Unassigned, c.ID)
		}
		sol.Duration = time.Since(start)
		return sol, nil
	}
	custs := append([]Customer(nil), customers...)
	vehs := append([]Vehicle(nil), vehicles...)

	if err := ctx.Err(); err != nil {
		return Solution{}, fmt.Errorf("opt: solve: %w", err)
	}
	table, err := savingsTable(ctx, depot, custs, s.dist)
	if err != nil {
		return Solution{}, fmt.Errorf("opt: savings: %w", err)
	}
	sol.Stats.Savings = len(table)

	m := newMerger(custs, vehs, &sol.Stats)
	for i, sv := range table {
		if i%mergeCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Solution{}, fmt.Errorf("opt: merge: %w", err)
			}
		}
		m.apply(sv)
	}

	routes := assignVehicles(m.active(), vehs, &sol.Stats)
	routes = truncateRoutes(routes, len(vehs), &sol.Stats)
	if err := ctx.Err(); err != nil {
		return Solution{}, fmt.Errorf("opt: assign: %w", err)
	}

	locs := make([]Coordinate, len(custs))
	for i, c := range custs {
		locs[i] = c.Location
	}
	assigned := make([]bool, len(custs))
	distances := make([]float64, 0, len(routes))
	for _, r := range routes {
		if err := ctx.Err(); err != nil {
			return Solution{}, fmt.Errorf("opt: refine: %w", err)
		}
		order, n, err := ImproveOrder2Opt(ctx, depot, locs, r.stops, s.dist)
		if err != nil {
			return Solution{}, fmt.Errorf("opt: refine: %w", err)
		}
		sol.Stats.Improvements += n
		d := roundTrip(depot, locs, order, s.dist)
		stops := make([]string, len(order))
		for k, ci := range order {
			stops[k] = custs[ci].ID
			assigned[ci] = true
		}
		sol.Routes = append(sol.Routes, RouteDetail{
			VehicleID: vehs[r.vehicle].ID,
			Stops:     stops,
			Distance:  d,
			Demand:    r.demand,
		})
		distances = append(distances, d)
	}
	for i, c := range custs {
		if !assigned[i] {
			sol.Unassigned = append(sol.Unassigned, c.ID)
		}
	}
	sol.TotalDistance = floats.Sum(distances)
	sol.Duration = time.Since(start)

	s.log.Debug().
		Str("plan_id", sol.PlanID).
		Int("customers", len(custs)).
		Int("vehicles", len(vehs)).
		Int("routes", len(sol.Routes)).
		Int("unassigned", len(sol.Unassigned)).
		Int("savings", sol.Stats.Savings).
		Int("merges", sol.Stats.Merges).
		Int("truncated", sol.Stats.Truncated).
		Dur("took", sol.Duration).
		Msg("solve finished")
	return sol, nil
}
