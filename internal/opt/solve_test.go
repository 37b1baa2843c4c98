package opt

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableMetric looks distances up by the integer latitude of each point,
// so tests can describe instances no real geometry produces.
func tableMetric(m [][]float64) Metric {
	return func(a, b Coordinate) float64 { return m[int(a.Lat)][int(b.Lat)] }
}

func at(i int) Coordinate { return Coordinate{Lat: float64(i)} }

func routeFor(t *testing.T, sol Solution, customerID string) RouteDetail {
	t.Helper()
	for _, r := range sol.Routes {
		for _, s := range r.Stops {
			if s == customerID {
				return r
			}
		}
	}
	t.Fatalf("customer %s not routed", customerID)
	return RouteDetail{}
}

func TestSolveEmptyCustomers(t *testing.T) {
	sol, err := Solve(context.Background(), Coordinate{}, nil, []Vehicle{{ID: "v", Capacity: 10}})
	require.NoError(t, err)
	assert.Empty(t, sol.Routes)
	assert.Empty(t, sol.Unassigned)
	assert.Zero(t, sol.TotalDistance)
	assert.NotEmpty(t, sol.PlanID)
}

func TestSolveEmptyVehicles(t *testing.T) {
	customers := []Customer{
		{ID: "c1", Location: Coordinate{0, 1}, Demand: 1},
		{ID: "c2", Location: Coordinate{0, 2}, Demand: 1},
		{ID: "c3", Location: Coordinate{0, 3}, Demand: 1},
	}
	sol, err := Solve(context.Background(), Coordinate{}, customers, nil)
	require.NoError(t, err)
	assert.Empty(t, sol.Routes)
	assert.Equal(t, []string{"c1", "c2", "c3"}, sol.Unassigned)
	assert.Zero(t, sol.TotalDistance)
}

func TestSolveSingleVehicleServesOnePair(t *testing.T) {
	customers := []Customer{
		{ID: "c1", Location: Coordinate{0, 1}, Demand: 50},
		{ID: "c2", Location: Coordinate{0, 2}, Demand: 50},
		{ID: "c3", Location: Coordinate{0, 10}, Demand: 50},
	}
	sol, err := Solve(context.Background(), Coordinate{0, 0}, customers, []Vehicle{{ID: "v1", Capacity: 100}})
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.Len(t, sol.Routes[0].Stops, 2)
	assert.Equal(t, 100.0, sol.Routes[0].Demand)
	assert.Equal(t, "v1", sol.Routes[0].VehicleID)
	require.Len(t, sol.Unassigned, 1)

	// c2-c3 saves four degrees of travel, c1-c2 only two
	assert.ElementsMatch(t, []string{"c2", "c3"}, sol.Routes[0].Stops)
	assert.Equal(t, []string{"c1"}, sol.Unassigned)
}

func TestSolveNearerPairMerges(t *testing.T) {
	customers := []Customer{
		{ID: "c1", Location: Coordinate{0, 1}, Demand: 50},
		{ID: "c2", Location: Coordinate{0, 2}, Demand: 50},
		{ID: "c3", Location: Coordinate{0, -10}, Demand: 50},
	}
	sol, err := Solve(context.Background(), Coordinate{0, 0}, customers, []Vehicle{{ID: "v1", Capacity: 100}})
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.ElementsMatch(t, []string{"c1", "c2"}, sol.Routes[0].Stops)
	assert.Equal(t, []string{"c3"}, sol.Unassigned)
}

func TestSolveKeepsHighestDemandSingletons(t *testing.T) {
	// depot is 10 from everyone, customers are 20 apart: no positive saving
	m := [][]float64{
		{0, 10, 10, 10, 10},
		{10, 0, 20, 20, 20},
		{10, 20, 0, 20, 20},
		{10, 20, 20, 0, 20},
		{10, 20, 20, 20, 0},
	}
	customers := []Customer{
		{ID: "c1", Location: at(1), Demand: 10},
		{ID: "c2", Location: at(2), Demand: 20},
		{ID: "c3", Location: at(3), Demand: 30},
		{ID: "c4", Location: at(4), Demand: 40},
	}
	vehicles := []Vehicle{{ID: "v1", Capacity: 50}, {ID: "v2", Capacity: 50}}
	sol, err := Solve(context.Background(), at(0), customers, vehicles, WithMetric(tableMetric(m)))
	require.NoError(t, err)
	require.Len(t, sol.Routes, 2)
	assert.Equal(t, []string{"c4"}, sol.Routes[0].Stops)
	assert.Equal(t, 40.0, sol.Routes[0].Demand)
	assert.Equal(t, []string{"c3"}, sol.Routes[1].Stops)
	assert.Equal(t, 30.0, sol.Routes[1].Demand)
	assert.Equal(t, []string{"c1", "c2"}, sol.Unassigned)
	assert.Zero(t, sol.Stats.Savings)
	assert.InDelta(t, 40.0, sol.TotalDistance, 1e-9)
}

func TestSolveTruncatesRoutesSharingVehicle(t *testing.T) {
	// a-b and c-d are close pairs; both merges pick the only vehicle
	m := [][]float64{
		{0, 10, 10, 10, 10},
		{10, 0, 2, 20, 20},
		{10, 2, 0, 20, 20},
		{10, 20, 20, 0, 2},
		{10, 20, 20, 2, 0},
	}
	customers := []Customer{
		{ID: "a", Location: at(1), Demand: 10},
		{ID: "b", Location: at(2), Demand: 10},
		{ID: "c", Location: at(3), Demand: 10},
		{ID: "d", Location: at(4), Demand: 10},
	}
	sol, err := Solve(context.Background(), at(0), customers, []Vehicle{{ID: "v", Capacity: 100}}, WithMetric(tableMetric(m)))
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.Equal(t, []string{"a", "b"}, sol.Routes[0].Stops)
	assert.Equal(t, []string{"c", "d"}, sol.Unassigned)
	assert.Equal(t, 1, sol.Stats.Truncated)
	assert.InDelta(t, 22.0, sol.TotalDistance, 1e-9)
}

func TestSolveDepotBetweenCustomers(t *testing.T) {
	customers := []Customer{
		{ID: "east", Location: Coordinate{0, 1}, Demand: 10},
		{ID: "west", Location: Coordinate{0, -1}, Demand: 10},
	}
	vehicles := []Vehicle{{ID: "v1", Capacity: 100}, {ID: "v2", Capacity: 100}}
	sol, err := Solve(context.Background(), Coordinate{0, 0}, customers, vehicles, WithMetric(Equirectangular))
	require.NoError(t, err)
	require.Len(t, sol.Routes, 2)
	for _, r := range sol.Routes {
		assert.Len(t, r.Stops, 1)
		assert.InDelta(t, 222.0, r.Distance, 1e-9)
	}
	assert.Empty(t, sol.Unassigned)
	assert.Zero(t, sol.Stats.Merges)
}

func TestSolveDemandAboveEveryCapacity(t *testing.T) {
	customers := []Customer{
		{ID: "huge", Location: Coordinate{0, 1}, Demand: 500},
		{ID: "ok", Location: Coordinate{0, 1.5}, Demand: 5},
	}
	sol, err := Solve(context.Background(), Coordinate{0, 0}, customers, []Vehicle{{ID: "v", Capacity: 100}})
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.Equal(t, []string{"ok"}, sol.Routes[0].Stops)
	assert.Equal(t, []string{"huge"}, sol.Unassigned)
	assert.Equal(t, 1, sol.Stats.Dropped)
}

func TestSolveDistinctCapacitiesTightestFit(t *testing.T) {
	m := [][]float64{
		{0, 10, 10, 10},
		{10, 0, 20, 20},
		{10, 20, 0, 20},
		{10, 20, 20, 0},
	}
	customers := []Customer{
		{ID: "c1", Location: at(1), Demand: 90},
		{ID: "c2", Location: at(2), Demand: 40},
		{ID: "c3", Location: at(3), Demand: 10},
	}
	vehicles := []Vehicle{{ID: "large", Capacity: 100}, {ID: "medium", Capacity: 50}, {ID: "small", Capacity: 20}}
	sol, err := Solve(context.Background(), at(0), customers, vehicles, WithMetric(tableMetric(m)))
	require.NoError(t, err)
	require.Empty(t, sol.Unassigned)
	assert.Equal(t, "large", routeFor(t, sol, "c1").VehicleID)
	assert.Equal(t, "medium", routeFor(t, sol, "c2").VehicleID)
	assert.Equal(t, "small", routeFor(t, sol, "c3").VehicleID)
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	customers := []Customer{
		{ID: "c1", Location: Coordinate{0, 1}, Demand: 1},
		{ID: "c2", Location: Coordinate{0, 2}, Demand: 1},
	}
	sol, err := Solve(ctx, Coordinate{}, customers, []Vehicle{{ID: "v", Capacity: 10}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, sol.PlanID)
	assert.Nil(t, sol.Routes)
}

func TestSolveCancelledDuringRefinement(t *testing.T) {
	const n = 300
	rng := rand.New(rand.NewSource(11))
	depot := Coordinate{52.52, 13.40}
	customers := make([]Customer, n)
	for i := range customers {
		customers[i] = Customer{
			ID:       "c" + string(rune('A'+i%26)) + string(rune('A'+i/26)),
			Location: Coordinate{52.3 + rng.Float64()*0.4, 13.1 + rng.Float64()*0.6},
			Demand:   1,
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	// the savings table costs n + n(n-1)/2 distance calls; cancel after it
	cancelAt := n + n*(n-1)/2 + 2000
	sol, err := Solve(ctx, depot, customers, []Vehicle{{ID: "big", Capacity: 1e9}},
		WithMetric(countingMetric(cancel, cancelAt, &calls)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "refine")
	assert.Empty(t, sol.PlanID)
	assert.LessOrEqual(t, calls, cancelAt+twoOptCheckEvery*(n+1))
}

func TestSolveInvalidCustomerIsUnreachable(t *testing.T) {
	customers := []Customer{
		{ID: "a", Location: Coordinate{52.5, 13.4}, Demand: 1},
		{ID: "b", Location: Coordinate{52.6, 13.5}, Demand: 1},
		{ID: "bad", Location: Coordinate{95, 13.4}, Demand: 1},
	}
	vehicles := []Vehicle{{ID: "v1", Capacity: 10}, {ID: "v2", Capacity: 10}}
	var sol Solution
	require.NotPanics(t, func() {
		var err error
		sol, err = Solve(context.Background(), Coordinate{52.52, 13.40}, customers, vehicles)
		require.NoError(t, err)
	})
	require.Len(t, sol.Routes, 2)
	assert.Empty(t, sol.Unassigned)
	bad := routeFor(t, sol, "bad")
	assert.Equal(t, []string{"bad"}, bad.Stops)
	assert.True(t, math.IsInf(bad.Distance, 1))
	good := routeFor(t, sol, "a")
	assert.ElementsMatch(t, []string{"a", "b"}, good.Stops)
	assert.False(t, math.IsInf(good.Distance, 0))
	assert.True(t, math.IsInf(sol.TotalDistance, 1))

	raw, err := json.Marshal(sol)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"totalDistance":null`)
	assert.Contains(t, string(raw), `"distance":null`)
}

func TestSolveInvalidDepotDegrades(t *testing.T) {
	customers := []Customer{
		{ID: "a", Location: Coordinate{52.5, 13.4}, Demand: 4},
		{ID: "b", Location: Coordinate{52.6, 13.5}, Demand: 4},
		{ID: "c", Location: Coordinate{52.7, 13.6}, Demand: 4},
	}
	var sol Solution
	require.NotPanics(t, func() {
		var err error
		sol, err = Solve(context.Background(), Coordinate{Lat: 120}, customers, []Vehicle{{ID: "v", Capacity: 10}})
		require.NoError(t, err)
	})
	require.Len(t, sol.Routes, 1)
	routed := append([]string{}, sol.Routes[0].Stops...)
	assert.Len(t, routed, 2)
	assert.Len(t, sol.Unassigned, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, append(routed, sol.Unassigned...))
	assert.True(t, math.IsInf(sol.Routes[0].Distance, 1))

	raw, err := json.Marshal(sol)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Nil(t, back["totalDistance"])
}

func randomInstance(rng *rand.Rand) (Coordinate, []Customer, []Vehicle) {
	depot := Coordinate{52.52, 13.40}
	customers := make([]Customer, rng.Intn(40))
	for i := range customers {
		customers[i] = Customer{
			ID:       string(rune('A'+i%26)) + string(rune('0'+i/26)),
			Location: Coordinate{52.3 + rng.Float64()*0.4, 13.1 + rng.Float64()*0.6},
			Demand:   float64(rng.Intn(60)),
		}
	}
	vehicles := make([]Vehicle, rng.Intn(6))
	for i := range vehicles {
		vehicles[i] = Vehicle{ID: "v" + string(rune('0'+i)), Capacity: float64(30 + rng.Intn(120))}
	}
	return depot, customers, vehicles
}

func TestSolveProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 60; trial++ {
		depot, customers, vehicles := randomInstance(rng)
		sol, err := Solve(context.Background(), depot, customers, vehicles)
		require.NoError(t, err)

		capacity := map[string]float64{}
		for _, v := range vehicles {
			capacity[v.ID] = v.Capacity
		}
		demand := map[string]float64{}
		for _, c := range customers {
			demand[c.ID] = c.Demand
		}

		seen := map[string]int{}
		total := 0.0
		for _, r := range sol.Routes {
			require.Contains(t, capacity, r.VehicleID)
			assert.LessOrEqual(t, r.Demand, capacity[r.VehicleID], "trial %d", trial)
			sum := 0.0
			for _, s := range r.Stops {
				seen[s]++
				sum += demand[s]
			}
			assert.InDelta(t, sum, r.Demand, 1e-9)
			total += r.Distance
		}
		for _, id := range sol.Unassigned {
			seen[id]++
		}
		require.Len(t, seen, len(customers), "trial %d", trial)
		for id, n := range seen {
			assert.Equal(t, 1, n, "trial %d customer %s", trial, id)
		}
		assert.LessOrEqual(t, len(sol.Routes), len(vehicles))
		assert.InDelta(t, total, sol.TotalDistance, 1e-6)
	}
}

func TestSolveConcurrentCallsAgree(t *testing.T) {
	depot, customers, vehicles := randomInstance(rand.New(rand.NewSource(3)))
	want, err := Solve(context.Background(), depot, customers, vehicles)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Solution, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Solve(context.Background(), depot, customers, vehicles)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want.Routes, got.Routes)
		assert.Equal(t, want.Unassigned, got.Unassigned)
		assert.NotEqual(t, want.PlanID, got.PlanID)
	}
}
