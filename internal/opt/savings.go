package opt

import (
	"context"
	"sort"
)

// Saving is the Clarke-Wright saving of serving customers I and J
// (indices into the customer slice, I < J) on one route.
type Saving struct {
	I, J  int
	Value float64
}

// Savings builds the positive savings table sorted by value descending.
// Ties keep pair enumeration order. Cost is quadratic in len(customers),
// which is the scaling limit of the whole engine.
func Savings(depot Coordinate, customers []Customer, dist Metric) []Saving {
	out, _ := savingsTable(context.Background(), depot, customers, dist)
	return out
}

func savingsTable(ctx context.Context, depot Coordinate, customers []Customer, dist Metric) ([]Saving, error) {
	n := len(customers)
	if n < 2 {
		return nil, nil
	}
	fromDepot := make([]float64, n)
	for i, c := range customers {
		fromDepot[i] = dist(depot, c.Location)
	}
	out := make([]Saving, 0, n)
	for i := 0; i < n-1; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := i + 1; j < n; j++ {
			v := fromDepot[i] + fromDepot[j] - dist(customers[i].Location, customers[j].Location)
			if v > 0 {
				out = append(out, Saving{I: i, J: j, Value: v})
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Value > out[b].Value })
	return out, nil
}
