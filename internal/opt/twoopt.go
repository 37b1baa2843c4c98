package opt

import "context"

const twoOptEpsilon = 1e-3

// twoOptCheckEvery bounds how many candidate swaps are evaluated between
// cancellation checks.
const twoOptCheckEvery = 4096

// ImproveOrder2Opt reorders one route with first-improvement 2-opt. The
// route is a round trip from depot through locs in the given order. It
// returns the new order and the number of adopted swaps. The stop at
// position 0 keeps its place. ctx is checked before every scan and
// periodically inside it; on cancellation the error is ctx.Err().
func ImproveOrder2Opt(ctx context.Context, depot Coordinate, locs []Coordinate, order []int, dist Metric) ([]int, int, error) {
	best := append([]int(nil), order...)
	n := len(best)
	if n < 2 {
		return best, 0, nil
	}
	bestDist := roundTrip(depot, locs, best, dist)
	limit := 200 * n
	improvements := 0
	evaluated := 0
	for improvements < limit {
		if err := ctx.Err(); err != nil {
			return nil, improvements, err
		}
		improved := false
	scan:
		for i := 0; i < n-2; i++ {
			for j := i + 2; j < n; j++ {
				evaluated++
				if evaluated%twoOptCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						return nil, improvements, err
					}
				}
				cand := twoOptSwap(best, i+1, j)
				d := roundTrip(depot, locs, cand, dist)
				if d < bestDist-twoOptEpsilon {
					best = cand
					bestDist = d
					improved = true
					break scan
				}
			}
		}
		if !improved {
			break
		}
		improvements++
	}
	return best, improvements, nil
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// roundTrip is depot -> stops in order -> depot.
func roundTrip(depot Coordinate, locs []Coordinate, order []int, dist Metric) float64 {
	if len(order) == 0 {
		return 0
	}
	total := dist(depot, locs[order[0]])
	for i := 0; i < len(order)-1; i++ {
		total += dist(locs[order[i]], locs[order[i+1]])
	}
	return total + dist(locs[order[len(order)-1]], depot)
}
