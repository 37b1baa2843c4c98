package opt

const noVehicle = -1

// segment is a partial route in the merge arena.
type segment struct {
	stops   []int
	demand  float64
	vehicle int
	alive   bool
}

func (s *segment) first() int { return s.stops[0] }
func (s *segment) last() int  { return s.stops[len(s.stops)-1] }

// matchKind names how the endpoints of two segments line up for a saving.
type matchKind int

const (
	matchNone matchKind = iota
	matchTailHead
	matchHeadTail
	matchTailTailReversed
	matchHeadHeadReversed
)

func (k matchKind) String() string {
	switch k {
	case matchTailHead:
		return "tail-head"
	case matchHeadTail:
		return "head-tail"
	case matchTailTailReversed:
		return "tail-tail-reversed"
	case matchHeadHeadReversed:
		return "head-head-reversed"
	default:
		return "none"
	}
}

// classify checks the endpoint patterns in fixed priority order.
func classify(sa, sb *segment, a, b int) matchKind {
	switch {
	case sa.last() == a && sb.first() == b:
		return matchTailHead
	case sb.last() == b && sa.first() == a:
		return matchHeadTail
	case sa.last() == a && sb.last() == b:
		return matchTailTailReversed
	case sa.first() == a && sb.first() == b:
		return matchHeadHeadReversed
	}
	return matchNone
}

// merger owns the segment arena for one Solve call. owner maps a customer
// index to the id of the segment that currently holds it.
type merger struct {
	vehicles []Vehicle
	owner    []int
	segs     []segment
	stats    *Stats
}

func newMerger(customers []Customer, vehicles []Vehicle, stats *Stats) *merger {
	m := &merger{
		vehicles: vehicles,
		owner:    make([]int, len(customers)),
		segs:     make([]segment, len(customers)),
		stats:    stats,
	}
	for i, c := range customers {
		m.owner[i] = i
		m.segs[i] = segment{stops: []int{i}, demand: c.Demand, vehicle: noVehicle, alive: true}
	}
	return m
}

// candidate returns the first vehicle in input order that can carry demand
// and is compatible with both segments' assignments.
func (m *merger) candidate(sa, sb *segment, demand float64) int {
	for v, veh := range m.vehicles {
		if veh.Capacity < demand {
			continue
		}
		if sa.vehicle != noVehicle && sa.vehicle != v {
			continue
		}
		if sb.vehicle != noVehicle && sb.vehicle != v {
			continue
		}
		return v
	}
	return noVehicle
}

// apply processes one saving and reports whether a merge happened.
func (m *merger) apply(s Saving) bool {
	ida, idb := m.owner[s.I], m.owner[s.J]
	if ida == idb {
		return false
	}
	sa, sb := &m.segs[ida], &m.segs[idb]
	if !sa.alive || !sb.alive {
		return false
	}
	demand := sa.demand + sb.demand
	veh := m.candidate(sa, sb, demand)
	if veh == noVehicle {
		m.stats.SkippedCapacity++
		return false
	}

	var stops []int
	switch classify(sa, sb, s.I, s.J) {
	case matchTailHead:
		stops = concat(sa.stops, sb.stops)
	case matchHeadTail:
		stops = concat(sb.stops, sa.stops)
	case matchTailTailReversed:
		reverse(sb.stops)
		if sb.first() != s.J {
			reverse(sb.stops)
			m.stats.SkippedEndpoint++
			return false
		}
		stops = concat(sa.stops, sb.stops)
	case matchHeadHeadReversed:
		reverse(sa.stops)
		if sa.last() != s.I {
			reverse(sa.stops)
			m.stats.SkippedEndpoint++
			return false
		}
		stops = concat(sa.stops, sb.stops)
	default:
		m.stats.SkippedEndpoint++
		return false
	}

	sa.stops = stops
	sa.demand = demand
	sa.vehicle = veh
	for _, c := range sb.stops {
		m.owner[c] = ida
	}
	sb.stops = nil
	sb.alive = false
	m.stats.Merges++
	return true
}

// active returns the surviving segments in arena order.
func (m *merger) active() []segment {
	out := make([]segment, 0, len(m.segs))
	for _, s := range m.segs {
		if s.alive {
			out = append(out, s)
		}
	}
	return out
}

func concat(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
