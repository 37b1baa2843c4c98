package planner

import (
	"errors"
	"fmt"
	"strings"

	"routeplan/internal/model"
)

// ErrInfeasible is wrapped by InfeasibleError.
var ErrInfeasible = errors.New("infeasible fleet selection")

// InfeasibleError is returned for strict requests that raised warnings.
type InfeasibleError struct {
	Warnings []model.PlanWarning
}

func (e *InfeasibleError) Error() string {
	msgs := make([]string, len(e.Warnings))
	for i, w := range e.Warnings {
		msgs[i] = w.Message
	}
	return ErrInfeasible.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }

// feasibility lists the reasons the selection cannot serve every customer.
// The solver still runs; affected customers end up unassigned.
func feasibility(customers []model.Customer, vehicles []model.Vehicle) []model.PlanWarning {
	var out []model.PlanWarning
	if len(customers) == 0 {
		out = append(out, model.PlanWarning{Code: model.WarnNoCustomers, Message: "no customers selected"})
	}
	if len(vehicles) == 0 {
		out = append(out, model.PlanWarning{Code: model.WarnNoVehicles, Message: "no vehicles selected"})
	}
	if len(out) > 0 {
		return out
	}

	var demand, capacity, largest float64
	for _, v := range vehicles {
		capacity += v.Capacity
		largest = max(largest, v.Capacity)
	}
	for _, c := range customers {
		demand += c.Demand
	}
	if demand > capacity {
		out = append(out, model.PlanWarning{
			Code:    model.WarnDemandExceedsFleet,
			Message: fmt.Sprintf("total demand %g exceeds fleet capacity %g", demand, capacity),
		})
	}
	for _, c := range customers {
		if c.Demand > largest {
			out = append(out, model.PlanWarning{
				Code:       model.WarnCustomerTooLarge,
				Message:    fmt.Sprintf("customer %s demand %g exceeds largest vehicle capacity %g", c.ID, c.Demand, largest),
				CustomerID: c.ID,
			})
		}
	}
	return out
}
