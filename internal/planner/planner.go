// Package planner turns a tenant's fleet snapshot into a stored route plan.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"routeplan/internal/config"
	"routeplan/internal/metrics"
	"routeplan/internal/model"
	"routeplan/internal/opt"
	"routeplan/internal/store"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoDepot          = errors.New("no depot configured")
	ErrTooManyCustomers = errors.New("too many customers")
)

// Broadcaster fans plan events out to live stream subscribers.
type Broadcaster interface {
	Publish(tenantID string, evt model.Event)
}

// Notifier queues webhook deliveries.
type Notifier interface {
	Emit(ctx context.Context, tenantID, eventType string, data any) (int, error)
}

type Planner struct {
	Store    store.Store
	Events   Broadcaster
	Webhooks Notifier
	Config   config.PlannerConfig
	Log      zerolog.Logger

	now func() time.Time
}

func New(s store.Store, cfg config.PlannerConfig, log zerolog.Logger) *Planner {
	cfg.SetDefaults()
	return &Planner{Store: s, Config: cfg, Log: log, now: time.Now}
}

type snapshot struct {
	depot     model.Depot
	customers []model.Customer
	vehicles  []model.Vehicle
}

// Plan resolves the fleet for req, solves it and stores the result.
func (p *Planner) Plan(ctx context.Context, tenantID string, req model.PlanRequest) (model.Plan, error) {
	metricName := req.Metric
	if metricName == "" {
		metricName = p.Config.Metric
	}
	dist, err := opt.MetricByName(metricName)
	if err != nil {
		metrics.Plans.WithLabelValues("invalid").Inc()
		return model.Plan{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	snap, err := p.resolve(ctx, tenantID, req)
	if err == nil {
		err = p.check(snap)
	}
	var warnings []model.PlanWarning
	if err == nil {
		warnings = feasibility(snap.customers, snap.vehicles)
		if req.Strict && len(warnings) > 0 {
			err = &InfeasibleError{Warnings: warnings}
		}
	}
	if err != nil {
		if isClientError(err) {
			metrics.Plans.WithLabelValues("invalid").Inc()
		} else {
			p.failed(ctx, tenantID, req, err)
		}
		return model.Plan{}, err
	}

	solveCtx, cancel := context.WithTimeout(ctx, p.Config.Timeout())
	defer cancel()
	sol, err := opt.Solve(solveCtx, toCoordinate(snap.depot.Location), toCustomers(snap.customers), toVehicles(snap.vehicles),
		opt.WithMetric(dist), opt.WithLogger(p.Log))
	if err != nil {
		p.failed(ctx, tenantID, req, err)
		return model.Plan{}, fmt.Errorf("planner: solve: %w", err)
	}
	metrics.SolveDuration.WithLabelValues(metricName).Observe(sol.Duration.Seconds())

	plan := buildPlan(tenantID, req.PlanDate, metricName, snap, sol)
	plan.CreatedAt = p.now().UTC()
	plan.Warnings = warnings
	if err := p.Store.SavePlan(ctx, plan); err != nil {
		p.failed(ctx, tenantID, req, err)
		return model.Plan{}, fmt.Errorf("planner: save plan: %w", err)
	}

	metrics.Plans.WithLabelValues("ok").Inc()
	metrics.PlanCustomers.Observe(float64(len(snap.customers)))
	metrics.SavingsPairs.Observe(float64(plan.Stats.Savings))
	metrics.RoutesPlanned.Add(float64(len(plan.Routes)))
	metrics.UnassignedCustomers.Add(float64(len(plan.Unassigned)))
	metrics.TruncatedRoutes.Add(float64(plan.Stats.Truncated))

	p.Log.Info().
		Str("tenant", tenantID).
		Str("plan_id", plan.ID).
		Int("customers", len(snap.customers)).
		Int("vehicles", len(snap.vehicles)).
		Int("routes", len(plan.Routes)).
		Int("unassigned", len(plan.Unassigned)).
		Int("warnings", len(plan.Warnings)).
		Float64("distance_km", plan.TotalDistanceKm).
		Int64("duration_ms", plan.DurationMs).
		Msg("plan created")

	p.notify(ctx, tenantID, model.EventPlanCompleted, map[string]any{
		"planId":          plan.ID,
		"planDate":        plan.PlanDate,
		"routes":          len(plan.Routes),
		"unassigned":      len(plan.Unassigned),
		"warnings":        len(plan.Warnings),
		"totalDistanceKm": plan.TotalDistanceKm,
	})
	return plan, nil
}

func (p *Planner) resolve(ctx context.Context, tenantID string, req model.PlanRequest) (snapshot, error) {
	var snap snapshot
	if req.Depot != nil {
		snap.depot = *req.Depot
	} else {
		d, err := p.Store.GetDepot(ctx, tenantID)
		if errors.Is(err, store.ErrNotFound) {
			return snap, ErrNoDepot
		}
		if err != nil {
			return snap, fmt.Errorf("planner: depot: %w", err)
		}
		snap.depot = d
	}

	if len(req.Customers) > 0 {
		snap.customers = req.Customers
	} else {
		all, err := listAll(ctx, tenantID, p.Store.ListCustomers)
		if err != nil {
			return snap, fmt.Errorf("planner: customers: %w", err)
		}
		if snap.customers, err = selectByID(all, req.CustomerIDs, func(c model.Customer) string { return c.ID }, "customer"); err != nil {
			return snap, err
		}
	}

	if len(req.Vehicles) > 0 {
		snap.vehicles = req.Vehicles
	} else {
		all, err := listAll(ctx, tenantID, p.Store.ListVehicles)
		if err != nil {
			return snap, fmt.Errorf("planner: vehicles: %w", err)
		}
		if snap.vehicles, err = selectByID(all, req.VehicleIDs, func(v model.Vehicle) string { return v.ID }, "vehicle"); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

func (p *Planner) check(snap snapshot) error {
	if n := len(snap.customers); n > p.Config.MaxCustomers {
		return fmt.Errorf("%w: %d > %d", ErrTooManyCustomers, n, p.Config.MaxCustomers)
	}
	return validate(snap.depot, snap.customers, snap.vehicles)
}

func (p *Planner) failed(ctx context.Context, tenantID string, req model.PlanRequest, cause error) {
	outcome := "error"
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		outcome = "cancelled"
	}
	metrics.Plans.WithLabelValues(outcome).Inc()
	p.Log.Warn().Err(cause).Str("tenant", tenantID).Str("plan_date", req.PlanDate).Msg("plan failed")
	// the caller's context may be the one that was cancelled
	p.notify(context.WithoutCancel(ctx), tenantID, model.EventPlanFailed, map[string]any{
		"planDate": req.PlanDate,
		"error":    cause.Error(),
	})
}

func (p *Planner) notify(ctx context.Context, tenantID, eventType string, data map[string]any) {
	if p.Events != nil {
		p.Events.Publish(tenantID, model.Event{Type: eventType, Data: data})
	}
	if p.Webhooks != nil {
		if _, err := p.Webhooks.Emit(ctx, tenantID, eventType, data); err != nil {
			p.Log.Error().Err(err).Str("tenant", tenantID).Str("event", eventType).Msg("enqueue webhooks")
		}
	}
}

func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNoDepot) ||
		errors.Is(err, ErrTooManyCustomers) || errors.Is(err, ErrInfeasible)
}

type lister[T any] func(ctx context.Context, tenantID, cursor string, limit int) ([]T, string, error)

func listAll[T any](ctx context.Context, tenantID string, list lister[T]) ([]T, error) {
	var out []T
	cursor := ""
	for {
		page, next, err := list(ctx, tenantID, cursor, 500)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}
