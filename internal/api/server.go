// Package api implements the HTTP surface of the route planning service.
package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"routeplan/internal/auth"
	"routeplan/internal/config"
	"routeplan/internal/metrics"
	"routeplan/internal/model"
	"routeplan/internal/store"
)

// PlanService creates plans; implemented by planner.Planner.
type PlanService interface {
	Plan(ctx context.Context, tenantID string, req model.PlanRequest) (model.Plan, error)
}

type Server struct {
	Store   store.Store
	Planner PlanService
	Broker  EventBroker
	Auth    *auth.Verifier
	Config  config.Config
	Log     zerolog.Logger

	planLimiter *rate.Limiter
}

func NewServer(cfg config.Config, st store.Store, broker EventBroker, pl PlanService, log zerolog.Logger) *Server {
	s := &Server{
		Store:   st,
		Planner: pl,
		Broker:  broker,
		Auth:    auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.TenantClaim, cfg.Auth.RoleClaim),
		Config:  cfg,
		Log:     log,
	}
	if cfg.Rate.Enabled() {
		s.planLimiter = rate.NewLimiter(rate.Limit(*cfg.Rate.RPS), cfg.Rate.Burst)
	}
	return s
}

// Routes registers every endpoint and wraps the mux in the shared middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Fleet
	mux.HandleFunc("/v1/depot", s.DepotHandler)
	mux.HandleFunc("/v1/customers", s.CustomersHandler)
	mux.HandleFunc("DELETE /v1/customers/{id}", s.CustomerByIDHandler)
	mux.HandleFunc("/v1/vehicles", s.VehiclesHandler)
	mux.HandleFunc("DELETE /v1/vehicles/{id}", s.VehicleByIDHandler)
	mux.HandleFunc("DELETE /v1/admin/fleet", s.FleetResetHandler)

	// Plans
	mux.Handle("POST /v1/plans", s.rateLimit(http.HandlerFunc(s.CreatePlanHandler)))
	mux.HandleFunc("GET /v1/plans", s.ListPlansHandler)
	mux.HandleFunc("GET /v1/plans/{id}", s.PlanByIDHandler)
	mux.HandleFunc("GET /v1/plans/events/stream", s.PlanEventsStreamHandler)
	mux.HandleFunc("GET /v1/plans/events/ws", s.PlanEventsWSHandler)

	// Webhooks
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.SubscriptionByIDHandler)
	mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("POST /v1/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)

	// Ops
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.HandleFunc("GET /v1/debug", s.DebugJSON)
	mux.Handle("GET /metrics", metrics.Handler())

	return s.recoverer(s.instrument(s.logRequests(mux)))
}
