package api

import (
	"context"
	"net/http"
	"time"

	"routeplan/internal/buildinfo"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports 503 until the store answers a ping.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// DebugJSON returns build info and the non-secret parts of the configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, isAdmin, "admin role"); !ok {
		return
	}
	c := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":                c.Server.Port,
			"authMode":            c.Auth.Mode,
			"rateLimited":         c.Rate.Enabled(),
			"rateBurst":           c.Rate.Burst,
			"plannerMetric":       c.Planner.Metric,
			"plannerMaxCustomers": c.Planner.MaxCustomers,
			"plannerTimeoutSec":   c.Planner.TimeoutSec,
			"webhookMaxAttempts":  c.Webhooks.MaxAttempts,
			"hasDatabaseUrl":      c.Database.URL != "",
			"hasRedisUrl":         c.Redis.URL != "",
		},
	})
}
