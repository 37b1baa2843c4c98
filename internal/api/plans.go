package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"routeplan/internal/model"
	"routeplan/internal/planner"
)

const sseHeartbeat = 15 * time.Second

// CreatePlanHandler handles POST /v1/plans
func (s *Server) CreatePlanHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, canPlan, "planner role")
	if !ok {
		return
	}
	var req model.PlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlanDate != "" {
		if _, err := time.Parse(time.DateOnly, req.PlanDate); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid plan request", "planDate must be YYYY-MM-DD", r.URL.Path)
			return
		}
	}
	plan, err := s.Planner.Plan(r.Context(), p.Tenant, req)
	var infeasible *planner.InfeasibleError
	if errors.As(err, &infeasible) {
		writeProblemBody(w, http.StatusUnprocessableEntity, infeasibleProblem{
			Problem: Problem{
				Type:     "about:blank",
				Title:    "Infeasible fleet selection",
				Status:   http.StatusUnprocessableEntity,
				Detail:   err.Error(),
				Instance: r.URL.Path,
			},
			Warnings: infeasible.Warnings,
		})
		return
	}
	if err != nil {
		status, title := planErrorStatus(err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Location", "/v1/plans/"+plan.ID)
	writeJSON(w, http.StatusCreated, plan)
}

type infeasibleProblem struct {
	Problem
	Warnings []model.PlanWarning `json:"warnings"`
}

func planErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, planner.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid plan request"
	case errors.Is(err, planner.ErrNoDepot):
		return http.StatusConflict, "No depot"
	case errors.Is(err, planner.ErrTooManyCustomers):
		return http.StatusRequestEntityTooLarge, "Too many customers"
	case errors.Is(err, planner.ErrInfeasible):
		return http.StatusUnprocessableEntity, "Infeasible fleet selection"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Planning timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Planning cancelled"
	default:
		return http.StatusInternalServerError, "Planning failed"
	}
}

// ListPlansHandler handles GET /v1/plans?planDate=&cursor=&limit=
func (s *Server) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, anyRole, "")
	if !ok {
		return
	}
	cursor, limit, err := page(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
		return
	}
	items, next, err := s.Store.ListPlans(r.Context(), p.Tenant, r.URL.Query().Get("planDate"), cursor, limit)
	if err != nil {
		writeStoreError(w, r, "List plans failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.PlanSummary]{Items: items, NextCursor: next})
}

// PlanByIDHandler handles GET /v1/plans/{id}
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, anyRole, "")
	if !ok {
		return
	}
	plan, err := s.Store.GetPlan(r.Context(), p.Tenant, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "Get plan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// PlanEventsStreamHandler streams the tenant's plan events as server-sent events.
func (s *Server) PlanEventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, anyRole, "")
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(p.Tenant)
	defer s.Broker.Unsubscribe(p.Tenant, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\ndata: {\"tenantId\":%q,\"ts\":%q}\n\n", p.Tenant, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}
