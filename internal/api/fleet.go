package api

import (
	"net/http"

	"routeplan/internal/model"
)

// DepotHandler handles PUT/GET/DELETE /v1/depot
func (s *Server) DepotHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := s.authorize(w, r, anyRole, "")
		if !ok {
			return
		}
		d, err := s.Store.GetDepot(r.Context(), p.Tenant)
		if err != nil {
			writeStoreError(w, r, "Get depot failed", err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	case http.MethodPut:
		p, ok := s.authorize(w, r, canPlan, "planner role")
		if !ok {
			return
		}
		var d model.Depot
		if !decodeJSON(w, r, &d) {
			return
		}
		if err := validateDepot(&d); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid depot", err.Error(), r.URL.Path)
			return
		}
		saved, err := s.Store.SaveDepot(r.Context(), p.Tenant, d)
		if err != nil {
			writeStoreError(w, r, "Save depot failed", err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	case http.MethodDelete:
		p, ok := s.authorize(w, r, canPlan, "planner role")
		if !ok {
			return
		}
		if err := s.Store.DeleteDepot(r.Context(), p.Tenant); err != nil {
			writeStoreError(w, r, "Delete depot failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// FleetResetHandler handles DELETE /v1/admin/fleet. Plans and subscriptions are kept.
func (s *Server) FleetResetHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, isAdmin, "admin role")
	if !ok {
		return
	}
	counts, err := s.Store.ClearFleet(r.Context(), p.Tenant)
	if err != nil {
		writeStoreError(w, r, "Reset fleet failed", err)
		return
	}
	s.Log.Info().Str("tenant", p.Tenant).
		Int("customers", counts.Customers).
		Int("vehicles", counts.Vehicles).
		Msg("fleet cleared")
	writeJSON(w, http.StatusOK, counts)
}

// CustomersHandler handles POST/GET /v1/customers
func (s *Server) CustomersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p, ok := s.authorize(w, r, canPlan, "planner role")
		if !ok {
			return
		}
		var req struct {
			Customers []model.Customer `json:"customers"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateCustomers(req.Customers); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid customers", err.Error(), r.URL.Path)
			return
		}
		out, err := s.Store.UpsertCustomers(r.Context(), p.Tenant, req.Customers)
		if err != nil {
			writeStoreError(w, r, "Upsert customers failed", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[model.Customer]{Items: out})
	case http.MethodGet:
		p, ok := s.authorize(w, r, anyRole, "")
		if !ok {
			return
		}
		cursor, limit, err := page(r)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
			return
		}
		items, next, err := s.Store.ListCustomers(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeStoreError(w, r, "List customers failed", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[model.Customer]{Items: items, NextCursor: next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CustomerByIDHandler handles DELETE /v1/customers/{id}
func (s *Server) CustomerByIDHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, canPlan, "planner role")
	if !ok {
		return
	}
	if err := s.Store.DeleteCustomer(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeStoreError(w, r, "Delete customer failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VehiclesHandler handles POST/GET /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p, ok := s.authorize(w, r, canPlan, "planner role")
		if !ok {
			return
		}
		var req struct {
			Vehicles []model.Vehicle `json:"vehicles"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateVehicles(req.Vehicles); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid vehicles", err.Error(), r.URL.Path)
			return
		}
		out, err := s.Store.UpsertVehicles(r.Context(), p.Tenant, req.Vehicles)
		if err != nil {
			writeStoreError(w, r, "Upsert vehicles failed", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[model.Vehicle]{Items: out})
	case http.MethodGet:
		p, ok := s.authorize(w, r, anyRole, "")
		if !ok {
			return
		}
		cursor, limit, err := page(r)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
			return
		}
		items, next, err := s.Store.ListVehicles(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeStoreError(w, r, "List vehicles failed", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[model.Vehicle]{Items: items, NextCursor: next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// VehicleByIDHandler handles DELETE /v1/vehicles/{id}
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, canPlan, "planner role")
	if !ok {
		return
	}
	if err := s.Store.DeleteVehicle(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeStoreError(w, r, "Delete vehicle failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
