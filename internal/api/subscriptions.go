package api

import (
	"net/http"

	"routeplan/internal/model"
	"routeplan/internal/store"
)

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p, ok := s.authorize(w, r, isAdmin, "admin role")
		if !ok {
			return
		}
		var req model.SubscriptionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateSubscription(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeStoreError(w, r, "Create subscription failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p, ok := s.authorize(w, r, isAdmin, "admin role")
		if !ok {
			return
		}
		cursor, limit, err := page(r)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
			return
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeStoreError(w, r, "List subscriptions failed", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[model.Subscription]{Items: items, NextCursor: next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, isAdmin, "admin role")
	if !ok {
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeStoreError(w, r, "Delete subscription failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries?status=
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, isAdmin, "admin role")
	if !ok {
		return
	}
	cursor, limit, err := page(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.DeliveryPending, store.DeliveryRetry, store.DeliveryDelivered, store.DeliveryFailed:
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid query", "unknown status "+status, r.URL.Path)
		return
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeStoreError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[store.DeliveryInfo]{Items: items, NextCursor: next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, isAdmin, "admin role")
	if !ok {
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
		writeStoreError(w, r, "Retry delivery failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}
