package store

import (
	"context"
	"errors"
	"time"

	"routeplan/internal/model"
)

// Store is the persistence interface used by the API server and planner.
type Store interface {
	Ping(ctx context.Context) error

	// Fleet
	SaveDepot(ctx context.Context, tenantID string, d model.Depot) (model.Depot, error)
	GetDepot(ctx context.Context, tenantID string) (model.Depot, error)
	DeleteDepot(ctx context.Context, tenantID string) error
	UpsertCustomers(ctx context.Context, tenantID string, customers []model.Customer) ([]model.Customer, error)
	ListCustomers(ctx context.Context, tenantID, cursor string, limit int) ([]model.Customer, string, error)
	DeleteCustomer(ctx context.Context, tenantID, id string) error
	UpsertVehicles(ctx context.Context, tenantID string, vehicles []model.Vehicle) ([]model.Vehicle, error)
	ListVehicles(ctx context.Context, tenantID, cursor string, limit int) ([]model.Vehicle, string, error)
	DeleteVehicle(ctx context.Context, tenantID, id string) error
	ClearFleet(ctx context.Context, tenantID string) (FleetCounts, error)

	// Plans
	SavePlan(ctx context.Context, p model.Plan) error
	GetPlan(ctx context.Context, tenantID, id string) (model.Plan, error)
	ListPlans(ctx context.Context, tenantID, planDate, cursor string, limit int) ([]model.PlanSummary, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries. EnqueueWebhook returns "" when an identical
	// payload is already queued for the same url and event type.
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryInfo, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")

// FleetCounts reports how many records ClearFleet removed.
type FleetCounts struct {
	Depots    int `json:"depots"`
	Customers int `json:"customers"`
	Vehicles  int `json:"vehicles"`
}

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
