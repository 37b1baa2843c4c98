package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"routeplan/internal/model"
)

// Memory is a simple in-memory store used when no database URL is set.
type Memory struct {
	mu        sync.Mutex
	depots    map[string]model.Depot                 // tenant -> depot
	customers map[string]*collection[model.Customer] // tenant -> customers
	vehicles  map[string]*collection[model.Vehicle]  // tenant -> vehicles
	plans     map[string]*collection[model.Plan]     // tenant -> plans
	subs      map[string][]model.Subscription        // tenant -> subscriptions

	// Webhooks queue state
	deliveries         map[string]*memDelivery // id -> delivery state
	deliveriesByTenant map[string][]string     // tenant -> delivery ids
	deliveryOrder      []string
	dedup              map[string]string // tenant|event|url|key -> delivery id
}

func NewMemory() *Memory {
	return &Memory{
		depots:             map[string]model.Depot{},
		customers:          map[string]*collection[model.Customer]{},
		vehicles:           map[string]*collection[model.Vehicle]{},
		plans:              map[string]*collection[model.Plan]{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		dedup:              map[string]string{},
	}
}

// collection keeps records in insertion order for cursor paging.
type collection[T any] struct {
	ids   []string
	items map[string]T
}

func newCollection[T any]() *collection[T] {
	return &collection[T]{items: map[string]T{}}
}

func (c *collection[T]) put(id string, v T) {
	if _, ok := c.items[id]; !ok {
		c.ids = append(c.ids, id)
	}
	c.items[id] = v
}

func (c *collection[T]) remove(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	c.ids = slices.DeleteFunc(c.ids, func(s string) bool { return s == id })
	return true
}

// page returns up to limit items after cursor that satisfy keep.
func (c *collection[T]) page(cursor string, limit int, keep func(T) bool) ([]T, string) {
	start := 0
	if cursor != "" {
		for i, id := range c.ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = pageSize(limit)
	out := []T{}
	var next string
	for i := start; i < len(c.ids) && len(out) < limit; i++ {
		v := c.items[c.ids[i]]
		if keep == nil || keep(v) {
			out = append(out, v)
		}
		next = c.ids[i]
	}
	if len(out) < limit || next == c.ids[len(c.ids)-1] {
		next = ""
	}
	return out, next
}

func tenantCollection[T any](m map[string]*collection[T], tenantID string) *collection[T] {
	c := m[tenantID]
	if c == nil {
		c = newCollection[T]()
		m[tenantID] = c
	}
	return c
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) SaveDepot(ctx context.Context, tenantID string, d model.Depot) (model.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.TenantID = tenantID
	d.UpdatedAt = time.Now().UTC()
	m.depots[tenantID] = d
	return d, nil
}

func (m *Memory) DeleteDepot(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.depots[tenantID]; !ok {
		return ErrNotFound
	}
	delete(m.depots, tenantID)
	return nil
}

func (m *Memory) GetDepot(ctx context.Context, tenantID string) (model.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depots[tenantID]
	if !ok {
		return model.Depot{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) UpsertCustomers(ctx context.Context, tenantID string, customers []model.Customer) ([]model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := tenantCollection(m.customers, tenantID)
	out := make([]model.Customer, 0, len(customers))
	for _, cu := range customers {
		if cu.ID == "" {
			cu.ID = uuid.New().String()
		}
		cu.TenantID = tenantID
		c.put(cu.ID, cu)
		out = append(out, cu)
	}
	return out, nil
}

func (m *Memory) ListCustomers(ctx context.Context, tenantID, cursor string, limit int) ([]model.Customer, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, next := tenantCollection(m.customers, tenantID).page(cursor, limit, nil)
	return items, next, nil
}

func (m *Memory) DeleteCustomer(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !tenantCollection(m.customers, tenantID).remove(id) {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) UpsertVehicles(ctx context.Context, tenantID string, vehicles []model.Vehicle) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := tenantCollection(m.vehicles, tenantID)
	out := make([]model.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		v.TenantID = tenantID
		c.put(v.ID, v)
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) ListVehicles(ctx context.Context, tenantID, cursor string, limit int) ([]model.Vehicle, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, next := tenantCollection(m.vehicles, tenantID).page(cursor, limit, nil)
	return items, next, nil
}

func (m *Memory) DeleteVehicle(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !tenantCollection(m.vehicles, tenantID).remove(id) {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) ClearFleet(ctx context.Context, tenantID string) (FleetCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts FleetCounts
	if _, ok := m.depots[tenantID]; ok {
		counts.Depots = 1
		delete(m.depots, tenantID)
	}
	if c := m.customers[tenantID]; c != nil {
		counts.Customers = len(c.ids)
		delete(m.customers, tenantID)
	}
	if c := m.vehicles[tenantID]; c != nil {
		counts.Vehicles = len(c.ids)
		delete(m.vehicles, tenantID)
	}
	return counts, nil
}

func (m *Memory) SavePlan(ctx context.Context, p model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenantCollection(m.plans, p.TenantID).put(p.ID, p)
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := tenantCollection(m.plans, tenantID).items[id]
	if !ok {
		return model.Plan{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, planDate, cursor string, limit int) ([]model.PlanSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plans, next := tenantCollection(m.plans, tenantID).page(cursor, limit, func(p model.Plan) bool {
		return planDate == "" || p.PlanDate == planDate
	})
	out := make([]model.PlanSummary, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.Summary())
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		if slices.Contains(s.Events, eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + pageSize(limit)
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription{}, list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := slices.DeleteFunc(slices.Clone(arr), func(s model.Subscription) bool { return s.ID == id })
	if len(out) == len(arr) {
		return ErrNotFound
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if _, ok := m.dedup[key]; ok {
		return "", nil
	}
	id := uuid.New().String()
	m.dedup[key] = id
	d := &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending},
		NextAttemptAt:   time.Now(),
	}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.deliveryOrder = append(m.deliveryOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryInfo, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.deliveriesByTenant[tenantID]
	start := 0
	if cursor != "" {
		if i := slices.Index(ids, cursor); i >= 0 {
			start = i + 1
		}
	}
	limit = pageSize(limit)
	out := []DeliveryInfo{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		d := m.deliveries[ids[i]]
		next = ids[i]
		if status != "" && d.Status != status {
			continue
		}
		info := DeliveryInfo{ID: d.ID, EventType: d.EventType, Status: d.Status, Attempts: d.Attempts, URL: d.URL, LastError: d.LastError, ResponseCode: d.ResponseCode}
		if d.Status == DeliveryPending || d.Status == DeliveryRetry {
			at := d.NextAttemptAt
			info.NextAttemptAt = &at
		}
		out = append(out, info)
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = DeliveryPending
	d.NextAttemptAt = time.Now()
	return nil
}
