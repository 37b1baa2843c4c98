package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"routeplan/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies the goose migrations in dir that are not yet recorded.
// Each file runs in its own transaction.
func (p *Postgres) MigrateDir(ctx context.Context, dir string) ([]*goose.MigrationResult, error) {
	provider, err := migrationProvider(p.db, dir)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("store: migrate: %w", err)
	}
	return results, nil
}

func migrationProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("store: migrations %s: %w", dir, err)
	}
	return provider, nil
}

// Fleet

func (p *Postgres) SaveDepot(ctx context.Context, tenantID string, d model.Depot) (model.Depot, error) {
	d.TenantID = tenantID
	err := p.db.QueryRowContext(ctx, `INSERT INTO depots (tenant_id, name, address, lat, lng, updated_at) VALUES ($1,$2,$3,$4,$5,now())
        ON CONFLICT (tenant_id) DO UPDATE SET name=EXCLUDED.name, address=EXCLUDED.address, lat=EXCLUDED.lat, lng=EXCLUDED.lng, updated_at=now()
        RETURNING updated_at`, tenantID, d.Name, nullIfEmpty(d.Address), d.Location.Lat, d.Location.Lng).Scan(&d.UpdatedAt)
	if err != nil {
		return model.Depot{}, fmt.Errorf("store: save depot: %w", err)
	}
	return d, nil
}

func (p *Postgres) DeleteDepot(ctx context.Context, tenantID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM depots WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return fmt.Errorf("store: delete depot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetDepot(ctx context.Context, tenantID string) (model.Depot, error) {
	d := model.Depot{TenantID: tenantID}
	err := p.db.QueryRowContext(ctx, `SELECT name, COALESCE(address,''), lat, lng, updated_at FROM depots WHERE tenant_id=$1`, tenantID).
		Scan(&d.Name, &d.Address, &d.Location.Lat, &d.Location.Lng, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Depot{}, ErrNotFound
	}
	if err != nil {
		return model.Depot{}, fmt.Errorf("store: get depot: %w", err)
	}
	return d, nil
}

func (p *Postgres) UpsertCustomers(ctx context.Context, tenantID string, customers []model.Customer) ([]model.Customer, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	out := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.TenantID = tenantID
		_, err := tx.ExecContext(ctx, `INSERT INTO customers (tenant_id, id, name, address, lat, lng, demand, notes) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
            ON CONFLICT (tenant_id, id) DO UPDATE SET name=EXCLUDED.name, address=EXCLUDED.address, lat=EXCLUDED.lat, lng=EXCLUDED.lng, demand=EXCLUDED.demand, notes=EXCLUDED.notes, updated_at=now()`,
			tenantID, c.ID, c.Name, nullIfEmpty(c.Address), c.Location.Lat, c.Location.Lng, c.Demand, nullIfEmpty(c.Notes))
		if err != nil {
			return nil, fmt.Errorf("store: upsert customer %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: upsert customers: %w", err)
	}
	return out, nil
}

func (p *Postgres) ListCustomers(ctx context.Context, tenantID, cursor string, limit int) ([]model.Customer, string, error) {
	limit = pageSize(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, COALESCE(address,''), lat, lng, demand, COALESCE(notes,'') FROM customers
        WHERE tenant_id=$1 AND seq > COALESCE((SELECT seq FROM customers WHERE tenant_id=$1 AND id=$2), 0)
        ORDER BY seq LIMIT $3`, tenantID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("store: list customers: %w", err)
	}
	defer rows.Close()
	out := []model.Customer{}
	for rows.Next() {
		c := model.Customer{TenantID: tenantID}
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.Location.Lat, &c.Location.Lng, &c.Demand, &c.Notes); err != nil {
			return nil, "", err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) DeleteCustomer(ctx context.Context, tenantID, id string) error {
	return p.execOne(ctx, `DELETE FROM customers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (p *Postgres) UpsertVehicles(ctx context.Context, tenantID string, vehicles []model.Vehicle) ([]model.Vehicle, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	out := make([]model.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		v.TenantID = tenantID
		_, err := tx.ExecContext(ctx, `INSERT INTO vehicles (tenant_id, id, name, plate_number, capacity) VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (tenant_id, id) DO UPDATE SET name=EXCLUDED.name, plate_number=EXCLUDED.plate_number, capacity=EXCLUDED.capacity, updated_at=now()`,
			tenantID, v.ID, v.Name, nullIfEmpty(v.PlateNumber), v.Capacity)
		if err != nil {
			return nil, fmt.Errorf("store: upsert vehicle %s: %w", v.ID, err)
		}
		out = append(out, v)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: upsert vehicles: %w", err)
	}
	return out, nil
}

func (p *Postgres) ListVehicles(ctx context.Context, tenantID, cursor string, limit int) ([]model.Vehicle, string, error) {
	limit = pageSize(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, COALESCE(plate_number,''), capacity FROM vehicles
        WHERE tenant_id=$1 AND seq > COALESCE((SELECT seq FROM vehicles WHERE tenant_id=$1 AND id=$2), 0)
        ORDER BY seq LIMIT $3`, tenantID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("store: list vehicles: %w", err)
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		v := model.Vehicle{TenantID: tenantID}
		if err := rows.Scan(&v.ID, &v.Name, &v.PlateNumber, &v.Capacity); err != nil {
			return nil, "", err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) DeleteVehicle(ctx context.Context, tenantID, id string) error {
	return p.execOne(ctx, `DELETE FROM vehicles WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

// ClearFleet removes the tenant's depot, customers and vehicles in one transaction.
func (p *Postgres) ClearFleet(ctx context.Context, tenantID string) (FleetCounts, error) {
	var counts FleetCounts
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, err
	}
	defer func() { _ = tx.Rollback() }()
	for _, step := range []struct {
		table string
		n     *int
	}{
		{"depots", &counts.Depots},
		{"customers", &counts.Customers},
		{"vehicles", &counts.Vehicles},
	} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+step.table+` WHERE tenant_id=$1`, tenantID)
		if err != nil {
			return FleetCounts{}, fmt.Errorf("store: clear %s: %w", step.table, err)
		}
		n, _ := res.RowsAffected()
		*step.n = int(n)
	}
	if err := tx.Commit(); err != nil {
		return FleetCounts{}, fmt.Errorf("store: clear fleet: %w", err)
	}
	return counts, nil
}

func (p *Postgres) execOne(ctx context.Context, q, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, q, tenantID, id)
	if err != nil {
		return fmt.Errorf("store: %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Plans

func (p *Postgres) SavePlan(ctx context.Context, plan model.Plan) error {
	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("store: encode plan: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO plans (id, tenant_id, plan_date, metric, created_at, routes_count, unassigned_count, total_distance_km, body)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		plan.ID, plan.TenantID, nullIfEmpty(plan.PlanDate), plan.Metric, plan.CreatedAt, len(plan.Routes), len(plan.Unassigned), plan.TotalDistanceKm, body)
	if err != nil {
		return fmt.Errorf("store: save plan: %w", err)
	}
	return nil
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, id string) (model.Plan, error) {
	var body []byte
	err := p.db.QueryRowContext(ctx, `SELECT body FROM plans WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Plan{}, ErrNotFound
	}
	if err != nil {
		return model.Plan{}, fmt.Errorf("store: get plan: %w", err)
	}
	var plan model.Plan
	if err := json.Unmarshal(body, &plan); err != nil {
		return model.Plan{}, fmt.Errorf("store: decode plan %s: %w", id, err)
	}
	return plan, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, planDate, cursor string, limit int) ([]model.PlanSummary, string, error) {
	limit = pageSize(limit)
	q := `SELECT id, COALESCE(plan_date,''), created_at, routes_count, unassigned_count, total_distance_km FROM plans WHERE tenant_id=$1`
	args := []any{tenantID}
	if planDate != "" {
		args = append(args, planDate)
		q += fmt.Sprintf(` AND plan_date=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND (created_at, id) > (SELECT created_at, id FROM plans WHERE tenant_id=$1 AND id=$%d)`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("store: list plans: %w", err)
	}
	defer rows.Close()
	out := []model.PlanSummary{}
	for rows.Next() {
		var s model.PlanSummary
		if err := rows.Scan(&s.ID, &s.PlanDate, &s.CreatedAt, &s.Routes, &s.Unassigned, &s.TotalDistanceKm); err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("store: create subscription: %w", err)
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	filter, _ := json.Marshal([]string{eventType})
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, string(filter))
	if err != nil {
		return nil, fmt.Errorf("store: subscriptions for %s: %w", eventType, err)
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	limit = pageSize(limit)
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("store: list subscriptions: %w", err)
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s := model.Subscription{TenantID: tenantID}
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	return p.execOne(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	var id string
	err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING
        RETURNING id`, uuid.New().String(), tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, computeDedupKey(payload)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: enqueue webhook: %w", err)
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, COALESCE(subscription_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: due webhooks: %w", err)
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryInfo, string, error) {
	limit = pageSize(limit)
	q := `SELECT id, event_type, status, attempts, url, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0) FROM webhook_deliveries WHERE tenant_id=$1 AND id > $2`
	args := []any{tenantID, cursor}
	if status != "" {
		args = append(args, status)
		q += ` AND status=$3`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("store: list webhooks: %w", err)
	}
	defer rows.Close()
	out := []DeliveryInfo{}
	for rows.Next() {
		var d DeliveryInfo
		var nextAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.EventType, &d.Status, &d.Attempts, &d.URL, &nextAt, &d.LastError, &d.ResponseCode); err != nil {
			return nil, "", err
		}
		if nextAt.Valid && (d.Status == DeliveryPending || d.Status == DeliveryRetry) {
			d.NextAttemptAt = &nextAt.Time
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	return p.execOne(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

// computeDedupKey prefers the event id inside the payload and falls back
// to a short content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
