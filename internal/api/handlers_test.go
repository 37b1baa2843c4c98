package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeplan/internal/auth"
	"routeplan/internal/config"
	"routeplan/internal/model"
	"routeplan/internal/planner"
	"routeplan/internal/store"
	"routeplan/internal/webhooks"
)

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	store *store.Memory
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	var cfg config.Config
	cfg.Planner.Metric = "equirectangular"
	rps := 1000.0
	cfg.Rate.RPS = &rps
	cfg.Rate.Burst = 1000
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	st := store.NewMemory()
	broker := NewBroker()
	pl := planner.New(st, cfg.Planner, zerolog.Nop())
	pl.Events = broker
	pl.Webhooks = webhooks.NewPublisher(st)

	s := NewServer(cfg, st, broker, pl, zerolog.Nop())
	hs := httptest.NewServer(s.Routes())
	t.Cleanup(hs.Close)
	return &testEnv{srv: s, http: hs, store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, hdr map[string]string) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	resp := e.do(t, http.MethodPut, "/v1/depot", model.Depot{Name: "hub", Location: model.GeoPoint{Lat: 0, Lng: 0}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(t, http.MethodPost, "/v1/customers", map[string]any{"customers": []model.Customer{
		{ID: "c1", Location: model.GeoPoint{Lat: 0.1, Lng: 0}, Demand: 2},
		{ID: "c2", Location: model.GeoPoint{Lat: 0.1, Lng: 0.1}, Demand: 2},
		{ID: "c3", Location: model.GeoPoint{Lat: -0.1, Lng: 0}, Demand: 2},
	}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.do(t, http.MethodPost, "/v1/vehicles", map[string]any{"vehicles": []model.Vehicle{
		{ID: "v1", Capacity: 4},
		{ID: "v2", Capacity: 4},
	}}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthReady(t *testing.T) {
	e := newTestEnv(t, nil)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil, nil).StatusCode)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/readyz", nil, nil).StatusCode)

	resp := e.do(t, http.MethodGet, "/v1/debug", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Contains(t, body, "build")
}

func TestFleetCRUD(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seed(t)

	resp := e.do(t, http.MethodGet, "/v1/customers?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[listResponse[model.Customer]](t, resp)
	assert.Len(t, list.Items, 2)
	assert.NotEmpty(t, list.NextCursor)

	resp = e.do(t, http.MethodGet, "/v1/customers?cursor="+list.NextCursor, nil, nil)
	list = decode[listResponse[model.Customer]](t, resp)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "c3", list.Items[0].ID)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/customers/c3", nil, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/v1/customers/c3", nil, nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/vehicles/v2", nil, nil).StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/depot", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hub", decode[model.Depot](t, resp).Name)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/v1/depot", nil, map[string]string{"X-Tenant-Id": "other"}).StatusCode)
}

func TestDeleteDepotAndFleetReset(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seed(t)

	viewer := map[string]string{"X-Role": "viewer"}
	planner := map[string]string{"X-Role": "planner"}
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodDelete, "/v1/depot", nil, viewer).StatusCode)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/depot", nil, planner).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/v1/depot", nil, nil).StatusCode)
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil).StatusCode)

	resp := e.do(t, http.MethodPut, "/v1/depot", model.Depot{Name: "hub"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodDelete, "/v1/admin/fleet", nil, planner).StatusCode)

	resp = e.do(t, http.MethodDelete, "/v1/admin/fleet", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, store.FleetCounts{Depots: 1, Customers: 3, Vehicles: 2}, decode[store.FleetCounts](t, resp))

	resp = e.do(t, http.MethodGet, "/v1/customers", nil, nil)
	assert.Empty(t, decode[listResponse[model.Customer]](t, resp).Items)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/v1/depot", nil, nil).StatusCode)
}

func TestFleetValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodPut, "/v1/depot", model.Depot{Location: model.GeoPoint{Lat: 100}}},
		{http.MethodPost, "/v1/customers", map[string]any{"customers": []model.Customer{{Demand: -1}}}},
		{http.MethodPost, "/v1/customers", map[string]any{"customers": []model.Customer{}}},
		{http.MethodPost, "/v1/vehicles", map[string]any{"vehicles": []model.Vehicle{{ID: "a", Capacity: 1}, {ID: "a", Capacity: 1}}}},
		{http.MethodPost, "/v1/vehicles", map[string]any{"vehicles": []model.Vehicle{{Capacity: 0}}}},
		{http.MethodPost, "/v1/vehicles", map[string]any{"trucks": 1}},
	}
	for _, tc := range cases {
		resp := e.do(t, tc.method, tc.path, tc.body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	}
}

func TestCreateAndFetchPlan(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seed(t)

	resp := e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{PlanDate: "2026-03-02"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	plan := decode[model.Plan](t, resp)
	assert.Equal(t, "/v1/plans/"+plan.ID, resp.Header.Get("Location"))
	routed := 0
	for _, r := range plan.Routes {
		assert.LessOrEqual(t, r.Demand, r.Capacity)
		routed += len(r.Stops)
	}
	assert.Equal(t, 3, routed+len(plan.Unassigned))

	resp = e.do(t, http.MethodGet, "/v1/plans/"+plan.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, plan.ID, decode[model.Plan](t, resp).ID)

	resp = e.do(t, http.MethodGet, "/v1/plans?planDate=2026-03-02", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sums := decode[listResponse[model.PlanSummary]](t, resp)
	require.Len(t, sums.Items, 1)
	assert.Equal(t, plan.ID, sums.Items[0].ID)

	resp = e.do(t, http.MethodGet, "/v1/plans?planDate=2020-01-01", nil, nil)
	assert.Empty(t, decode[listResponse[model.PlanSummary]](t, resp).Items)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/v1/plans/missing", nil, nil).StatusCode)
}

func TestCreatePlanErrors(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Planner.MaxCustomers = 2 })

	resp := e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	e.seed(t)
	resp = e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{CustomerIDs: []string{"c1"}, Metric: "taxicab"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{PlanDate: "tomorrow"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreatePlanInfeasibleSelection(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seed(t)
	big := []model.Customer{{ID: "big", Location: model.GeoPoint{Lat: 0.2, Lng: 0}, Demand: 9}}

	resp := e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{Customers: big, Strict: true}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	prob := decode[infeasibleProblem](t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, prob.Status)
	codes := []string{}
	for _, w := range prob.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []string{model.WarnDemandExceedsFleet, model.WarnCustomerTooLarge}, codes)

	resp = e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{Customers: big}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	plan := decode[model.Plan](t, resp)
	assert.Equal(t, []string{"big"}, plan.Unassigned)
	assert.Len(t, plan.Warnings, 2)
}

func TestPlanRateLimit(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) {
		rps := 0.001
		c.Rate.RPS = &rps
		c.Rate.Burst = 1
	})
	e.seed(t)
	assert.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil).StatusCode)
	resp := e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestPlanRateLimitDisabled(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) {
		off := 0.0
		c.Rate.RPS = &off
		c.Rate.Burst = 1
	})
	assert.Nil(t, e.srv.planLimiter)
	e.seed(t)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil).StatusCode)
	}
}

func TestRoles(t *testing.T) {
	e := newTestEnv(t, nil)
	viewer := map[string]string{"X-Role": "viewer"}
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, viewer).StatusCode)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/v1/subscriptions", nil, viewer).StatusCode)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/v1/plans", nil, viewer).StatusCode)
}

func TestBearerAuth(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) {
		c.Auth.Mode = "hmac"
		c.Auth.HMACSecret = "k"
	})
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/v1/plans", nil, nil).StatusCode)

	tok, err := auth.SignHS256("k", map[string]any{"tenant": "acme", "role": "planner"})
	require.NoError(t, err)
	hdr := map[string]string{"Authorization": "Bearer " + tok, "X-Tenant-Id": "ignored"}
	resp := e.do(t, http.MethodPut, "/v1/depot", model.Depot{Name: "acme hub"}, hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "acme", decode[model.Depot](t, resp).TenantID)
}

func TestSubscriptionsAndDeliveries(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seed(t)

	resp := e.do(t, http.MethodPost, "/v1/subscriptions", model.SubscriptionRequest{URL: "ftp://x", Events: []string{model.EventPlanCompleted}}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/subscriptions", model.SubscriptionRequest{URL: "https://hooks.example/plan", Events: []string{model.EventPlanCompleted}}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sub := decode[model.Subscription](t, resp)
	assert.Equal(t, defaultTenant, sub.TenantID)

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil).StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/admin/webhook-deliveries?status=pending", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	deliveries := decode[listResponse[store.DeliveryInfo]](t, resp)
	require.Len(t, deliveries.Items, 1)
	d := deliveries.Items[0]
	assert.Equal(t, model.EventPlanCompleted, d.EventType)

	assert.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, "/v1/admin/webhook-deliveries/"+d.ID+"/retry", nil, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/v1/admin/webhook-deliveries/nope/retry", nil, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/v1/admin/webhook-deliveries?status=lost", nil, nil).StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/subscriptions", nil, nil)
	assert.Len(t, decode[listResponse[model.Subscription]](t, resp).Items, 1)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil, nil).StatusCode)
}

func TestPlanEventsSSE(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seed(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.http.URL+"/v1/plans/events/stream", nil)
	require.NoError(t, err)
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: heartbeat", lines.Text())

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil).StatusCode)
	found := false
	for lines.Scan() {
		if lines.Text() == "event: "+model.EventPlanCompleted {
			found = true
			require.True(t, lines.Scan())
			assert.True(t, strings.HasPrefix(lines.Text(), "data: {"))
			break
		}
	}
	assert.True(t, found)
}

func TestPlanEventsWebSocket(t *testing.T) {
	e := newTestEnv(t, nil)
	e.seed(t)

	u := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/v1/plans/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg wsMessage
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "subscribe", ID: "early"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init"}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "connection_ack", msg.Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: json.RawMessage(`{"events":["plan.completed"]}`)}))
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Type)

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/plans", model.PlanRequest{}, nil).StatusCode)
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "next", msg.Type)
	assert.Equal(t, "1", msg.ID)
	var evt model.Event
	require.NoError(t, json.Unmarshal(msg.Payload, &evt))
	assert.Equal(t, model.EventPlanCompleted, evt.Type)
	assert.NotEmpty(t, evt.Data["planId"])

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "complete", ID: "1"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "complete", msg.Type)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, nil)
	_ = e.do(t, http.MethodGet, "/healthz", nil, nil)
	resp := e.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `http_requests_total{method="GET",path="GET /healthz",status="200"}`)
}

func TestValidateSubscription(t *testing.T) {
	ok := model.SubscriptionRequest{URL: "http://x.example/h", Events: []string{model.EventPlanFailed}}
	assert.NoError(t, validateSubscription(&ok))
	bad := model.SubscriptionRequest{URL: "http://x.example/h", Events: []string{"route.updated"}}
	assert.Error(t, validateSubscription(&bad))
	none := model.SubscriptionRequest{URL: "http://x.example/h"}
	assert.Error(t, validateSubscription(&none))
}
