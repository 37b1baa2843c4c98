package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	// Plans counts planning runs by outcome (ok, invalid, cancelled, error)
	Plans = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routeplan_plans_total", Help: "Planning runs by outcome."},
		[]string{"outcome"},
	)
	// SolveDuration records solver wall time in seconds by metric
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "routeplan_solve_duration_seconds", Help: "Solver wall time in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5, 10, 30}},
		[]string{"metric"},
	)
	// PlanCustomers records how many customers each plan considered
	PlanCustomers = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "routeplan_plan_customers", Help: "Customers per plan.", Buckets: prometheus.ExponentialBuckets(1, 2, 12)},
	)
	// SavingsPairs records the size of the savings table of each plan
	SavingsPairs = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "routeplan_savings_pairs", Help: "Positive savings pairs per plan.", Buckets: prometheus.ExponentialBuckets(1, 4, 12)},
	)
	// RoutesPlanned counts routes produced
	RoutesPlanned = prometheus.NewCounter(prometheus.CounterOpts{Name: "routeplan_routes_total", Help: "Routes produced by the planner."})
	// UnassignedCustomers counts customers left without a route
	UnassignedCustomers = prometheus.NewCounter(prometheus.CounterOpts{Name: "routeplan_unassigned_customers_total", Help: "Customers left unassigned."})
	// TruncatedRoutes counts routes discarded to fit the fleet size
	TruncatedRoutes = prometheus.NewCounter(prometheus.CounterOpts{Name: "routeplan_truncated_routes_total", Help: "Routes discarded because more routes than vehicles were formed."})
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(Plans)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(PlanCustomers)
		Registry.MustRegister(SavingsPairs)
		Registry.MustRegister(RoutesPlanned)
		Registry.MustRegister(UnassignedCustomers)
		Registry.MustRegister(TruncatedRoutes)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
