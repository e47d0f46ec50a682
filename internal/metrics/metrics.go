package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
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

	// DispatchCycles counts dispatch runs by tenant and solver
	DispatchCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_cycles_total", Help: "Dispatch cycles by tenant and solver."},
		[]string{"tenant", "solver"},
	)
	// DispatchDuration records dispatch cycle wall time in seconds
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dispatch_cycle_duration_seconds", Help: "Dispatch cycle duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}},
		[]string{"tenant", "solver"},
	)
	// DispatchInexact counts cycles that hit the enumeration budget
	DispatchInexact = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_cycles_inexact_total", Help: "Dispatch cycles truncated by the enumeration budget."},
		[]string{"tenant"},
	)
	// ReservationsRejected counts reservations rejected as unservable
	ReservationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reservations_rejected_total", Help: "Reservations rejected as unservable."},
		[]string{"tenant"},
	)
	// OracleCalls counts travel time oracle lookups by backend
	OracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "oracle_calls_total", Help: "Travel time oracle lookups by backend."},
		[]string{"backend"},
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
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(DispatchCycles)
		Registry.MustRegister(DispatchDuration)
		Registry.MustRegister(DispatchInexact)
		Registry.MustRegister(ReservationsRejected)
		Registry.MustRegister(OracleCalls)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
