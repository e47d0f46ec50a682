package main

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"darpnav/internal/api"
	"darpnav/internal/metrics"
)

func main() {
	srvDeps, err := api.NewServer()
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Reservations
	mux.HandleFunc("/v1/reservations", srvDeps.ReservationsHandler)
	mux.HandleFunc("/v1/reservations/", srvDeps.ReservationByIDHandler) // includes /events/stream

	// Vehicles
	mux.HandleFunc("/v1/vehicles", srvDeps.VehiclesHandler)
	mux.HandleFunc("/v1/vehicles/", srvDeps.VehicleByIDHandler) // includes /telemetry, /events/stream
	mux.HandleFunc("/v1/vehicle-locations", srvDeps.VehicleLocationsHandler)

	// Dispatch
	mux.HandleFunc("/v1/dispatch/run", srvDeps.DispatchRunHandler)
	mux.HandleFunc("/v1/dispatch/cycles", srvDeps.DispatchCyclesHandler)
	mux.HandleFunc("/v1/rider-events", srvDeps.RiderEventsHandler)

	// Solver configuration
	mux.HandleFunc("/v1/solver/config", srvDeps.SolverConfigHandler)
	mux.HandleFunc("/v1/admin/solver/config", srvDeps.AdminSolverConfigHandler)

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

	// Health
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

	// Admin
	mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)
	mux.HandleFunc("/v1/admin/dispatch-metrics", srvDeps.DispatchMetricsHandler)
	mux.HandleFunc("/debug/config", srvDeps.DebugJSON)

	// WebSocket subscriptions endpoint
	mux.HandleFunc("/v1/events/ws", srvDeps.EventsWSHandler)

	// Prometheus
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	// Start webhook worker
	if srvDeps.Pub != nil {
		worker := srvDeps.NewWebhookWorker()
		worker.Start()
	}
	// Optional periodic dispatch loop
	if v := os.Getenv("DISPATCH_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			tenant := os.Getenv("DISPATCH_TENANT")
			if tenant == "" {
				tenant = "t_demo"
			}
			srvDeps.StartDispatchLoop(tenant, d)
			log.Printf("dispatch loop for %s every %s", tenant, d)
		}
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(c int) {
	w.code = c
	w.ResponseWriter.WriteHeader(c)
}

// SSE and websocket handlers need the underlying Flusher/Hijacker.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		status := strconv.Itoa(sw.code)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		log.Printf("%s %s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, status, dur)
	})
}
