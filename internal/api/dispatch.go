package api

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"darpnav/internal/config"
	"darpnav/internal/darp"
	"darpnav/internal/fleet"
	"darpnav/internal/metrics"
	"darpnav/internal/model"
	"darpnav/internal/router"
)

// dispatchManager keeps one dispatcher per tenant. Runtimes are built
// lazily from the store so a restarted server picks up open reservations.
type dispatchManager struct {
	srv     *Server
	oracle  darp.TravelTimeOracle
	backend string

	mu       sync.Mutex
	runtimes map[string]*tenantRuntime
}

type tenantRuntime struct {
	disp   *darp.Dispatcher
	fleet  *fleet.StoreFleet
	params darp.Params
}

func newDispatchManager(s *Server) *dispatchManager {
	backend := s.cfg.Oracle.Backend
	if backend == "" {
		backend = "static"
	}
	return &dispatchManager{
		srv:      s,
		oracle:   buildOracle(s.cfg),
		backend:  backend,
		runtimes: map[string]*tenantRuntime{},
	}
}

func buildOracle(cfg config.Config) darp.TravelTimeOracle {
	var inner darp.TravelTimeOracle
	switch cfg.Oracle.Backend {
	case "http":
		inner = router.NewHTTPOracle(cfg.Oracle.BaseURL, cfg.Solver.RoutingMode, cfg.Oracle.RPS)
	default:
		inner = router.NewMatrix(cfg.Oracle.TravelTimes)
	}
	if url := os.Getenv("REDIS_URL"); url != "" && cfg.CacheTTL() > 0 {
		if opt, err := redis.ParseURL(url); err == nil {
			inner = router.NewRedisCache(inner, redis.NewClient(opt), cfg.Solver.RoutingMode, cfg.CacheTTL())
		}
	}
	return inner
}

// runtime returns the tenant's dispatcher, creating it on first use and
// seeding it with the tenant's non-terminal reservations.
func (m *dispatchManager) runtime(ctx context.Context, tenantID string) (*tenantRuntime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.runtimes[tenantID]; ok {
		return rt, nil
	}
	params := m.srv.cfg.Params()
	if stored, err := m.srv.Store.GetSolverConfig(ctx, tenantID); err == nil {
		params = config.ParamsFromMap(params, stored)
	}
	fl := fleet.NewStoreFleet(m.srv.Store, tenantID)
	gw := &storeGateway{srv: m.srv, tenantID: tenantID}
	disp := darp.NewDispatcher(params, m.oracle, fl, gw)
	if err := m.seed(ctx, tenantID, disp); err != nil {
		return nil, err
	}
	rt := &tenantRuntime{disp: disp, fleet: fl, params: params}
	m.runtimes[tenantID] = rt
	return rt, nil
}

func (m *dispatchManager) seed(ctx context.Context, tenantID string, disp *darp.Dispatcher) error {
	cursor := ""
	for {
		items, next, err := m.srv.Store.ListReservations(ctx, tenantID, "", cursor, 500)
		if err != nil {
			return fmt.Errorf("seed dispatcher for %s: %w", tenantID, err)
		}
		for _, it := range items {
			r, err := reservationFromRecord(it)
			if err != nil || r == nil {
				continue
			}
			_ = disp.Add(r)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return nil
}

// reservationFromRecord rebuilds the dispatcher's view of a stored
// reservation. Terminal records return nil; they never re-enter the pool.
func reservationFromRecord(rec model.ReservationOut) (*darp.Reservation, error) {
	switch rec.State {
	case "completed", "rejected":
		return nil, nil
	}
	r, err := darp.NewReservation(rec.ID,
		darp.Location(rec.Origin), darp.Location(rec.Destination),
		darp.Window{Earliest: rec.Pickup.Earliest, Latest: rec.Pickup.Latest},
		darp.Window{Earliest: rec.Dropoff.Earliest, Latest: rec.Dropoff.Latest},
		rec.DirectTimeSec, rec.Persons)
	if err != nil {
		return nil, err
	}
	switch rec.State {
	case "assigned":
		r.State = darp.Assigned
		r.VehicleID = rec.VehicleID
	case "picked_up":
		r.State = darp.PickedUp
		r.VehicleID = rec.VehicleID
	}
	return r, nil
}

// invalidate drops a tenant's runtime so the next cycle rebuilds it
// with fresh solver parameters. State reloads from the store.
func (m *dispatchManager) invalidate(tenantID string) {
	m.mu.Lock()
	delete(m.runtimes, tenantID)
	m.mu.Unlock()
}

// storeGateway receives rejection callbacks from the dispatcher and
// fans them out to the store, webhooks, and the event broker.
type storeGateway struct {
	srv      *Server
	tenantID string
}

func (g *storeGateway) Reject(ctx context.Context, reservationID string) error {
	if err := g.srv.Store.UpdateReservationState(ctx, g.tenantID, reservationID, "rejected", ""); err != nil {
		return err
	}
	metrics.ReservationsRejected.WithLabelValues(g.tenantID).Inc()
	data := map[string]any{"reservationId": reservationID, "ts": time.Now().UTC().Format(time.RFC3339)}
	g.srv.Pub.Emit(ctx, g.tenantID, "reservation.rejected", data)
	g.srv.Broker.Publish(reservationID, SSEEvent{Type: "reservation.rejected", Data: data})
	return nil
}

// runCycle executes one dispatch cycle for the tenant and persists the
// outcome before returning it.
func (m *dispatchManager) runCycle(ctx context.Context, tenantID string, nowSec float64) (*darp.Result, *tenantRuntime, error) {
	rt, err := m.runtime(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	res, err := rt.disp.Run(ctx, nowSec)
	if err != nil {
		return nil, nil, err
	}
	metrics.DispatchCycles.WithLabelValues(tenantID, rt.params.Solver).Inc()
	metrics.DispatchDuration.WithLabelValues(tenantID, rt.params.Solver).Observe(res.Elapsed.Seconds())
	if !res.Exact {
		metrics.DispatchInexact.WithLabelValues(tenantID).Inc()
	}
	metrics.OracleCalls.WithLabelValues(m.backend).Add(float64(res.OracleCalls))
	return res, rt, nil
}

// StartDispatchLoop runs periodic dispatch cycles for one tenant using
// wall-clock epoch seconds as simulation time. Close the returned
// channel to stop the loop.
func (s *Server) StartDispatchLoop(tenantID string, interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				res, _, err := s.dispatch.runCycle(ctx, tenantID, float64(time.Now().Unix()))
				if err == nil {
					s.commitCycle(ctx, tenantID, res)
				}
				cancel()
			}
		}
	}()
	return stop
}

// add registers a new reservation with the tenant's dispatcher, if one
// is already running. Absent runtimes pick it up from the store later.
func (m *dispatchManager) add(rec model.ReservationOut, tenantID string) {
	m.mu.Lock()
	rt, ok := m.runtimes[tenantID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if r, err := reservationFromRecord(rec); err == nil && r != nil {
		_ = rt.disp.Add(r)
	}
}
