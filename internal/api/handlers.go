package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"darpnav/internal/darp"
	"darpnav/internal/fleet"
	"darpnav/internal/integrations/csvfeed"
	"darpnav/internal/model"
	"darpnav/internal/store"
)

// ReservationsHandler handles POST/GET /v1/reservations. POST accepts
// a JSON batch or a text/csv body in the booking feed format.
func (s *Server) ReservationsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		_, tenant := s.withTenant(r)
		var items []model.ReservationIn
		if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
			parsed, err := csvfeed.Parse(r.Body)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
				return
			}
			items = parsed
		} else {
			var req struct {
				TenantID     string                `json:"tenantId"`
				Reservations []model.ReservationIn `json:"reservations"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			if req.TenantID != "" {
				tenant = req.TenantID
			}
			items = req.Reservations
		}
		if len(items) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing reservations", "", r.URL.Path)
			return
		}
		created, failed := s.createReservations(r.Context(), tenant, items)
		writeJSON(w, http.StatusAccepted, map[string]any{"created": created, "failed": failed})
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		state := r.URL.Query().Get("state")
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListReservations(r.Context(), tenant, state, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List reservations failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// createReservations validates and stores a batch, registering each
// accepted reservation with the tenant's dispatcher.
func (s *Server) createReservations(ctx context.Context, tenant string, items []model.ReservationIn) ([]model.ReservationOut, []map[string]any) {
	created := []model.ReservationOut{}
	failed := []map[string]any{}
	for _, in := range items {
		if in.ID == "" {
			in.ID = "res_" + uuid.New().String()
		}
		if err := validateReservation(in); err != nil {
			failed = append(failed, map[string]any{"id": in.ID, "reason": err.Error()})
			continue
		}
		out, err := s.Store.CreateReservation(ctx, tenant, in)
		if err != nil {
			reason := "create failed"
			if errors.Is(err, store.ErrConflict) {
				reason = "duplicate id"
			}
			failed = append(failed, map[string]any{"id": in.ID, "reason": reason})
			continue
		}
		created = append(created, out)
		s.dispatch.add(out, tenant)
		data := map[string]any{"reservationId": out.ID, "ts": time.Now().UTC().Format(time.RFC3339)}
		s.Pub.Emit(ctx, tenant, "reservation.created", data)
		s.Broker.Publish(out.ID, SSEEvent{Type: "reservation.created", Data: data})
	}
	return created, failed
}

// ReservationByIDHandler handles GET /v1/reservations/{id} and the
// per-reservation SSE stream at /v1/reservations/{id}/events/stream.
func (s *Server) ReservationByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/reservations/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, tenant := s.withTenant(r)
		if _, err := s.Store.GetReservation(r.Context(), tenant, id); err != nil {
			writeProblem(w, http.StatusNotFound, "Reservation not found", err.Error(), r.URL.Path)
			return
		}
		s.streamEvents(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	res, err := s.Store.GetReservation(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Reservation not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// streamEvents serves broker events for one key over SSE with periodic
// heartbeats.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, key string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(key)
	defer s.Broker.Unsubscribe(key, ch)
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"key\":\"%s\",\"ts\":\"%s\"}\n\n", key, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"key\":\"%s\",\"ts\":\"%s\"}\n\n", key, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// VehiclesHandler handles POST/GET /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	_, tenant := s.withTenant(r)
	pr := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !(pr.IsAdmin() || pr.Role == "dispatcher") {
			writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var in model.VehicleIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if in.Location == "" || in.Capacity <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid vehicle", "location and positive capacity required", r.URL.Path)
			return
		}
		if in.ID == "" {
			in.ID = "veh_" + uuid.New().String()
		}
		v, err := s.Store.CreateVehicle(r.Context(), tenant, in)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, store.ErrConflict) {
				code = http.StatusConflict
			}
			writeProblem(w, code, "Create vehicle failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	case http.MethodGet:
		items, err := s.Store.ListVehicles(r.Context(), tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// VehicleByIDHandler handles GET /v1/vehicles/{id}, POST .../telemetry,
// and the vehicle SSE stream at .../events/stream.
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	_, tenant := s.withTenant(r)
	pr := s.getPrincipal(r)
	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !(pr.IsAdmin() || pr.Role == "dispatcher" || (pr.Role == "driver" && pr.VehicleID == id)) {
			writeProblem(w, 403, "Forbidden", "not authorized for vehicle events", r.URL.Path)
			return
		}
		s.streamEvents(w, r, id)
		return
	}
	if len(parts) > 1 && parts[1] == "telemetry" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !(pr.IsAdmin() || pr.Role == "dispatcher" || (pr.Role == "driver" && pr.VehicleID == id)) {
			writeProblem(w, 403, "Forbidden", "not authorized for vehicle telemetry", r.URL.Path)
			return
		}
		var tel model.VehicleTelemetry
		if err := json.NewDecoder(r.Body).Decode(&tel); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		v, err := s.Store.UpdateVehicleTelemetry(r.Context(), tenant, id, tel)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				code = http.StatusNotFound
			}
			writeProblem(w, code, "Telemetry update failed", err.Error(), r.URL.Path)
			return
		}
		ts := time.Now().UTC().Format(time.RFC3339)
		if tel.Location != "" {
			s.Locations.Upsert(tenant, id, tel.Location, ts)
		}
		s.Broker.Publish(id, SSEEvent{Type: "vehicle.telemetry", Data: map[string]any{
			"vehicleId": id, "location": tel.Location, "onboard": tel.Onboard, "ts": ts,
		}})
		writeJSON(w, http.StatusOK, v)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	v, err := s.Store.GetVehicle(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Vehicle not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// VehicleLocationsHandler handles GET /v1/vehicle-locations
func (s *Server) VehicleLocationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	pr := s.getPrincipal(r)
	if !(pr.IsAdmin() || pr.Role == "dispatcher") {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Locations.ListByTenant(tenant)})
}

// DispatchRunHandler handles POST /v1/dispatch/run
func (s *Server) DispatchRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !(pr.IsAdmin() || pr.Role == "dispatcher") {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.DispatchRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := validateDispatchRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid dispatch request", err.Error(), r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	res, _, err := s.dispatch.runCycle(r.Context(), tenant, req.NowSec)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Dispatch cycle failed", err.Error(), r.URL.Path)
		return
	}
	resp := s.commitCycle(r.Context(), tenant, res)
	writeJSON(w, http.StatusOK, resp)
}

// commitCycle mirrors a cycle outcome into the store and fans out
// events. Rejections were already persisted by the gateway callback.
func (s *Server) commitCycle(ctx context.Context, tenant string, res *darp.Result) model.DispatchResponse {
	cycleID := "cyc_" + uuid.New().String()
	plans := map[string][]model.StopOut{}
	for vid, plan := range res.Plans {
		plans[vid] = fleet.StopsOut(plan)
		s.Broker.Publish(vid, SSEEvent{Type: "plan.updated", Data: map[string]any{
			"vehicleId": vid, "cycleId": cycleID, "stops": len(plan),
		}})
	}
	s.Pub.Emit(ctx, tenant, "plan.updated", map[string]any{"cycleId": cycleID, "vehicles": len(plans)})
	for resID, vid := range res.Assigned {
		_ = s.Store.UpdateReservationState(ctx, tenant, resID, "assigned", vid)
		data := map[string]any{"reservationId": resID, "vehicleId": vid, "cycleId": cycleID}
		s.Pub.Emit(ctx, tenant, "reservation.assigned", data)
		s.Broker.Publish(resID, SSEEvent{Type: "reservation.assigned", Data: data})
	}
	for _, resID := range res.Unassigned {
		_ = s.Store.UpdateReservationState(ctx, tenant, resID, "unassigned", "")
	}
	rec := model.DispatchRecord{
		CycleID:     cycleID,
		TS:          time.Now().UTC().Format(time.RFC3339),
		NowSec:      res.Now,
		Plans:       plans,
		Assigned:    res.Assigned,
		Rejected:    res.Rejected,
		Unassigned:  res.Unassigned,
		Exact:       res.Exact,
		OracleCalls: res.OracleCalls,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	}
	_ = s.Store.SaveDispatchCycle(ctx, tenant, rec)
	return model.DispatchResponse{
		CycleID:     cycleID,
		NowSec:      res.Now,
		Plans:       plans,
		Assigned:    res.Assigned,
		Rejected:    res.Rejected,
		Unassigned:  res.Unassigned,
		Exact:       res.Exact,
		OracleCalls: res.OracleCalls,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	}
}

// DispatchCyclesHandler handles GET /v1/dispatch/cycles
func (s *Server) DispatchCyclesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListDispatchCycles(r.Context(), tenant, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List cycles failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RiderEventsHandler handles POST /v1/rider-events
func (s *Server) RiderEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !(pr.IsAdmin() || pr.Role == "dispatcher" || pr.Role == "driver") {
		writeProblem(w, 403, "Forbidden", "driver, dispatcher or admin required", r.URL.Path)
		return
	}
	var req struct {
		TenantID string             `json:"tenantId"`
		Events   []model.RiderEvent `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		_, req.TenantID = s.withTenant(r)
	}
	rt, err := s.dispatch.runtime(r.Context(), req.TenantID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Dispatcher unavailable", err.Error(), r.URL.Path)
		return
	}
	accepted := 0
	failed := []map[string]any{}
	for _, e := range req.Events {
		if pr.Role == "driver" && pr.VehicleID != "" && e.VehicleID != pr.VehicleID {
			failed = append(failed, map[string]any{"reservationId": e.ReservationID, "reason": "vehicle mismatch"})
			continue
		}
		var evtType, state string
		switch e.Type {
		case "pickup":
			err = rt.disp.MarkPickedUp(e.ReservationID, e.VehicleID)
			evtType, state = "reservation.picked_up", "picked_up"
		case "dropoff":
			err = rt.disp.MarkCompleted(e.ReservationID)
			evtType, state = "reservation.completed", "completed"
		default:
			err = fmt.Errorf("unknown event type %q", e.Type)
		}
		if err != nil {
			failed = append(failed, map[string]any{"reservationId": e.ReservationID, "reason": err.Error()})
			continue
		}
		_ = s.Store.UpdateReservationState(r.Context(), req.TenantID, e.ReservationID, state, e.VehicleID)
		ts := e.TS
		if ts == "" {
			ts = time.Now().UTC().Format(time.RFC3339)
		}
		data := map[string]any{"reservationId": e.ReservationID, "vehicleId": e.VehicleID, "ts": ts}
		s.Pub.Emit(r.Context(), req.TenantID, evtType, data)
		s.Broker.Publish(e.ReservationID, SSEEvent{Type: evtType, Data: data})
		s.Broker.Publish(e.VehicleID, SSEEvent{Type: evtType, Data: data})
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted, "failed": failed})
}

// SolverConfigHandler returns effective solver configuration
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	base := s.cfg.Params()
	defaults := map[string]any{
		"darp_solver":      base.Solver,
		"rtv_time":         base.RTVTime.String(),
		"c_ko":             base.CKO,
		"veh_time_pickup":  base.PickupTime,
		"veh_time_dropoff": base.DropoffTime,
		"routing_mode":     base.RoutingMode,
	}
	p := s.getPrincipal(r)
	cfg, _ := s.Store.GetSolverConfig(r.Context(), p.Tenant)
	if cfg != nil {
		for k, v := range cfg {
			defaults[k] = v
		}
	}
	writeJSON(w, 200, map[string]any{"defaults": defaults})
}

// Admin get/set solver tenant config
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/solver/config" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, _ := s.Store.GetSolverConfig(r.Context(), p.Tenant)
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, 200, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, 400, "Missing config", "", r.URL.Path)
			return
		}
		if err := validateSolverConfig(body.Config); err != nil {
			writeProblem(w, 400, "Invalid solver config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveSolverConfig(r.Context(), p.Tenant, body.Config); err != nil {
			writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path)
			return
		}
		s.dispatch.invalidate(p.Tenant)
		writeJSON(w, 200, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// DispatchMetricsHandler handles GET /v1/admin/dispatch-metrics
func (s *Server) DispatchMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/dispatch-metrics" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	m, ok := darp.LastCycleMetrics()
	if !ok {
		writeJSON(w, 200, map[string]any{"lastCycle": nil})
		return
	}
	writeJSON(w, 200, map[string]any{"lastCycle": map[string]any{
		"nowSec":      m.Now,
		"vehicles":    m.Vehicles,
		"open":        m.Open,
		"trips":       m.Trips,
		"assigned":    m.AssignedNow,
		"rejected":    m.Rejected,
		"exact":       m.Exact,
		"oracleCalls": m.OracleCalls,
		"elapsedMs":   m.Elapsed.Milliseconds(),
	}})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		if err := validateSubscription(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
