package store

import (
	"context"
	"time"

	"sync"

	"darpnav/internal/model"
	"github.com/google/uuid"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	resv     map[string]model.ReservationOut // id -> reservation
	resvTen  map[string][]string             // tenant -> reservation ids
	vehicles map[string]model.Vehicle        // id -> vehicle
	vehTen   map[string][]string             // tenant -> vehicle ids
	cycles   map[string][]model.DispatchRecord
	subs     map[string][]model.Subscription
	// Webhooks queue state
	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
	solverCfg          map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		resv:               map[string]model.ReservationOut{},
		resvTen:            map[string][]string{},
		vehicles:           map[string]model.Vehicle{},
		vehTen:             map[string][]string{},
		cycles:             map[string][]model.DispatchRecord{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		solverCfg:          map[string]map[string]any{},
	}
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

func (m *Memory) CreateReservation(ctx context.Context, tenantID string, in model.ReservationIn) (model.ReservationOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	if _, ok := m.resv[id]; ok {
		return model.ReservationOut{}, ErrConflict
	}
	r := model.ReservationOut{
		ID: id, TenantID: tenantID,
		Origin: in.Origin, Destination: in.Destination,
		Pickup: in.Pickup, Dropoff: in.Dropoff,
		DirectTimeSec: in.DirectTimeSec, Persons: in.Persons,
		State: "unassigned",
	}
	m.resv[id] = r
	m.resvTen[tenantID] = append(m.resvTen[tenantID], id)
	return r, nil
}

func (m *Memory) GetReservation(ctx context.Context, tenantID, id string) (model.ReservationOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resv[id]
	if !ok || r.TenantID != tenantID {
		return model.ReservationOut{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListReservations(ctx context.Context, tenantID, state, cursor string, limit int) ([]model.ReservationOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.resvTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.ReservationOut{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		r := m.resv[ids[i]]
		if state == "" || r.State == state {
			out = append(out, r)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) UpdateReservationState(ctx context.Context, tenantID, id, state, vehicleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resv[id]
	if !ok || r.TenantID != tenantID {
		return ErrNotFound
	}
	r.State = state
	r.VehicleID = vehicleID
	m.resv[id] = r
	return nil
}

func (m *Memory) CreateVehicle(ctx context.Context, tenantID string, in model.VehicleIn) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	if _, ok := m.vehicles[id]; ok {
		return model.Vehicle{}, ErrConflict
	}
	v := model.Vehicle{ID: id, TenantID: tenantID, Location: in.Location, Capacity: in.Capacity}
	m.vehicles[id] = v
	m.vehTen[tenantID] = append(m.vehTen[tenantID], id)
	return v, nil
}

func (m *Memory) GetVehicle(ctx context.Context, tenantID, id string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListVehicles(ctx context.Context, tenantID string) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Vehicle, 0, len(m.vehTen[tenantID]))
	for _, id := range m.vehTen[tenantID] {
		out = append(out, m.vehicles[id])
	}
	return out, nil
}

func (m *Memory) UpdateVehicleTelemetry(ctx context.Context, tenantID, id string, tel model.VehicleTelemetry) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return model.Vehicle{}, ErrNotFound
	}
	if tel.Location != "" {
		v.Location = tel.Location
	}
	if tel.Onboard != nil {
		v.Onboard = tel.Onboard
	}
	if tel.PlanDone > 0 && tel.PlanDone <= len(v.Plan) {
		v.Plan = append([]model.StopOut(nil), v.Plan[tel.PlanDone:]...)
	}
	m.vehicles[id] = v
	return v, nil
}

func (m *Memory) SaveVehiclePlan(ctx context.Context, tenantID, id string, plan []model.StopOut) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return ErrNotFound
	}
	v.Plan = append([]model.StopOut(nil), plan...)
	m.vehicles[id] = v
	return nil
}

func (m *Memory) SaveDispatchCycle(ctx context.Context, tenantID string, rec model.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[tenantID] = append(m.cycles[tenantID], rec)
	return nil
}

func (m *Memory) ListDispatchCycles(ctx context.Context, tenantID, cursor string, limit int) ([]model.DispatchRecord, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.cycles[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].CycleID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.DispatchRecord(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].CycleID
	}
	return items, next, nil
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
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
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
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
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
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, lst := range m.deliveriesByTenant {
		for _, id := range lst {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
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
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil && d.TenantID == tenantID {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}

func (m *Memory) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.solverCfg[tenantID]; ok {
		return cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solverCfg[tenantID] = cfg
	return nil
}
