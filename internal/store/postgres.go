package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"darpnav/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir, in name order. Statements
// use IF NOT EXISTS so reapplying is harmless.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sqlText, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(sqlText)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func toJSON(v any) []byte {
	if v == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Reservations

func (p *Postgres) CreateReservation(ctx context.Context, tenantID string, in model.ReservationIn) (model.ReservationOut, error) {
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	var exists string
	err := p.db.QueryRowContext(ctx, `SELECT id FROM reservations WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&exists)
	if err == nil {
		return model.ReservationOut{}, ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.ReservationOut{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO reservations
		(id, tenant_id, origin, destination, pickup_earliest, pickup_latest, dropoff_earliest, dropoff_latest, direct_time_sec, persons, state, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'unassigned',now())`,
		id, tenantID, in.Origin, in.Destination,
		in.Pickup.Earliest, in.Pickup.Latest, in.Dropoff.Earliest, in.Dropoff.Latest,
		in.DirectTimeSec, toJSON(in.Persons))
	if err != nil {
		return model.ReservationOut{}, err
	}
	return model.ReservationOut{
		ID: id, TenantID: tenantID,
		Origin: in.Origin, Destination: in.Destination,
		Pickup: in.Pickup, Dropoff: in.Dropoff,
		DirectTimeSec: in.DirectTimeSec, Persons: in.Persons,
		State: "unassigned",
	}, nil
}

func scanReservation(row interface{ Scan(...any) error }) (model.ReservationOut, error) {
	var r model.ReservationOut
	var persons []byte
	var vehicleID sql.NullString
	err := row.Scan(&r.ID, &r.TenantID, &r.Origin, &r.Destination,
		&r.Pickup.Earliest, &r.Pickup.Latest, &r.Dropoff.Earliest, &r.Dropoff.Latest,
		&r.DirectTimeSec, &persons, &r.State, &vehicleID)
	if err != nil {
		return r, err
	}
	if len(persons) > 0 {
		_ = json.Unmarshal(persons, &r.Persons)
	}
	r.VehicleID = vehicleID.String
	return r, nil
}

const reservationCols = `id, tenant_id, origin, destination, pickup_earliest, pickup_latest, dropoff_earliest, dropoff_latest, direct_time_sec, persons, state, vehicle_id`

func (p *Postgres) GetReservation(ctx context.Context, tenantID, id string) (model.ReservationOut, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM reservations WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListReservations(ctx context.Context, tenantID, state, cursor string, limit int) ([]model.ReservationOut, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + reservationCols + ` FROM reservations WHERE tenant_id=$1`
	args := []any{tenantID}
	if state != "" {
		args = append(args, state)
		q += fmt.Sprintf(` AND state=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.ReservationOut{}
	var last string
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
		last = r.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) UpdateReservationState(ctx context.Context, tenantID, id, state, vehicleID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE reservations SET state=$3, vehicle_id=$4, updated_at=now() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, state, nullIfEmpty(vehicleID))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Vehicles

func (p *Postgres) CreateVehicle(ctx context.Context, tenantID string, in model.VehicleIn) (model.Vehicle, error) {
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	var exists string
	err := p.db.QueryRowContext(ctx, `SELECT id FROM vehicles WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&exists)
	if err == nil {
		return model.Vehicle{}, ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO vehicles (id, tenant_id, location, capacity, onboard, plan, created_at)
		VALUES ($1,$2,$3,$4,'[]','[]',now())`, id, tenantID, in.Location, in.Capacity)
	if err != nil {
		return model.Vehicle{}, err
	}
	return model.Vehicle{ID: id, TenantID: tenantID, Location: in.Location, Capacity: in.Capacity}, nil
}

func scanVehicle(row interface{ Scan(...any) error }) (model.Vehicle, error) {
	var v model.Vehicle
	var onboard, plan []byte
	if err := row.Scan(&v.ID, &v.TenantID, &v.Location, &v.Capacity, &onboard, &plan); err != nil {
		return v, err
	}
	if len(onboard) > 0 {
		_ = json.Unmarshal(onboard, &v.Onboard)
	}
	if len(plan) > 0 {
		_ = json.Unmarshal(plan, &v.Plan)
	}
	return v, nil
}

func (p *Postgres) GetVehicle(ctx context.Context, tenantID, id string) (model.Vehicle, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, tenant_id, location, capacity, onboard, plan FROM vehicles WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	return v, err
}

func (p *Postgres) ListVehicles(ctx context.Context, tenantID string) ([]model.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, location, capacity, onboard, plan FROM vehicles WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Postgres) UpdateVehicleTelemetry(ctx context.Context, tenantID, id string, tel model.VehicleTelemetry) (model.Vehicle, error) {
	v, err := p.GetVehicle(ctx, tenantID, id)
	if err != nil {
		return v, err
	}
	if tel.Location != "" {
		v.Location = tel.Location
	}
	if tel.Onboard != nil {
		v.Onboard = tel.Onboard
	}
	if tel.PlanDone > 0 && tel.PlanDone <= len(v.Plan) {
		v.Plan = v.Plan[tel.PlanDone:]
	}
	_, err = p.db.ExecContext(ctx, `UPDATE vehicles SET location=$3, onboard=$4, plan=$5, updated_at=now() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, v.Location, toJSON(v.Onboard), toJSON(v.Plan))
	return v, err
}

func (p *Postgres) SaveVehiclePlan(ctx context.Context, tenantID, id string, plan []model.StopOut) error {
	res, err := p.db.ExecContext(ctx, `UPDATE vehicles SET plan=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, toJSON(plan))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Dispatch cycles

func (p *Postgres) SaveDispatchCycle(ctx context.Context, tenantID string, rec model.DispatchRecord) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO dispatch_cycles (id, tenant_id, ts, now_sec, exact_search, oracle_calls, elapsed_ms, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.CycleID, tenantID, rec.TS, rec.NowSec, rec.Exact, rec.OracleCalls, rec.ElapsedMs, toJSON(rec))
	return err
}

func (p *Postgres) ListDispatchCycles(ctx context.Context, tenantID, cursor string, limit int) ([]model.DispatchRecord, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT payload FROM dispatch_cycles WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.DispatchRecord{}
	var last string
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, "", err
		}
		var rec model.DispatchRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, "", err
		}
		out = append(out, rec)
		last = rec.CycleID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret, created_at) VALUES ($1,$2,$3,$4,$5,now())`,
		id, req.TenantID, req.URL, toJSON(req.Events), req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND events @> $2`,
		tenantID, toJSON([]string{eventType}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries
		(id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, created_at
		FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3, delivered_at=now() WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5 WHERE id=$1`,
		id, lastError, responseCode, latencyMs, next)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, event_type, status, attempts, url, last_error, next_attempt_at FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, eventType, st string
		var attempts int
		var url string
		var lastErr sql.NullString
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastErr, &nextAt); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if lastErr.Valid && lastErr.String != "" {
			item["lastError"] = lastErr.String
		}
		if nextAt.Valid {
			item["nextAttemptAt"] = nextAt.Time
		}
		out = append(out, item)
		last = id
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Solver config

func (p *Postgres) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT cfg FROM solver_configs WHERE tenant_id=$1`, tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO solver_configs (tenant_id, cfg, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (tenant_id) DO UPDATE SET cfg=EXCLUDED.cfg, updated_at=now()`, tenantID, toJSON(cfg))
	return err
}
