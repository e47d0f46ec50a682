package store

import (
	"context"
	"errors"
	"time"

	"darpnav/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Reservations
	CreateReservation(ctx context.Context, tenantID string, in model.ReservationIn) (model.ReservationOut, error)
	GetReservation(ctx context.Context, tenantID, id string) (model.ReservationOut, error)
	ListReservations(ctx context.Context, tenantID, state, cursor string, limit int) ([]model.ReservationOut, string, error)
	UpdateReservationState(ctx context.Context, tenantID, id, state, vehicleID string) error

	// Vehicles
	CreateVehicle(ctx context.Context, tenantID string, in model.VehicleIn) (model.Vehicle, error)
	GetVehicle(ctx context.Context, tenantID, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context, tenantID string) ([]model.Vehicle, error)
	UpdateVehicleTelemetry(ctx context.Context, tenantID, id string, tel model.VehicleTelemetry) (model.Vehicle, error)
	SaveVehiclePlan(ctx context.Context, tenantID, id string, plan []model.StopOut) error

	// Dispatch cycles
	SaveDispatchCycle(ctx context.Context, tenantID string, rec model.DispatchRecord) error
	ListDispatchCycles(ctx context.Context, tenantID, cursor string, limit int) ([]model.DispatchRecord, string, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Solver config per tenant
	GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error)
	SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)
