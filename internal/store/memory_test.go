package store

import (
	"context"
	"errors"
	"testing"

	"darpnav/internal/model"
)

func TestMemoryReservationLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r, err := m.CreateReservation(ctx, "t1", model.ReservationIn{ID: "r1", Origin: "a", Destination: "b", DirectTimeSec: 60})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.State != "unassigned" {
		t.Fatalf("state = %s", r.State)
	}
	if _, err := m.CreateReservation(ctx, "t1", model.ReservationIn{ID: "r1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := m.GetReservation(ctx, "t2", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tenant isolation broken: %v", err)
	}

	if err := m.UpdateReservationState(ctx, "t1", "r1", "assigned", "v1"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := m.GetReservation(ctx, "t1", "r1")
	if err != nil || got.State != "assigned" || got.VehicleID != "v1" {
		t.Fatalf("got %+v err %v", got, err)
	}

	items, _, err := m.ListReservations(ctx, "t1", "assigned", "", 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("list: %v %v", items, err)
	}
}

func TestMemoryVehiclePlan(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.CreateVehicle(ctx, "t1", model.VehicleIn{ID: "v1", Location: "depot", Capacity: 4}); err != nil {
		t.Fatalf("create: %v", err)
	}
	plan := []model.StopOut{
		{ReservationID: "r1", Action: "pickup", Location: "a", ArrivalSec: 10},
		{ReservationID: "r1", Action: "dropoff", Location: "b", ArrivalSec: 70},
	}
	if err := m.SaveVehiclePlan(ctx, "t1", "v1", plan); err != nil {
		t.Fatalf("save plan: %v", err)
	}
	v, err := m.UpdateVehicleTelemetry(ctx, "t1", "v1", model.VehicleTelemetry{Location: "a", Onboard: []string{"r1"}, PlanDone: 1})
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	if len(v.Plan) != 1 || v.Plan[0].Action != "dropoff" {
		t.Fatalf("plan = %+v", v.Plan)
	}
	if err := m.SaveVehiclePlan(ctx, "t1", "ghost", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ghost vehicle: %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://example.com/hook", Events: []string{"reservation.rejected"}, Secret: "s"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "reservation.rejected")
	if err != nil || len(subs) != 1 {
		t.Fatalf("for event: %v %v", subs, err)
	}
	if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "plan.updated"); len(subs) != 0 {
		t.Fatalf("unexpected match: %v", subs)
	}

	id, err := m.EnqueueWebhook(ctx, "t1", sub.ID, "reservation.rejected", sub.URL, sub.Secret, []byte(`{}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %v %v", due, err)
	}
	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 5); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("delivered must not be due: %v", due)
	}
}
