package fleet

import (
	"context"
	"testing"

	"darpnav/internal/darp"
	"darpnav/internal/model"
	"darpnav/internal/store"
)

func TestStoreFleetRoundTrip(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateVehicle(ctx, "t1", model.VehicleIn{ID: "v1", Location: "depot", Capacity: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	f := NewStoreFleet(m, "t1")
	plan := []darp.Stop{
		{ReservationID: "r1", Action: darp.Pickup, Location: "a", Arrival: 10},
		{ReservationID: "r1", Action: darp.Dropoff, Location: "b", Arrival: 70},
	}
	if err := f.SetPlan(ctx, "v1", plan); err != nil {
		t.Fatalf("set plan: %v", err)
	}

	vehicles, err := f.Vehicles(ctx)
	if err != nil || len(vehicles) != 1 {
		t.Fatalf("vehicles: %v %v", vehicles, err)
	}
	v := vehicles[0]
	if v.ID != "v1" || v.Location != "depot" || v.Capacity != 2 {
		t.Fatalf("vehicle = %+v", v)
	}
	if len(v.Plan) != 2 || v.Plan[0].Action != darp.Pickup || v.Plan[1].Action != darp.Dropoff {
		t.Fatalf("plan = %+v", v.Plan)
	}
	if v.Plan[1].Arrival != 70 {
		t.Fatalf("arrival = %v", v.Plan[1].Arrival)
	}
}

func TestStoreFleetTenantScoped(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateVehicle(ctx, "other", model.VehicleIn{ID: "v1", Location: "x", Capacity: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	f := NewStoreFleet(m, "t1")
	vehicles, err := f.Vehicles(ctx)
	if err != nil || len(vehicles) != 0 {
		t.Fatalf("leaked vehicles: %v %v", vehicles, err)
	}
	if err := f.SetPlan(ctx, "v1", nil); err == nil {
		t.Fatalf("cross-tenant plan write must fail")
	}
}
