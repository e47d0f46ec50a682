// Package fleet adapts the persistence layer to the dispatcher's view
// of one tenant's vehicles.
package fleet

import (
	"context"
	"fmt"

	"darpnav/internal/darp"
	"darpnav/internal/model"
	"darpnav/internal/store"
)

// StoreFleet reads vehicle snapshots from the store and writes committed
// plans back to it.
type StoreFleet struct {
	store    store.Store
	tenantID string
}

func NewStoreFleet(s store.Store, tenantID string) *StoreFleet {
	return &StoreFleet{store: s, tenantID: tenantID}
}

func (f *StoreFleet) Vehicles(ctx context.Context) ([]darp.VehicleState, error) {
	vehicles, err := f.store.ListVehicles(ctx, f.tenantID)
	if err != nil {
		return nil, fmt.Errorf("fleet snapshot: %w", err)
	}
	out := make([]darp.VehicleState, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, darp.VehicleState{
			ID:       v.ID,
			Location: darp.Location(v.Location),
			Capacity: v.Capacity,
			Onboard:  append([]string(nil), v.Onboard...),
			Plan:     StopsIn(v.Plan),
		})
	}
	return out, nil
}

func (f *StoreFleet) SetPlan(ctx context.Context, vehicleID string, plan []darp.Stop) error {
	if err := f.store.SaveVehiclePlan(ctx, f.tenantID, vehicleID, StopsOut(plan)); err != nil {
		return fmt.Errorf("commit plan for %s: %w", vehicleID, err)
	}
	return nil
}

// StopsIn converts persisted plan entries to dispatcher stops.
func StopsIn(plan []model.StopOut) []darp.Stop {
	if len(plan) == 0 {
		return nil
	}
	out := make([]darp.Stop, 0, len(plan))
	for _, s := range plan {
		action := darp.Pickup
		if s.Action == darp.Dropoff.String() {
			action = darp.Dropoff
		}
		out = append(out, darp.Stop{
			ReservationID: s.ReservationID,
			Action:        action,
			Location:      darp.Location(s.Location),
			Arrival:       s.ArrivalSec,
		})
	}
	return out
}

// StopsOut converts dispatcher stops to their persisted form.
func StopsOut(plan []darp.Stop) []model.StopOut {
	out := make([]model.StopOut, 0, len(plan))
	for _, s := range plan {
		out = append(out, model.StopOut{
			ReservationID: s.ReservationID,
			Action:        s.Action.String(),
			Location:      string(s.Location),
			ArrivalSec:    s.Arrival,
		})
	}
	return out
}
