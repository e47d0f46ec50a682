package darp

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

// lineOracle models a one-dimensional road: locations are coordinates
// and travel time is their distance. It counts queries per OD pair so
// memoization can be asserted.
type lineOracle struct {
	seen map[odPair]int
}

func newLineOracle() *lineOracle { return &lineOracle{seen: map[odPair]int{}} }

func (o *lineOracle) TravelTime(_ context.Context, from, to Location) (float64, error) {
	a, err := strconv.ParseFloat(string(from), 64)
	if err != nil {
		return 0, err
	}
	b, err := strconv.ParseFloat(string(to), 64)
	if err != nil {
		return 0, err
	}
	o.seen[odPair{from: from, to: to}]++
	if a > b {
		return a - b, nil
	}
	return b - a, nil
}

type stubFleet struct {
	vehicles []VehicleState
	plans    map[string][]Stop
}

func (f *stubFleet) Vehicles(_ context.Context) ([]VehicleState, error) {
	out := make([]VehicleState, len(f.vehicles))
	copy(out, f.vehicles)
	for i := range out {
		out[i].Plan = f.plans[out[i].ID]
	}
	return out, nil
}

func (f *stubFleet) SetPlan(_ context.Context, vehicleID string, plan []Stop) error {
	if f.plans == nil {
		f.plans = map[string][]Stop{}
	}
	f.plans[vehicleID] = plan
	return nil
}

type stubGateway struct {
	rejects map[string]int
}

func (g *stubGateway) Reject(_ context.Context, id string) error {
	if g.rejects == nil {
		g.rejects = map[string]int{}
	}
	g.rejects[id]++
	return nil
}

func mustReservation(t *testing.T, id string, origin, dest Location, pickup, dropoff Window, direct float64) *Reservation {
	t.Helper()
	r, err := NewReservation(id, origin, dest, pickup, dropoff, direct, nil)
	if err != nil {
		t.Fatalf("reservation %s: %v", id, err)
	}
	return r
}

func TestSingleRequestAssignment(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, &stubGateway{})
	r := mustReservation(t, "r1", "100", "500", Window{0, 200}, Window{400, 1000}, 400)
	if err := d.Add(r); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := res.Assigned["r1"]; got != "v1" {
		t.Fatalf("assigned to %q", got)
	}
	plan := res.Plans["v1"]
	if len(plan) != 2 || plan[0].Action != Pickup || plan[1].Action != Dropoff {
		t.Fatalf("plan = %+v", plan)
	}
	if plan[0].Arrival != 100 || plan[1].Arrival != 500 {
		t.Fatalf("arrivals = %v, %v", plan[0].Arrival, plan[1].Arrival)
	}
	if !res.Exact {
		t.Fatalf("budget must not truncate a two-stop search")
	}
	if got, _ := d.Reservation("r1"); got.State != Assigned || got.VehicleID != "v1" {
		t.Fatalf("reservation state %s vehicle %q", got.State, got.VehicleID)
	}
}

func TestServiceTimesShiftArrivals(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	d := NewDispatcher(Params{PickupTime: 30, DropoffTime: 60}, newLineOracle(), fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 200}, Window{400, 1000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	plan := res.Plans["v1"]
	if len(plan) != 2 {
		t.Fatalf("plan = %+v", plan)
	}
	// pickup at 100, then 30s boarding before departing
	if plan[1].Arrival != 530 {
		t.Fatalf("dropoff arrival = %v", plan[1].Arrival)
	}
}

func TestUnreachableReservationRejectedOnce(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	gw := &stubGateway{}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, gw)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 50}, Window{400, 1000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "r1" {
		t.Fatalf("rejected = %v", res.Rejected)
	}
	if got, _ := d.Reservation("r1"); got.State != Rejected {
		t.Fatalf("state = %s", got.State)
	}

	// rejection is absorbing; the next cycle must not touch the rider again
	res, err = d.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(res.Rejected) != 0 {
		t.Fatalf("second cycle rejected = %v", res.Rejected)
	}
	if gw.rejects["r1"] != 1 {
		t.Fatalf("gateway called %d times", gw.rejects["r1"])
	}
}

func TestPairSharingPrefersInterleavedRoute(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 2}}}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "10", "200", Window{0, 100}, Window{190, 1000}, 190)); err != nil {
		t.Fatalf("add r1: %v", err)
	}
	if err := d.Add(mustReservation(t, "r2", "20", "150", Window{0, 100}, Window{130, 1000}, 130)); err != nil {
		t.Fatalf("add r2: %v", err)
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Assigned["r1"] != "v1" || res.Assigned["r2"] != "v1" {
		t.Fatalf("assigned = %v", res.Assigned)
	}
	plan := res.Plans["v1"]
	want := []StopNode{PickupNode("r1"), PickupNode("r2"), DropoffNode("r2"), DropoffNode("r1")}
	if len(plan) != len(want) {
		t.Fatalf("plan = %+v", plan)
	}
	for i, s := range plan {
		if (StopNode{ReservationID: s.ReservationID, Action: s.Action}) != want[i] {
			t.Fatalf("stop %d = %s:%s", i, s.ReservationID, s.Action)
		}
	}
	if plan[3].Arrival != 200 {
		t.Fatalf("final arrival = %v", plan[3].Arrival)
	}
}

func TestCapacityOneForcesSequentialService(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 1}}}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "10", "200", Window{0, 100}, Window{190, 1000}, 190)); err != nil {
		t.Fatalf("add r1: %v", err)
	}
	if err := d.Add(mustReservation(t, "r2", "20", "150", Window{0, 100}, Window{130, 1000}, 130)); err != nil {
		t.Fatalf("add r2: %v", err)
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// no chain fits both windows, so the earlier-finishing single ride wins
	if res.Assigned["r2"] != "v1" {
		t.Fatalf("assigned = %v", res.Assigned)
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0] != "r1" {
		t.Fatalf("unassigned = %v", res.Unassigned)
	}
	for _, s := range res.Plans["v1"] {
		if s.ReservationID == "r1" {
			t.Fatalf("seat-constrained plan includes r1: %+v", res.Plans["v1"])
		}
	}
}

func TestNoDoubleAssignmentAcrossVehicles(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{
		{ID: "v1", Location: "0", Capacity: 4},
		{ID: "v2", Location: "5", Capacity: 4},
	}}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "10", "100", Window{0, 100}, Window{90, 1000}, 90)); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Plans) != 1 {
		t.Fatalf("plans = %v", res.Plans)
	}
	// the closer vehicle finishes earlier and wins the trip
	if res.Assigned["r1"] != "v2" {
		t.Fatalf("assigned = %v", res.Assigned)
	}
}

func TestOracleMemoizationWithinCycle(t *testing.T) {
	oracle := newLineOracle()
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 2}}}
	d := NewDispatcher(Params{}, oracle, fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "10", "200", Window{0, 100}, Window{190, 1000}, 190)); err != nil {
		t.Fatalf("add r1: %v", err)
	}
	if err := d.Add(mustReservation(t, "r2", "20", "150", Window{0, 100}, Window{130, 1000}, 130)); err != nil {
		t.Fatalf("add r2: %v", err)
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	total := 0
	for pair, n := range oracle.seen {
		if n != 1 {
			t.Fatalf("pair %v queried %d times", pair, n)
		}
		total += n
	}
	if total != res.OracleCalls {
		t.Fatalf("oracle saw %d queries, cycle reported %d", total, res.OracleCalls)
	}
}

func TestPickedUpRiderKeepsVehicleUntilDropoff(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	gw := &stubGateway{}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, gw)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 200}, Window{400, 1000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := d.Run(context.Background(), 0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := d.MarkPickedUp("r1", "v1"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	fleet.vehicles[0].Location = "100"
	fleet.vehicles[0].Onboard = []string{"r1"}
	fleet.plans["v1"] = fleet.plans["v1"][1:] // pickup already serviced

	res, err := d.Run(context.Background(), 100)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	plan := res.Plans["v1"]
	if len(plan) != 1 || plan[0].Action != Dropoff || plan[0].ReservationID != "r1" {
		t.Fatalf("plan = %+v", plan)
	}
	if plan[0].Arrival != 500 {
		t.Fatalf("dropoff arrival = %v", plan[0].Arrival)
	}
	if got, _ := d.Reservation("r1"); got.State != PickedUp || got.VehicleID != "v1" {
		t.Fatalf("state = %s vehicle %q", got.State, got.VehicleID)
	}

	if err := d.MarkCompleted("r1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := d.MarkCompleted("r1"); err == nil {
		t.Fatalf("double completion must fail")
	}
	if len(gw.rejects) != 0 {
		t.Fatalf("completed ride must not reject: %v", gw.rejects)
	}
}

func TestExpiredAssignedPickupRejected(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	gw := &stubGateway{}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, gw)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 200}, Window{400, 1000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := d.Run(context.Background(), 0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if got, _ := d.Reservation("r1"); got.State != Assigned {
		t.Fatalf("state = %s", got.State)
	}

	// the vehicle never moved and the pickup window closed
	res, err := d.Run(context.Background(), 250)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "r1" {
		t.Fatalf("rejected = %v", res.Rejected)
	}
	if len(res.Unassigned) != 0 {
		t.Fatalf("unassigned = %v", res.Unassigned)
	}
	if got, _ := d.Reservation("r1"); got.State != Rejected || got.VehicleID != "" {
		t.Fatalf("state = %s vehicle %q", got.State, got.VehicleID)
	}
	if gw.rejects["r1"] != 1 {
		t.Fatalf("gateway called %d times", gw.rejects["r1"])
	}

	// rejection is absorbing across later cycles
	res, err = d.Run(context.Background(), 400)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if len(res.Rejected) != 0 || gw.rejects["r1"] != 1 {
		t.Fatalf("third cycle rejected = %v, gateway = %d", res.Rejected, gw.rejects["r1"])
	}
}

func TestAssignedVehicleOutOfRangeReassigns(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{
		{ID: "v1", Location: "0", Capacity: 4},
		{ID: "v2", Location: "300", Capacity: 4},
	}}
	gw := &stubGateway{}
	d := NewDispatcher(Params{}, newLineOracle(), fleet, gw)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 600}, Window{400, 2000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Assigned["r1"] != "v1" {
		t.Fatalf("assigned = %v", res.Assigned)
	}

	// v1 drifts out of range while the window is still open; the rider
	// returns to the pool and the other vehicle takes over
	fleet.vehicles[0].Location = "900"

	res, err = d.Run(context.Background(), 50)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Assigned["r1"] != "v2" {
		t.Fatalf("assigned = %v", res.Assigned)
	}
	if got, _ := d.Reservation("r1"); got.State != Assigned || got.VehicleID != "v2" {
		t.Fatalf("state = %s vehicle %q", got.State, got.VehicleID)
	}
	if len(res.Rejected) != 0 || len(gw.rejects) != 0 {
		t.Fatalf("handover must not reject: %v %v", res.Rejected, gw.rejects)
	}
}

func TestLifecycleGuards(t *testing.T) {
	d := NewDispatcher(Params{}, newLineOracle(), &stubFleet{}, nil)
	r := mustReservation(t, "r1", "10", "100", Window{0, 100}, Window{90, 1000}, 90)
	if err := d.Add(r); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.Add(r); err == nil {
		t.Fatalf("duplicate add must fail")
	}
	if err := d.MarkPickedUp("r1", "v1"); err == nil {
		t.Fatalf("pickup before assignment must fail")
	}
	if err := d.MarkCompleted("r1"); err == nil {
		t.Fatalf("completion before pickup must fail")
	}
	if err := d.MarkPickedUp("ghost", "v1"); err == nil {
		t.Fatalf("unknown reservation must fail")
	}
}

func TestReroutingSolverAssigns(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	d := NewDispatcher(Params{Solver: SolverRerouting}, newLineOracle(), fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 200}, Window{400, 1000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Assigned["r1"] != "v1" {
		t.Fatalf("assigned = %v", res.Assigned)
	}
	if !res.Exact {
		t.Fatalf("rerouting has no budget and is always exact")
	}
}

func TestExhaustedBudgetReportsInexact(t *testing.T) {
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	d := NewDispatcher(Params{RTVTime: 5 * time.Second}, newLineOracle(), fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 200}, Window{400, 1000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}

	// every clock read jumps 10s, so the budget expires before any pop
	now := time.Unix(0, 0)
	d.clock = func() time.Time {
		now = now.Add(10 * time.Second)
		return now
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Exact {
		t.Fatalf("truncated search must report inexact")
	}
	if got, _ := d.Reservation("r1"); got.State != Unassigned {
		t.Fatalf("truncation must not reject: state = %s", got.State)
	}
}

func TestOracleFailureAbortsCycle(t *testing.T) {
	boom := errors.New("routing backend down")
	fleet := &stubFleet{vehicles: []VehicleState{{ID: "v1", Location: "0", Capacity: 4}}}
	d := NewDispatcher(Params{}, OracleFunc(func(context.Context, Location, Location) (float64, error) {
		return 0, boom
	}), fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "100", "500", Window{0, 200}, Window{400, 1000}, 400)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := d.Run(context.Background(), 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if got, _ := d.Reservation("r1"); got.State != Unassigned {
		t.Fatalf("failed cycle must not commit: state = %s", got.State)
	}
	if len(fleet.plans) != 0 {
		t.Fatalf("failed cycle must not push plans: %v", fleet.plans)
	}
}

func TestIdleTwinVehiclesShareSearch(t *testing.T) {
	oracle := newLineOracle()
	fleet := &stubFleet{vehicles: []VehicleState{
		{ID: "v1", Location: "0", Capacity: 4},
		{ID: "v2", Location: "0", Capacity: 4},
		{ID: "v3", Location: "0", Capacity: 4},
	}}
	d := NewDispatcher(Params{}, oracle, fleet, nil)
	if err := d.Add(mustReservation(t, "r1", "10", "100", Window{0, 100}, Window{90, 1000}, 90)); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := d.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Assigned) != 1 {
		t.Fatalf("assigned = %v", res.Assigned)
	}
	// identical idle vehicles add zero extra oracle load
	for pair, n := range oracle.seen {
		if n != 1 {
			t.Fatalf("pair %v queried %d times", pair, n)
		}
	}
}
