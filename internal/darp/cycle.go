package darp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Fleet is the dispatcher's view of the vehicles: a consistent snapshot
// per cycle and a way to commit the selected stop plans.
type Fleet interface {
	Vehicles(ctx context.Context) ([]VehicleState, error)
	SetPlan(ctx context.Context, vehicleID string, plan []Stop) error
}

// Result summarizes one dispatch cycle.
type Result struct {
	Now         float64
	Plans       map[string][]Stop   // vehicle id -> committed stop plan
	Assigned    map[string]string   // reservation id -> vehicle id
	Rejected    []string            // reservations rejected this cycle
	Unassigned  []string            // still open, retried next cycle
	Exact       bool                // false when the search budget truncated enumeration
	OracleCalls int                 // distinct oracle queries this cycle
	Elapsed     time.Duration
}

// Dispatcher owns the reservation table and the RV graph and runs the
// periodic dispatch cycles. Cycles are serialized; reservation mutations
// between cycles go through the same lock.
type Dispatcher struct {
	mu           sync.Mutex
	params       Params
	oracle       TravelTimeOracle
	fleet        Fleet
	gateway      RiderGateway
	clock        func() time.Time
	graph        *RVGraph
	reservations map[string]*Reservation
}

// NewDispatcher wires a dispatcher. The gateway may be nil when no
// rejection callback is wanted.
func NewDispatcher(p Params, oracle TravelTimeOracle, fleet Fleet, gateway RiderGateway) *Dispatcher {
	return &Dispatcher{
		params:       p.withDefaults(),
		oracle:       oracle,
		fleet:        fleet,
		gateway:      gateway,
		clock:        time.Now,
		graph:        NewRVGraph(),
		reservations: map[string]*Reservation{},
	}
}

// Add registers a new reservation for the next cycle.
func (d *Dispatcher) Add(r *Reservation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.reservations[r.ID]; ok {
		return fmt.Errorf("reservation %s already registered", r.ID)
	}
	d.reservations[r.ID] = r
	return nil
}

// Reservation returns a copy of the reservation's current record.
func (d *Dispatcher) Reservation(id string) (Reservation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.reservations[id]
	if !ok {
		return Reservation{}, false
	}
	return *r, true
}

// MarkPickedUp records that the assigned vehicle serviced the pickup.
func (d *Dispatcher) MarkPickedUp(id, vehicleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s: unknown", id)
	}
	if r.State != Assigned || r.VehicleID != vehicleID {
		return fmt.Errorf("reservation %s: pickup by %s in state %s", id, vehicleID, r.State)
	}
	r.State = PickedUp
	return nil
}

// MarkCompleted records the dropoff; the reservation becomes terminal.
func (d *Dispatcher) MarkCompleted(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s: unknown", id)
	}
	if r.State != PickedUp {
		return fmt.Errorf("reservation %s: completion in state %s", id, r.State)
	}
	r.State = Completed
	return nil
}

// Run executes one dispatch cycle at simulation time now. An oracle
// failure aborts the cycle before any plan is committed; rejections
// established up to that point stand, everything else is retried on the
// next cycle.
func (d *Dispatcher) Run(ctx context.Context, now float64) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	started := d.clock()

	vehicles, err := d.fleet.Vehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch cycle: fleet snapshot: %w", err)
	}

	memo := newOracleMemo(d.oracle)
	rejected, err := d.graph.Refresh(ctx, memo, d.params, d.gateway, RefreshInput{
		Now:          now,
		Reservations: d.reservations,
		Vehicles:     vehicles,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch cycle: %w", err)
	}

	open := d.openReservations()
	enum, err := enumerate(ctx, d.graph, memo, d.params, d.clock, EnumInput{
		Now:      now,
		Open:     open,
		Vehicles: vehicles,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch cycle: enumeration: %w", err)
	}

	assignment := selectTrips(enum, open)

	res := &Result{
		Now:      now,
		Plans:    make(map[string][]Stop, len(assignment.Trips)),
		Assigned: map[string]string{},
		Rejected: rejected,
		Exact:    enum.Exact,
	}

	// commit: push plans to the fleet first, then advance reservation
	// state, so a fleet error leaves the table untouched
	for vid, trip := range assignment.Trips {
		if err := d.fleet.SetPlan(ctx, vid, trip.Stops); err != nil {
			return nil, fmt.Errorf("dispatch cycle: commit plan for %s: %w", vid, err)
		}
		res.Plans[vid] = trip.Stops
	}
	servedBy := map[string]string{}
	for vid, trip := range assignment.Trips {
		for _, id := range trip.Served {
			servedBy[id] = vid
		}
	}
	for _, r := range open {
		if r.State == PickedUp {
			continue // rides in progress keep their vehicle
		}
		if vid, ok := servedBy[r.ID]; ok {
			r.State = Assigned
			r.VehicleID = vid
			res.Assigned[r.ID] = vid
		} else if len(res.Plans) > 0 {
			// assignments are provisional until pickup; a cycle that
			// replanned without this reservation returns it to the pool
			if _, replanned := res.Plans[r.VehicleID]; replanned || r.VehicleID == "" {
				r.State = Unassigned
				r.VehicleID = ""
			}
		}
	}
	// report the pool as the table now stands, not as selection saw it
	for _, r := range open {
		if r.State == Unassigned {
			res.Unassigned = append(res.Unassigned, r.ID)
		}
	}

	res.OracleCalls = memo.calls
	res.Elapsed = d.clock().Sub(started)
	RecordCycleMetrics(CycleMetrics{
		Now:         now,
		Vehicles:    len(vehicles),
		Open:        len(open),
		Trips:       len(enum.Trips),
		AssignedNow: len(res.Assigned),
		Rejected:    len(rejected),
		Exact:       enum.Exact,
		OracleCalls: memo.calls,
		Elapsed:     res.Elapsed,
	})
	return res, nil
}

// openReservations snapshots the non-terminal reservations in a stable
// order so bit indices are reproducible within the cycle.
func (d *Dispatcher) openReservations() []*Reservation {
	out := make([]*Reservation, 0, len(d.reservations))
	for _, r := range d.reservations {
		if !r.State.Terminal() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
