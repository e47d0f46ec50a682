package darp

import (
	"context"
	"fmt"
	"math"
)

// RiderGateway releases simulation resources held by a waiting rider
// when their reservation is rejected.
type RiderGateway interface {
	Reject(ctx context.Context, reservationID string) error
}

// VehicleState is the per-cycle snapshot of one fleet member.
type VehicleState struct {
	ID       string
	Location Location
	Capacity int      // total seats; the running load is checked against it
	Onboard  []string // reservation ids currently picked up
	Plan     []Stop   // remaining committed stops, next first
}

type stopPair struct {
	From StopNode
	To   StopNode
}

// RVGraph holds the pairwise feasible next-stop transitions of the
// current cycle: vehicle-to-pickup edges, vehicle-to-dropoff edges for
// onboard riders, and stop-to-stop edges from feasible interleavings.
// It is owned by the Cycle and refreshed, never rebuilt from a global.
type RVGraph struct {
	vehicle map[string]map[string]float64 // reservation id -> vehicle id -> travel time
	dropoff map[string]float64            // onboard reservation id -> travel time to its dropoff
	stop    map[stopPair]float64          // feasible adjacent stop transitions
}

// NewRVGraph returns an empty graph.
func NewRVGraph() *RVGraph {
	return &RVGraph{
		vehicle: map[string]map[string]float64{},
		dropoff: map[string]float64{},
		stop:    map[stopPair]float64{},
	}
}

// RefreshInput carries the cycle snapshot the graph is rebuilt against.
type RefreshInput struct {
	Now          float64
	Reservations map[string]*Reservation
	Vehicles     []VehicleState
}

// Refresh updates the graph incrementally for the current snapshot and
// rejects reservations that no vehicle can reach in time. Rejection is
// an expected outcome under infeasible demand, not an error; the rider
// gateway is notified exactly once per rejected reservation. An oracle
// failure aborts the refresh and poisons the whole cycle.
func (g *RVGraph) Refresh(ctx context.Context, o *oracleMemo, p Params, gateway RiderGateway, in RefreshInput) ([]string, error) {
	vehByID := make(map[string]VehicleState, len(in.Vehicles))
	for _, v := range in.Vehicles {
		vehByID[v.ID] = v
	}
	g.prune(in.Reservations, vehByID)

	var rejected []string
	reject := func(r *Reservation) {
		r.State = Rejected
		r.VehicleID = ""
		delete(g.vehicle, r.ID)
		delete(g.dropoff, r.ID)
		g.dropNodeEdges(r.ID)
		rejected = append(rejected, r.ID)
		if gateway != nil {
			_ = gateway.Reject(ctx, r.ID)
		}
	}

	for _, r := range in.Reservations {
		switch r.State {
		case Assigned:
			// the pickup deadline binds assigned riders too; an assignment
			// is provisional until the pickup happens
			if in.Now > r.Pickup.Latest {
				reject(r)
				continue
			}
			if v, ok := vehByID[r.VehicleID]; ok {
				tt, err := o.travelTime(ctx, v.Location, r.Origin)
				if err != nil {
					return rejected, fmt.Errorf("rv refresh: vehicle %s to reservation %s: %w", v.ID, r.ID, err)
				}
				if isPickupReachable(in.Now, tt, r.Pickup) {
					if g.vehicle[r.ID] == nil {
						g.vehicle[r.ID] = map[string]float64{}
					}
					g.vehicle[r.ID][v.ID] = tt
					continue
				}
			}
			// assigned vehicle left the fleet or can no longer make the
			// pickup; back to the open pool
			r.State = Unassigned
			r.VehicleID = ""
			fallthrough
		case Unassigned:
			if in.Now > r.Pickup.Latest {
				reject(r)
				continue
			}
			edges := map[string]float64{}
			for _, v := range in.Vehicles {
				tt, err := o.travelTime(ctx, v.Location, r.Origin)
				if err != nil {
					return rejected, fmt.Errorf("rv refresh: vehicle %s to reservation %s: %w", v.ID, r.ID, err)
				}
				if isPickupReachable(in.Now, tt, r.Pickup) {
					edges[v.ID] = tt
				}
			}
			if len(edges) == 0 {
				reject(r)
				continue
			}
			g.vehicle[r.ID] = edges
		case PickedUp:
			v, ok := vehByID[r.VehicleID]
			if !ok {
				continue
			}
			tt, err := o.travelTime(ctx, v.Location, r.Destination)
			if err != nil {
				return rejected, fmt.Errorf("rv refresh: dropoff of %s: %w", r.ID, err)
			}
			g.dropoff[r.ID] = tt
			delete(g.vehicle, r.ID)
			g.dropPickupEdges(r.ID)
		}
	}

	if err := g.refreshPairEdges(ctx, o, p, in); err != nil {
		return rejected, err
	}
	return rejected, nil
}

// isPickupReachable is the vehicle-edge feasibility predicate.
func isPickupReachable(now, travelTime float64, pickup Window) bool {
	return now+travelTime <= pickup.Latest+timeEps
}

// prune drops edges referencing terminal reservations or departed vehicles.
func (g *RVGraph) prune(table map[string]*Reservation, vehicles map[string]VehicleState) {
	alive := func(id string) bool {
		r, ok := table[id]
		return ok && !r.State.Terminal()
	}
	for resID, edges := range g.vehicle {
		if !alive(resID) {
			delete(g.vehicle, resID)
			continue
		}
		for vid := range edges {
			if _, ok := vehicles[vid]; !ok {
				delete(edges, vid)
			}
		}
	}
	for resID := range g.dropoff {
		if !alive(resID) {
			delete(g.dropoff, resID)
		}
	}
	for pair := range g.stop {
		if !alive(pair.From.ReservationID) || !alive(pair.To.ReservationID) {
			delete(g.stop, pair)
		}
	}
}

func (g *RVGraph) dropNodeEdges(resID string) {
	for pair := range g.stop {
		if pair.From.ReservationID == resID || pair.To.ReservationID == resID {
			delete(g.stop, pair)
		}
	}
}

func (g *RVGraph) dropPickupEdges(resID string) {
	node := PickupNode(resID)
	for pair := range g.stop {
		if pair.From == node || pair.To == node {
			delete(g.stop, pair)
		}
	}
}

// refreshPairEdges evaluates the valid interleavings of every open pair
// of reservations and records the stop transitions of feasible ones.
func (g *RVGraph) refreshPairEdges(ctx context.Context, o *oracleMemo, p Params, in RefreshInput) error {
	var pending, onboard []*Reservation
	for _, r := range in.Reservations {
		switch r.State {
		case Unassigned, Assigned:
			pending = append(pending, r)
		case PickedUp:
			onboard = append(onboard, r)
		}
	}

	// direct edge pickup -> own dropoff, cost known without the oracle
	for _, r := range pending {
		g.stop[stopPair{From: PickupNode(r.ID), To: DropoffNode(r.ID)}] = r.DirectTime
	}

	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			if err := g.addPairInterleavings(ctx, o, p, in.Now, pending[i], pending[j]); err != nil {
				return err
			}
		}
	}

	// onboard riders participate with their dropoff node only
	for _, ob := range onboard {
		for _, r := range pending {
			if err := g.addOnboardEdges(ctx, o, p, ob, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// addPairInterleavings checks the six valid orderings of two pending
// reservations and records every stop transition of the feasible ones.
func (g *RVGraph) addPairInterleavings(ctx context.Context, o *oracleMemo, p Params, now float64, a, b *Reservation) error {
	ap, ad := PickupNode(a.ID), DropoffNode(a.ID)
	bp, bd := PickupNode(b.ID), DropoffNode(b.ID)
	res := map[string]*Reservation{a.ID: a, b.ID: b}

	interleaved := [][]StopNode{
		{ap, bp, bd, ad},
		{ap, bp, ad, bd},
		{bp, ap, bd, ad},
		{bp, ap, ad, bd},
	}
	for _, seq := range interleaved {
		ok, err := g.sequenceFeasible(ctx, o, p, now, res, seq)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := g.recordSequence(ctx, o, res, seq); err != nil {
			return err
		}
	}

	// sequential chains: finish one reservation, then start the other
	if err := g.addChainEdge(ctx, o, p, now, a, b); err != nil {
		return err
	}
	return g.addChainEdge(ctx, o, p, now, b, a)
}

// addChainEdge records first.dropoff -> second.pickup when the second
// pickup window is still open after the first ride completes.
func (g *RVGraph) addChainEdge(ctx context.Context, o *oracleMemo, p Params, now float64, first, second *Reservation) error {
	tt, err := o.travelTime(ctx, first.Destination, second.Origin)
	if err != nil {
		return err
	}
	depart := math.Max(now, first.Dropoff.Earliest) + p.DropoffTime
	if depart+tt <= second.Pickup.Latest+timeEps {
		g.stop[stopPair{From: DropoffNode(first.ID), To: PickupNode(second.ID)}] = tt
	}
	return nil
}

// addOnboardEdges links an onboard rider's dropoff with a pending
// reservation's nodes in both directions when the windows can chain.
func (g *RVGraph) addOnboardEdges(ctx context.Context, o *oracleMemo, p Params, ob, r *Reservation) error {
	obd := DropoffNode(ob.ID)
	for _, node := range []StopNode{PickupNode(r.ID), DropoffNode(r.ID)} {
		loc, win := nodePlace(r, node.Action)
		tt, err := o.travelTime(ctx, ob.Destination, loc)
		if err != nil {
			return err
		}
		if ob.Dropoff.Earliest+p.DropoffTime+tt <= win.Latest+timeEps {
			g.stop[stopPair{From: obd, To: node}] = tt
		}
		back, err := o.travelTime(ctx, loc, ob.Destination)
		if err != nil {
			return err
		}
		if win.Earliest+p.serviceTime(node.Action)+back <= ob.Dropoff.Latest+timeEps {
			g.stop[stopPair{From: node, To: obd}] = back
		}
	}
	return nil
}

// sequenceFeasible simulates a stop sequence from its first window
// opening and checks both reservations' windows. Capacity is not
// checked here; it is vehicle-dependent and enforced by the enumerator.
func (g *RVGraph) sequenceFeasible(ctx context.Context, o *oracleMemo, p Params, now float64, res map[string]*Reservation, seq []StopNode) (bool, error) {
	firstLoc, firstWin := nodePlace(res[seq[0].ReservationID], seq[0].Action)
	t := math.Max(now, firstWin.Earliest)
	if t > firstWin.Latest+timeEps {
		return false, nil
	}
	load := seq[0].Delta()
	loc := firstLoc
	prev := seq[0]
	for _, node := range seq[1:] {
		nextLoc, win := nodePlace(res[node.ReservationID], node.Action)
		tt, err := o.travelTime(ctx, loc, nextLoc)
		if err != nil {
			return false, err
		}
		t += p.serviceTime(prev.Action) + tt
		var ok bool
		t, ok = applyWindow(t, win, load)
		if !ok {
			return false, nil
		}
		load += node.Delta()
		loc = nextLoc
		prev = node
	}
	return true, nil
}

// recordSequence stores every consecutive transition of a feasible sequence.
func (g *RVGraph) recordSequence(ctx context.Context, o *oracleMemo, res map[string]*Reservation, seq []StopNode) error {
	for i := 0; i+1 < len(seq); i++ {
		fromLoc, _ := nodePlace(res[seq[i].ReservationID], seq[i].Action)
		toLoc, _ := nodePlace(res[seq[i+1].ReservationID], seq[i+1].Action)
		tt, err := o.travelTime(ctx, fromLoc, toLoc)
		if err != nil {
			return err
		}
		g.stop[stopPair{From: seq[i], To: seq[i+1]}] = tt
	}
	return nil
}

// applyWindow enforces the arrival window with the waiting rule: an
// early arrival snaps up to the window opening only when the vehicle is
// empty; with passengers aboard waiting would delay them, so an early
// arrival is infeasible. Late arrivals are always infeasible.
func applyWindow(arrival float64, w Window, load int) (float64, bool) {
	if arrival > w.Latest+timeEps {
		return arrival, false
	}
	if arrival < w.Earliest-timeEps {
		if load > 0 {
			return arrival, false
		}
		return w.Earliest, true
	}
	return arrival, true
}

// nodePlace resolves a node's location and service window.
func nodePlace(r *Reservation, a Action) (Location, Window) {
	if a == Pickup {
		return r.Origin, r.Pickup
	}
	return r.Destination, r.Dropoff
}

// stopEdge returns the cached travel time for an adjacent transition.
func (g *RVGraph) stopEdge(from, to StopNode) (float64, bool) {
	tt, ok := g.stop[stopPair{From: from, To: to}]
	return tt, ok
}

// vehicleEdge returns the cached travel time from a vehicle to a pickup.
func (g *RVGraph) vehicleEdge(resID, vehID string) (float64, bool) {
	edges, ok := g.vehicle[resID]
	if !ok {
		return 0, false
	}
	tt, ok := edges[vehID]
	return tt, ok
}
