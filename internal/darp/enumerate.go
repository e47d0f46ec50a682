package darp

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Trip is one candidate ordered stop sequence for one vehicle,
// annotated with arrival time, the reservations it serves, and a cost
// that rewards serving more reservations over finishing earlier.
type Trip struct {
	VehicleID string
	Stops     []Stop
	Arrival   float64
	Served    []string
	Cost      float64

	mask bitmask
}

// ID is the trip's token sequence, vehicle first.
func (t Trip) ID() string {
	var b strings.Builder
	b.WriteString(t.VehicleID)
	for _, s := range t.Stops {
		b.WriteByte('|')
		b.WriteString(s.ReservationID)
		b.WriteByte(':')
		b.WriteString(s.Action.String())
	}
	return b.String()
}

// EnumerationResult is the RTV graph of one cycle. Exact is false when
// the wall-clock budget aborted any vehicle's subtree, so an empty
// result must not be read as a proven no-solution.
type EnumerationResult struct {
	Trips []Trip
	Exact bool
}

// EnumInput is the snapshot the enumerator expands against.
type EnumInput struct {
	Now      float64
	Open     []*Reservation // unassigned, assigned and picked-up reservations
	Vehicles []VehicleState
}

type enumerator struct {
	graph  *RVGraph
	oracle *oracleMemo
	params Params
	clock  func() time.Time
	index  map[string]int // reservation id -> bit index
	table  map[string]*Reservation
}

// Enumerate expands the RV graph into candidate trips per vehicle using
// the configured solver variant.
func enumerate(ctx context.Context, g *RVGraph, o *oracleMemo, p Params, clock func() time.Time, in EnumInput) (EnumerationResult, error) {
	e := &enumerator{
		graph:  g,
		oracle: o,
		params: p,
		clock:  clock,
		index:  make(map[string]int, len(in.Open)),
		table:  make(map[string]*Reservation, len(in.Open)),
	}
	for i, r := range in.Open {
		e.index[r.ID] = i
		e.table[r.ID] = r
	}

	result := EnumerationResult{Exact: true}

	// idle vehicles at the same location with the same capacity share a
	// search tree; reuse the first one's trips with a substituted id
	type twinKey struct {
		loc Location
		cap int
	}
	twins := map[twinKey][]Trip{}

	for _, v := range in.Vehicles {
		idle := len(v.Onboard) == 0 && len(v.Plan) == 0
		var key twinKey
		if idle {
			key = twinKey{loc: v.Location, cap: v.Capacity}
			if trips, ok := twins[key]; ok {
				result.Trips = append(result.Trips, retagTrips(trips, v.ID)...)
				continue
			}
		}

		var trips []Trip
		var exact bool
		var err error
		switch p.Solver {
		case SolverRerouting:
			trips, err = e.rerouteVehicle(ctx, in.Now, v)
			exact = true
		default:
			trips, exact, err = e.searchVehicle(ctx, in.Now, v)
		}
		if err != nil {
			return result, err
		}
		if !exact {
			result.Exact = false
		}
		if idle {
			twins[key] = trips
		}
		result.Trips = append(result.Trips, trips...)
	}

	// a single vehicle has nothing to arbitrate downstream
	if len(in.Vehicles) == 1 && len(result.Trips) > 1 {
		best := result.Trips[0]
		for _, t := range result.Trips[1:] {
			if t.Cost < best.Cost {
				best = t
			}
		}
		result.Trips = []Trip{best}
	}
	return result, nil
}

func retagTrips(trips []Trip, vehicleID string) []Trip {
	out := make([]Trip, len(trips))
	for i, t := range trips {
		c := t
		c.VehicleID = vehicleID
		c.Stops = append([]Stop(nil), t.Stops...)
		out[i] = c
	}
	return out
}

// partialTrip is one leaf of the search tree: its own sequence, clock,
// position and load, independent of any shared tree structure.
type partialTrip struct {
	stops  []Stop
	time   float64
	loc    Location
	load   int
	picked map[string]bool // picked up within this trip
	done   map[string]bool // dropped off within this trip
}

func (pt partialTrip) extend(s Stop, arrival float64, delta int) partialTrip {
	next := partialTrip{
		stops:  append(append([]Stop(nil), pt.stops...), s),
		time:   arrival,
		loc:    s.Location,
		load:   pt.load + delta,
		picked: make(map[string]bool, len(pt.picked)+1),
		done:   make(map[string]bool, len(pt.done)+1),
	}
	for id := range pt.picked {
		next.picked[id] = true
	}
	for id := range pt.done {
		next.done[id] = true
	}
	if s.Action == Pickup {
		next.picked[s.ReservationID] = true
	} else {
		next.done[s.ReservationID] = true
	}
	return next
}

// searchVehicle runs the exhaustive breadth-first expansion for one
// vehicle, time-boxed by the RTV budget. The returned flag is false
// when the budget aborted the subtree before it was exhausted.
func (e *enumerator) searchVehicle(ctx context.Context, now float64, v VehicleState) ([]Trip, bool, error) {
	root := partialTrip{
		time:   now,
		loc:    v.Location,
		load:   len(v.Onboard),
		picked: map[string]bool{},
		done:   map[string]bool{},
	}
	queue := []partialTrip{root}
	deadline := e.clock().Add(e.params.RTVTime)
	exact := true
	var trips []Trip

	// the search tree is rooted at the committed next stop when one exists
	if next, ok := e.liveNextStop(v); ok {
		if cand, feasible, err := e.evalStop(ctx, root, v, next, true); err != nil {
			return nil, exact, err
		} else if feasible {
			queue = []partialTrip{root.extend(cand.stop, cand.arrival, cand.delta)}
			if e.isComplete(queue[0], v) {
				trips = append(trips, e.buildTrip(queue[0], v))
			}
		}
	}

	for len(queue) > 0 {
		if e.clock().After(deadline) {
			exact = false
			break
		}
		pt := queue[0]
		queue = queue[1:]

		cands, err := e.candidates(ctx, pt, v)
		if err != nil {
			return nil, exact, err
		}
		for _, c := range cands {
			next := pt.extend(c.stop, c.arrival, c.delta)
			if e.isComplete(next, v) {
				trips = append(trips, e.buildTrip(next, v))
			}
			queue = append(queue, next)
		}
	}
	return trips, exact, nil
}

// rerouteVehicle is the greedy variant: it keeps the committed stops as
// a fixed prefix and repeatedly appends the single lowest-arrival
// feasible stop. Bounded branching, so no time box is needed.
func (e *enumerator) rerouteVehicle(ctx context.Context, now float64, v VehicleState) ([]Trip, error) {
	pt := partialTrip{
		time:   now,
		loc:    v.Location,
		load:   len(v.Onboard),
		picked: map[string]bool{},
		done:   map[string]bool{},
	}

	// replay the committed plan; a plan made infeasible by traffic drift
	// leaves the vehicle's existing assignment untouched this cycle
	for _, s := range v.Plan {
		r, ok := e.table[s.ReservationID]
		if !ok || r.State.Terminal() {
			continue
		}
		cand, feasible, err := e.evalStop(ctx, pt, v, StopNode{ReservationID: s.ReservationID, Action: s.Action}, true)
		if err != nil {
			return nil, err
		}
		if !feasible {
			return nil, nil
		}
		pt = pt.extend(cand.stop, cand.arrival, cand.delta)
	}

	var trips []Trip
	if e.isComplete(pt, v) && len(pt.stops) > 0 {
		trips = append(trips, e.buildTrip(pt, v))
	}
	for {
		cands, err := e.candidates(ctx, pt, v)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			break
		}
		best := cands[0]
		for _, c := range cands[1:] {
			if c.arrival < best.arrival {
				best = c
			}
		}
		pt = pt.extend(best.stop, best.arrival, best.delta)
		if e.isComplete(pt, v) {
			trips = append(trips, e.buildTrip(pt, v))
		}
	}
	return trips, nil
}

// liveNextStop returns the first stop of the committed plan whose
// reservation is still active.
func (e *enumerator) liveNextStop(v VehicleState) (StopNode, bool) {
	for _, s := range v.Plan {
		if r, ok := e.table[s.ReservationID]; ok && !r.State.Terminal() {
			return StopNode{ReservationID: s.ReservationID, Action: s.Action}, true
		}
	}
	return StopNode{}, false
}

type candidate struct {
	stop    Stop
	arrival float64
	delta   int
}

// candidates lists every feasible one-stop extension of a partial trip.
func (e *enumerator) candidates(ctx context.Context, pt partialTrip, v VehicleState) ([]candidate, error) {
	var out []candidate
	for _, r := range e.openInIndexOrder() {
		for _, node := range e.eligibleNodes(pt, v, r) {
			c, feasible, err := e.evalStop(ctx, pt, v, node, false)
			if err != nil {
				return nil, err
			}
			if feasible {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (e *enumerator) openInIndexOrder() []*Reservation {
	out := make([]*Reservation, 0, len(e.table))
	for _, r := range e.table {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return e.index[out[i].ID] < e.index[out[j].ID] })
	return out
}

// eligibleNodes applies the ordering rules: no double pickup, no
// dropoff without a pickup (in this trip or a prior cycle).
func (e *enumerator) eligibleNodes(pt partialTrip, v VehicleState, r *Reservation) []StopNode {
	var nodes []StopNode
	switch r.State {
	case Unassigned, Assigned:
		if !pt.picked[r.ID] && !pt.done[r.ID] {
			if _, ok := e.graph.vehicleEdge(r.ID, v.ID); ok {
				nodes = append(nodes, PickupNode(r.ID))
			}
		}
		if pt.picked[r.ID] && !pt.done[r.ID] {
			nodes = append(nodes, DropoffNode(r.ID))
		}
	case PickedUp:
		if r.VehicleID == v.ID && !pt.done[r.ID] {
			nodes = append(nodes, DropoffNode(r.ID))
		}
	}
	return nodes
}

// evalStop checks one extension against adjacency, capacity and the
// stop's window, returning the resulting arrival time. forcePlan skips
// the RV adjacency filter when replaying a committed plan.
func (e *enumerator) evalStop(ctx context.Context, pt partialTrip, v VehicleState, node StopNode, forcePlan bool) (candidate, bool, error) {
	r := e.table[node.ReservationID]
	loc, win := nodePlace(r, node.Action)

	if isCapacityExceeded(pt.load, node.Delta(), v.Capacity) {
		return candidate{}, false, nil
	}

	tt, ok, err := e.legTime(ctx, pt, v, node, loc, forcePlan)
	if err != nil || !ok {
		return candidate{}, false, err
	}

	arrival := pt.time + tt
	if len(pt.stops) > 0 {
		arrival += e.params.serviceTime(pt.stops[len(pt.stops)-1].Action)
	}
	arrival, ok = applyWindow(arrival, win, pt.load)
	if !ok {
		return candidate{}, false, nil
	}
	return candidate{
		stop:    Stop{ReservationID: node.ReservationID, Action: node.Action, Location: loc, Arrival: arrival},
		arrival: arrival,
		delta:   node.Delta(),
	}, true, nil
}

// legTime resolves the travel time for the next leg, preferring cached
// RV edges and falling back to the memoized oracle for plan replays.
func (e *enumerator) legTime(ctx context.Context, pt partialTrip, v VehicleState, node StopNode, loc Location, forcePlan bool) (float64, bool, error) {
	if len(pt.stops) == 0 {
		if node.Action == Pickup {
			if tt, ok := e.graph.vehicleEdge(node.ReservationID, v.ID); ok {
				return tt, true, nil
			}
		} else if tt, ok := e.graph.dropoff[node.ReservationID]; ok {
			return tt, true, nil
		}
		if !forcePlan {
			return 0, false, nil
		}
		tt, err := e.oracle.travelTime(ctx, v.Location, loc)
		return tt, err == nil, err
	}

	last := pt.stops[len(pt.stops)-1]
	from := StopNode{ReservationID: last.ReservationID, Action: last.Action}
	if tt, ok := e.graph.stopEdge(from, node); ok {
		return tt, true, nil
	}
	if !forcePlan {
		return 0, false, nil
	}
	tt, err := e.oracle.travelTime(ctx, last.Location, loc)
	return tt, err == nil, err
}

// isCapacityExceeded is the running-load predicate.
func isCapacityExceeded(load, delta, capacity int) bool {
	return delta > 0 && load+delta > capacity
}

// isComplete reports whether a trip may be committed: every touched
// reservation carries both tokens (or was picked up in a prior cycle)
// and no onboard rider is left without a dropoff.
func (e *enumerator) isComplete(pt partialTrip, v VehicleState) bool {
	if len(pt.stops) == 0 {
		return false
	}
	for id := range pt.picked {
		if !pt.done[id] {
			return false
		}
	}
	for _, id := range v.Onboard {
		if r, ok := e.table[id]; ok && !r.State.Terminal() && !pt.done[id] {
			return false
		}
	}
	return true
}

func (e *enumerator) buildTrip(pt partialTrip, v VehicleState) Trip {
	served := make([]string, 0, len(pt.done))
	mask := newBitmask(len(e.index))
	for id := range pt.done {
		served = append(served, id)
		if i, ok := e.index[id]; ok {
			mask.set(i)
		}
	}
	sort.Strings(served)
	return Trip{
		VehicleID: v.ID,
		Stops:     append([]Stop(nil), pt.stops...),
		Arrival:   pt.time,
		Served:    served,
		Cost:      pt.time - float64(len(served))*e.params.CKO,
		mask:      mask,
	}
}
