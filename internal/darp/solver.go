package darp

import "sort"

// Assignment is the per-cycle outcome of trip selection: at most one
// trip per vehicle, each reservation served at most once.
type Assignment struct {
	Trips      map[string]Trip // vehicle id -> selected trip
	Unassigned []string        // open reservations left for the next cycle
}

// selectTrips solves the set-partitioning relaxation greedily: trips
// are taken in ascending cost order whenever their vehicle is free and
// their served set is disjoint from everything already accepted. The
// c_ko reward dominates the cost, so trips serving more reservations
// win before cheaper but smaller ones.
func selectTrips(result EnumerationResult, open []*Reservation) Assignment {
	trips := append([]Trip(nil), result.Trips...)
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].Cost != trips[j].Cost {
			return trips[i].Cost < trips[j].Cost
		}
		return trips[i].ID() < trips[j].ID() // deterministic tie-break
	})

	taken := newBitmask(len(open))
	chosen := map[string]Trip{}
	for _, t := range trips {
		if _, used := chosen[t.VehicleID]; used {
			continue
		}
		if t.mask.intersects(taken) {
			continue
		}
		chosen[t.VehicleID] = t
		taken.or(t.mask)
	}

	var unassigned []string
	for i, r := range open {
		if !taken.has(i) && !r.State.Terminal() {
			unassigned = append(unassigned, r.ID)
		}
	}
	return Assignment{Trips: chosen, Unassigned: unassigned}
}
