// Package darp implements the online dial-a-ride dispatch core: the
// reservation-vehicle (RV) graph, trip enumeration under a wall-clock
// budget, and per-cycle assignment of trips to vehicles.
package darp

import "fmt"

// Location identifies a position in the road network. Resolution of
// locations to travel times is delegated to the TravelTimeOracle.
type Location string

// Window bounds when a pickup or dropoff may occur, in simulation seconds.
type Window struct {
	Earliest float64
	Latest   float64
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t float64) bool {
	return t >= w.Earliest-timeEps && t <= w.Latest+timeEps
}

const timeEps = 1e-9

// Action is the kind of service performed at a stop.
type Action int

const (
	Pickup Action = iota
	Dropoff
)

func (a Action) String() string {
	if a == Pickup {
		return "pickup"
	}
	return "dropoff"
}

// Stop is one entry in a vehicle's ordered stop plan.
type Stop struct {
	ReservationID string
	Action        Action
	Location      Location
	Arrival       float64 // planned arrival in simulation seconds
}

// State is a reservation's position in its lifecycle.
type State int

const (
	Unassigned State = iota
	Assigned
	PickedUp
	Completed
	Rejected
)

func (s State) String() string {
	switch s {
	case Unassigned:
		return "unassigned"
	case Assigned:
		return "assigned"
	case PickedUp:
		return "picked_up"
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool { return s == Completed || s == Rejected }

// Reservation is one rider's trip request.
type Reservation struct {
	ID          string
	Origin      Location
	Destination Location
	Pickup      Window
	Dropoff     Window
	DirectTime  float64 // origin to destination with no detour
	Persons     []string
	VehicleID   string // empty until assigned
	State       State
}

// InvalidReservationError marks a reservation whose own windows are
// unsatisfiable even with a direct ride. Such requests are a data error
// and must be refused at creation time.
type InvalidReservationError struct {
	ID     string
	Reason string
}

func (e *InvalidReservationError) Error() string {
	return fmt.Sprintf("invalid reservation %s: %s", e.ID, e.Reason)
}

// NewReservation validates and constructs a reservation.
func NewReservation(id string, origin, destination Location, pickup, dropoff Window, directTime float64, persons []string) (*Reservation, error) {
	if id == "" {
		return nil, &InvalidReservationError{ID: id, Reason: "missing id"}
	}
	if origin == "" || destination == "" {
		return nil, &InvalidReservationError{ID: id, Reason: "missing origin or destination"}
	}
	if directTime < 0 {
		return nil, &InvalidReservationError{ID: id, Reason: "negative direct travel time"}
	}
	if pickup.Earliest > pickup.Latest {
		return nil, &InvalidReservationError{ID: id, Reason: "pickup window earliest exceeds latest"}
	}
	if dropoff.Earliest > dropoff.Latest {
		return nil, &InvalidReservationError{ID: id, Reason: "dropoff window earliest exceeds latest"}
	}
	if dropoff.Earliest < pickup.Earliest+directTime {
		return nil, &InvalidReservationError{ID: id, Reason: "dropoff window opens before a direct ride could arrive"}
	}
	if pickup.Earliest+directTime > dropoff.Latest {
		return nil, &InvalidReservationError{ID: id, Reason: "direct travel time alone violates dropoff window"}
	}
	return &Reservation{
		ID:          id,
		Origin:      origin,
		Destination: destination,
		Pickup:      pickup,
		Dropoff:     dropoff,
		DirectTime:  directTime,
		Persons:     persons,
		State:       Unassigned,
	}, nil
}

// StopNode names one service event of a reservation inside the RV graph.
type StopNode struct {
	ReservationID string
	Action        Action
}

// PickupNode and DropoffNode build the two nodes of a reservation.
func PickupNode(id string) StopNode  { return StopNode{ReservationID: id, Action: Pickup} }
func DropoffNode(id string) StopNode { return StopNode{ReservationID: id, Action: Dropoff} }

// Delta is the passenger-count change when servicing the node.
func (n StopNode) Delta() int {
	if n.Action == Pickup {
		return 1
	}
	return -1
}
