package darp

import "time"

// Solver algorithm names accepted in Params.Solver.
const (
	SolverExhaustive = "exhaustive_search"
	SolverRerouting  = "simple_rerouting"
)

// Params holds the dispatch tuning knobs.
type Params struct {
	Solver      string        // exhaustive_search or simple_rerouting
	RTVTime     time.Duration // wall-clock budget per vehicle subtree (exhaustive only)
	CKO         float64       // cost reward per served reservation
	PickupTime  float64       // fixed service overhead per pickup, seconds
	DropoffTime float64       // fixed service overhead per dropoff, seconds
	RoutingMode string        // routing profile forwarded to the oracle adapter
}

// DefaultParams mirrors the knob defaults of the upstream dispatch tools.
func DefaultParams() Params {
	return Params{
		Solver:      SolverExhaustive,
		RTVTime:     5 * time.Second,
		CKO:         1e10,
		PickupTime:  0,
		DropoffTime: 0,
		RoutingMode: "ignore_rerouting",
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Solver == "" {
		p.Solver = d.Solver
	}
	if p.RTVTime <= 0 {
		p.RTVTime = d.RTVTime
	}
	if p.CKO == 0 {
		p.CKO = d.CKO
	}
	if p.RoutingMode == "" {
		p.RoutingMode = d.RoutingMode
	}
	return p
}

// serviceTime returns the fixed overhead for an action.
func (p Params) serviceTime(a Action) float64 {
	if a == Pickup {
		return p.PickupTime
	}
	return p.DropoffTime
}
