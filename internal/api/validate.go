package api

import (
	"fmt"
	"strings"
	"time"

	"darpnav/internal/model"
)

func validateReservation(in model.ReservationIn) error {
	if in.Origin == "" || in.Destination == "" {
		return fmt.Errorf("origin and destination required")
	}
	if in.DirectTimeSec < 0 {
		return fmt.Errorf("directTimeSec must be >= 0")
	}
	if in.Pickup.Earliest > in.Pickup.Latest {
		return fmt.Errorf("pickup window inverted")
	}
	if in.Dropoff.Earliest > in.Dropoff.Latest {
		return fmt.Errorf("dropoff window inverted")
	}
	if in.Pickup.Earliest+in.DirectTimeSec > in.Dropoff.Latest {
		return fmt.Errorf("windows unsatisfiable even with a direct ride")
	}
	return nil
}

func validateDispatchRequest(req *model.DispatchRequest) error {
	if req.NowSec < 0 {
		return fmt.Errorf("nowSec must be >= 0")
	}
	return nil
}

var knownEvents = map[string]struct{}{
	"reservation.created":   {},
	"reservation.assigned":  {},
	"reservation.picked_up": {},
	"reservation.completed": {},
	"reservation.rejected":  {},
	"plan.updated":          {},
}

func validateSubscription(req *model.SubscriptionRequest) error {
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return fmt.Errorf("url must be http(s)")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("at least one event type required")
	}
	for _, e := range req.Events {
		if _, ok := knownEvents[e]; !ok {
			return fmt.Errorf("unknown event type: %s", e)
		}
	}
	return nil
}

func validateSolverConfig(cfg map[string]any) error {
	if v, ok := cfg["darp_solver"].(string); ok {
		if v != "exhaustive_search" && v != "simple_rerouting" {
			return fmt.Errorf("invalid darp_solver: %s", v)
		}
	}
	if v, ok := cfg["rtv_time"].(string); ok {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid rtv_time: %v", err)
		}
	}
	for _, k := range []string{"c_ko", "veh_time_pickup", "veh_time_dropoff"} {
		if v, ok := cfg[k]; ok {
			f, isNum := v.(float64)
			if !isNum || f < 0 {
				return fmt.Errorf("%s must be a number >= 0", k)
			}
		}
	}
	if v, ok := cfg["routing_mode"].(string); ok {
		if v != "ignore_rerouting" && v != "rerouting" {
			return fmt.Errorf("invalid routing_mode: %s", v)
		}
	}
	return nil
}
