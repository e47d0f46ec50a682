package darp

import (
	"errors"
	"testing"
)

func TestNewReservationValidation(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		pickup  Window
		dropoff Window
		direct  float64
		wantErr bool
	}{
		{"valid", "r1", Window{0, 100}, Window{400, 900}, 400, false},
		{"missing id", "", Window{0, 100}, Window{400, 900}, 400, true},
		{"inverted pickup", "r1", Window{100, 0}, Window{400, 900}, 400, true},
		{"inverted dropoff", "r1", Window{0, 100}, Window{900, 400}, 400, true},
		{"dropoff opens too early", "r1", Window{0, 100}, Window{100, 900}, 400, true},
		{"direct ride misses dropoff", "r1", Window{0, 100}, Window{400, 350}, 400, true},
		{"negative direct time", "r1", Window{0, 100}, Window{400, 900}, -1, true},
	}
	for _, tc := range cases {
		_, err := NewReservation(tc.id, "a", "b", tc.pickup, tc.dropoff, tc.direct, nil)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
		if err != nil {
			var ire *InvalidReservationError
			if !errors.As(err, &ire) {
				t.Fatalf("%s: error type %T", tc.name, err)
			}
		}
	}
}

func TestApplyWindowWaitingRule(t *testing.T) {
	w := Window{Earliest: 100, Latest: 200}

	// empty vehicle waits until the window opens
	if got, ok := applyWindow(50, w, 0); !ok || got != 100 {
		t.Fatalf("empty early: got %v ok=%v", got, ok)
	}
	// passengers aboard make an early arrival infeasible
	if _, ok := applyWindow(50, w, 1); ok {
		t.Fatalf("loaded early arrival must be infeasible")
	}
	// in-window arrivals pass through unchanged
	if got, ok := applyWindow(150, w, 3); !ok || got != 150 {
		t.Fatalf("in-window: got %v ok=%v", got, ok)
	}
	// late arrivals are infeasible regardless of load
	if _, ok := applyWindow(201, w, 0); ok {
		t.Fatalf("late arrival must be infeasible")
	}
}

func TestStateTransitions(t *testing.T) {
	for _, s := range []State{Unassigned, Assigned, PickedUp} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	for _, s := range []State{Completed, Rejected} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
