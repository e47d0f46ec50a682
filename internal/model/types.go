package model

// Core domain types exchanged over the API.

// TimeWindow bounds a pickup or dropoff, in simulation seconds.
type TimeWindow struct {
	Earliest float64 `json:"earliest"`
	Latest   float64 `json:"latest"`
}

type ReservationIn struct {
	ID            string     `json:"id,omitempty"` // assigned when empty
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	Pickup        TimeWindow `json:"pickup"`
	Dropoff       TimeWindow `json:"dropoff"`
	DirectTimeSec float64    `json:"directTimeSec"`
	Persons       []string   `json:"persons,omitempty"`
}

type ReservationOut struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenantId"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	Pickup        TimeWindow `json:"pickup"`
	Dropoff       TimeWindow `json:"dropoff"`
	DirectTimeSec float64    `json:"directTimeSec"`
	Persons       []string   `json:"persons,omitempty"`
	State         string     `json:"state"`
	VehicleID     string     `json:"vehicleId,omitempty"`
}

type VehicleIn struct {
	ID       string `json:"id,omitempty"`
	Location string `json:"location"`
	Capacity int    `json:"capacity"`
}

type Vehicle struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	Location string    `json:"location"`
	Capacity int       `json:"capacity"`
	Onboard  []string  `json:"onboard,omitempty"`
	Plan     []StopOut `json:"plan,omitempty"`
}

// StopOut is one entry of a committed vehicle plan.
type StopOut struct {
	ReservationID string  `json:"reservationId"`
	Action        string  `json:"action"` // pickup or dropoff
	Location      string  `json:"location"`
	ArrivalSec    float64 `json:"arrivalSec"`
}

// VehicleTelemetry reports a vehicle's progress between cycles.
type VehicleTelemetry struct {
	Location string   `json:"location,omitempty"`
	Onboard  []string `json:"onboard"`
	PlanDone int      `json:"planDone,omitempty"` // committed stops already serviced
}

type DispatchRequest struct {
	NowSec float64 `json:"nowSec"`
}

type DispatchResponse struct {
	CycleID     string               `json:"cycleId"`
	NowSec      float64              `json:"nowSec"`
	Plans       map[string][]StopOut `json:"plans"`
	Assigned    map[string]string    `json:"assigned"` // reservation id -> vehicle id
	Rejected    []string             `json:"rejected,omitempty"`
	Unassigned  []string             `json:"unassigned,omitempty"`
	Exact       bool                 `json:"exact"`
	OracleCalls int                  `json:"oracleCalls"`
	ElapsedMs   int64                `json:"elapsedMs"`
}

// DispatchRecord is the persisted form of a cycle outcome.
type DispatchRecord struct {
	CycleID     string               `json:"cycleId"`
	TS          string               `json:"ts"`
	NowSec      float64              `json:"nowSec"`
	Plans       map[string][]StopOut `json:"plans,omitempty"`
	Assigned    map[string]string    `json:"assigned,omitempty"`
	Rejected    []string             `json:"rejected,omitempty"`
	Unassigned  []string             `json:"unassigned,omitempty"`
	Exact       bool                 `json:"exact"`
	OracleCalls int                  `json:"oracleCalls"`
	ElapsedMs   int64                `json:"elapsedMs"`
}

// RiderEvent is a vehicle-reported lifecycle event for a reservation.
type RiderEvent struct {
	Type          string `json:"type"` // pickup or dropoff
	ReservationID string `json:"reservationId"`
	VehicleID     string `json:"vehicleId"`
	TS            string `json:"ts"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
