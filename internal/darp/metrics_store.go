package darp

import (
	"sync"
	"time"
)

// CycleMetrics captures the outcome of one dispatch cycle for the debug
// and metrics surfaces.
type CycleMetrics struct {
	Now         float64
	Vehicles    int
	Open        int
	Trips       int
	AssignedNow int
	Rejected    int
	Exact       bool
	OracleCalls int
	Elapsed     time.Duration
}

var (
	metricsMu sync.Mutex
	lastCycle CycleMetrics
	haveCycle bool
)

// RecordCycleMetrics stores the latest cycle outcome.
func RecordCycleMetrics(m CycleMetrics) {
	metricsMu.Lock()
	lastCycle = m
	haveCycle = true
	metricsMu.Unlock()
}

// LastCycleMetrics returns the most recent cycle outcome, if any.
func LastCycleMetrics() (CycleMetrics, bool) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return lastCycle, haveCycle
}
