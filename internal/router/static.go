// Package router provides travel-time oracle implementations: a static
// matrix for tests and simulations, a rate-limited HTTP client for real
// routing backends, and a Redis read-through cache.
package router

import (
	"context"
	"fmt"

	"darpnav/internal/darp"
)

// Matrix answers from a fixed travel-time table. Missing reverse legs
// fall back to the forward entry, so symmetric networks only need one
// direction.
type Matrix struct {
	times map[string]map[string]float64
}

func NewMatrix(times map[string]map[string]float64) *Matrix {
	return &Matrix{times: times}
}

func (m *Matrix) TravelTime(_ context.Context, from, to darp.Location) (float64, error) {
	if from == to {
		return 0, nil
	}
	if tt, ok := m.lookup(string(from), string(to)); ok {
		return tt, nil
	}
	if tt, ok := m.lookup(string(to), string(from)); ok {
		return tt, nil
	}
	return 0, fmt.Errorf("no travel time for %s -> %s", from, to)
}

func (m *Matrix) lookup(from, to string) (float64, bool) {
	row, ok := m.times[from]
	if !ok {
		return 0, false
	}
	tt, ok := row[to]
	return tt, ok
}
