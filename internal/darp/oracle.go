package darp

import "context"

// TravelTimeOracle estimates travel time in seconds between two network
// locations. Implementations must be idempotent and side-effect free;
// the dispatch cycle memoizes identical queries within one cycle.
type TravelTimeOracle interface {
	TravelTime(ctx context.Context, from, to Location) (float64, error)
}

type odPair struct {
	from Location
	to   Location
}

// oracleMemo caches oracle answers for the duration of one dispatch
// cycle and counts the queries that actually reached the oracle.
type oracleMemo struct {
	oracle TravelTimeOracle
	memo   map[odPair]float64
	calls  int
}

func newOracleMemo(o TravelTimeOracle) *oracleMemo {
	return &oracleMemo{oracle: o, memo: map[odPair]float64{}}
}

func (m *oracleMemo) travelTime(ctx context.Context, from, to Location) (float64, error) {
	k := odPair{from: from, to: to}
	if tt, ok := m.memo[k]; ok {
		return tt, nil
	}
	tt, err := m.oracle.TravelTime(ctx, from, to)
	if err != nil {
		return 0, err
	}
	m.calls++
	m.memo[k] = tt
	return tt, nil
}

// OracleFunc adapts a plain function to the TravelTimeOracle interface.
type OracleFunc func(ctx context.Context, from, to Location) (float64, error)

func (f OracleFunc) TravelTime(ctx context.Context, from, to Location) (float64, error) {
	return f(ctx, from, to)
}
