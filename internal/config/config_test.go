package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"darpnav/internal/darp"
)

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solver.yaml")
	data := []byte(`
solver:
  darp_solver: simple_rerouting
  rtv_time: 2s
  c_ko: 1000000
  veh_time_pickup: 15
  veh_time_dropoff: 30
  routing_mode: rerouting
oracle:
  backend: static
  cache_ttl: 90s
  travel_times:
    a:
      b: 120
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DARP_SOLVER", "exhaustive_search")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := cfg.Params()
	if p.Solver != "exhaustive_search" {
		t.Fatalf("env override lost: %s", p.Solver)
	}
	if p.RTVTime != 2*time.Second || p.CKO != 1e6 || p.PickupTime != 15 || p.DropoffTime != 30 {
		t.Fatalf("params = %+v", p)
	}
	if cfg.Oracle.TravelTimes["a"]["b"] != 120 {
		t.Fatalf("matrix = %v", cfg.Oracle.TravelTimes)
	}
	if cfg.CacheTTL() != 90*time.Second {
		t.Fatalf("ttl = %v", cfg.CacheTTL())
	}
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Solver.Algorithm != "" {
		t.Fatalf("unexpected solver: %s", cfg.Solver.Algorithm)
	}
}

func TestParamsFromMap(t *testing.T) {
	base := darp.DefaultParams()
	p := ParamsFromMap(base, map[string]any{
		"darp_solver": "simple_rerouting",
		"rtv_time":    "500ms",
		"c_ko":        float64(42),
		"routing_mode": "rerouting",
	})
	if p.Solver != "simple_rerouting" || p.RTVTime != 500*time.Millisecond || p.CKO != 42 || p.RoutingMode != "rerouting" {
		t.Fatalf("params = %+v", p)
	}
	if q := ParamsFromMap(base, nil); q != base {
		t.Fatalf("nil map must not change params")
	}
}
