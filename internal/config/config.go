// Package config loads solver and oracle settings from a YAML file and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"darpnav/internal/darp"
)

type Solver struct {
	Algorithm   string  `yaml:"darp_solver"`
	RTVTime     string  `yaml:"rtv_time"` // Go duration, e.g. "5s"
	CKO         float64 `yaml:"c_ko"`
	PickupTime  float64 `yaml:"veh_time_pickup"`
	DropoffTime float64 `yaml:"veh_time_dropoff"`
	RoutingMode string  `yaml:"routing_mode"`
}

type Oracle struct {
	Backend     string                        `yaml:"backend"` // static or http
	BaseURL     string                        `yaml:"base_url"`
	RPS         float64                       `yaml:"rps"`
	CacheTTL    string                        `yaml:"cache_ttl"`
	TravelTimes map[string]map[string]float64 `yaml:"travel_times"`
}

type Config struct {
	Solver Solver `yaml:"solver"`
	Oracle Oracle `yaml:"oracle"`
}

// Load reads path when non-empty and applies environment overrides on
// top. A missing file with an empty path is not an error; defaults and
// the environment decide everything.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DARP_SOLVER"); v != "" {
		c.Solver.Algorithm = v
	}
	if v := os.Getenv("DARP_RTV_TIME"); v != "" {
		c.Solver.RTVTime = v
	}
	if v := os.Getenv("DARP_C_KO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Solver.CKO = f
		}
	}
	if v := os.Getenv("DARP_VEH_TIME_PICKUP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Solver.PickupTime = f
		}
	}
	if v := os.Getenv("DARP_VEH_TIME_DROPOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Solver.DropoffTime = f
		}
	}
	if v := os.Getenv("DARP_ROUTING_MODE"); v != "" {
		c.Solver.RoutingMode = v
	}
	if v := os.Getenv("ORACLE_BACKEND"); v != "" {
		c.Oracle.Backend = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		c.Oracle.BaseURL = v
	}
}

// Params maps the solver section onto dispatcher parameters. Invalid
// durations fall back to the default budget.
func (c Config) Params() darp.Params {
	p := darp.Params{
		Solver:      c.Solver.Algorithm,
		CKO:         c.Solver.CKO,
		PickupTime:  c.Solver.PickupTime,
		DropoffTime: c.Solver.DropoffTime,
		RoutingMode: c.Solver.RoutingMode,
	}
	if c.Solver.RTVTime != "" {
		if d, err := time.ParseDuration(c.Solver.RTVTime); err == nil {
			p.RTVTime = d
		}
	}
	return p
}

// CacheTTL parses the oracle cache TTL, zero when unset or invalid.
func (c Config) CacheTTL() time.Duration {
	if c.Oracle.CacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Oracle.CacheTTL)
	if err != nil {
		return 0
	}
	return d
}

// ParamsFromMap overlays a tenant's stored solver overrides on base.
// Unknown keys are ignored; values arrive as JSON numbers or strings.
func ParamsFromMap(base darp.Params, m map[string]any) darp.Params {
	if m == nil {
		return base
	}
	if v, ok := m["darp_solver"].(string); ok && v != "" {
		base.Solver = v
	}
	if v, ok := m["rtv_time"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil {
			base.RTVTime = d
		}
	}
	if f, ok := asFloat(m["c_ko"]); ok {
		base.CKO = f
	}
	if f, ok := asFloat(m["veh_time_pickup"]); ok {
		base.PickupTime = f
	}
	if f, ok := asFloat(m["veh_time_dropoff"]); ok {
		base.DropoffTime = f
	}
	if v, ok := m["routing_mode"].(string); ok && v != "" {
		base.RoutingMode = v
	}
	return base
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
