package api

import (
	"sync"
)

// LatestLocation holds the latest reported position of a vehicle.
type LatestLocation struct {
	Tenant    string `json:"tenantId"`
	VehicleID string `json:"vehicleId"`
	Location  string `json:"location"`
	TS        string `json:"ts"`
}

// LocationCache stores latest vehicle positions per tenant.
type LocationCache struct {
	mu sync.Mutex
	// key: tenant|vehicleId
	m map[string]LatestLocation
}

// NewLocationCache constructs a LocationCache.
func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]LatestLocation{}} }

func (c *LocationCache) key(tenant, vehicleID string) string {
	return tenant + "|" + vehicleID
}

// Upsert stores or updates the latest position for a vehicle.
func (c *LocationCache) Upsert(tenant, vehicleID, location, ts string) {
	if tenant == "" || vehicleID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(tenant, vehicleID)] = LatestLocation{Tenant: tenant, VehicleID: vehicleID, Location: location, TS: ts}
}

// ListByTenant returns the latest positions for a tenant's vehicles.
func (c *LocationCache) ListByTenant(tenant string) []LatestLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []LatestLocation{}
	prefix := tenant + "|"
	for k, v := range c.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}
