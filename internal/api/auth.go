// Package api implements HTTP handlers and helpers for the dispatch service.
package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Tenant    string
	Role      string // admin, dispatcher, driver, rider
	VehicleID string
}

// getPrincipal extracts tenant and role from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			t := s.normalizeTenantID(pr.Tenant)
			return Principal{Tenant: t, Role: pr.Role, VehicleID: pr.VehicleID}
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	vehicleID := r.Header.Get("X-Vehicle-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	tenant = s.normalizeTenantID(tenant)
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role, VehicleID: vehicleID}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }
