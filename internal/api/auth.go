package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Tenant string
	Role   string // admin, dispatcher, viewer
}

const defaultTenant = "t_demo"

// getPrincipal extracts tenant and role from a bearer token or headers.
// A bearer token that fails verification yields ok=false. Without a token,
// X-Tenant-Id and X-Role are trusted only in dev auth mode.
func (s *Server) getPrincipal(r *http.Request) (Principal, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") && s.Auth != nil {
		pr, err := s.Auth.Verify(strings.TrimSpace(authz[7:]))
		if err != nil {
			return Principal{}, false
		}
		return Principal{Tenant: s.normalizeTenantID(pr.Tenant), Role: pr.Role}, true
	}
	if s.Auth != nil && s.Auth.Mode != "dev" {
		return Principal{}, false
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = defaultTenant
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: s.normalizeTenantID(tenant), Role: role}, true
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanOptimize reports whether the principal may run optimizations.
func (p Principal) CanOptimize() bool { return p.IsAdmin() || p.Role == "dispatcher" }

// authenticate writes a 401 and returns false when no principal can be established.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, ok := s.getPrincipal(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="shiproute"`)
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path)
	}
	return p, ok
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, ok := s.authenticate(w, r)
	if !ok {
		return p, false
	}
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, true
}
