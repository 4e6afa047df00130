package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"shiproute/internal/model"
)

// Minimal GraphQL-like HTTP handler.
// Supports:
// - query { optimizerConfig }: effective tunables for the tenant
// - mutation { optimizeRoutes(input: $input) }: runs an optimization
func (s *Server) GraphQLHTTPHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Query     string `json:"query"`
		Variables struct {
			Input json.RawMessage `json:"input"`
		} `json:"variables"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	p, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	q := strings.ToLower(body.Query)
	switch {
	case strings.Contains(q, "optimizeroutes"):
		if !p.CanOptimize() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		if len(body.Variables.Input) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing input", "", r.URL.Path)
			return
		}
		if !s.Limiter.Allow(p.Tenant) {
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "optimization rate limit exceeded", r.URL.Path)
			return
		}
		var req model.OptimizeRequest
		if err := json.Unmarshal(body.Variables.Input, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid input", err.Error(), r.URL.Path)
			return
		}
		resp, err := s.runOptimization(r.Context(), p.Tenant, req)
		if err != nil {
			status, title := problemFor(err)
			writeProblem(w, status, title, err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"optimizeRoutes": resp}})
	case strings.Contains(q, "optimizerconfig"):
		o, err := s.effectiveOptions(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"optimizerConfig": o}})
	default:
		writeProblem(w, http.StatusBadRequest, "Unsupported query", "", r.URL.Path)
	}
}
