package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// problemBase prefixes problem type URIs; the slug is derived from the title.
const problemBase = "/problems/"

// Problem is the RFC 7807 body for every error the API returns.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem responds with application/problem+json. The type names the
// failure, e.g. "/problems/too-many-stops" for a 413 from the optimizer.
func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func problemType(title string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(title)), "-")
	if slug == "" {
		return "about:blank"
	}
	return problemBase + slug
}
