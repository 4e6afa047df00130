package api

import (
	"net/http"
	"time"

	"shiproute/internal/buildinfo"
)

// DebugJSON reports build info and non-secret configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	c := s.Config
	mode := "dev"
	if s.Auth != nil {
		mode = s.Auth.Mode
	}
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 c.Port,
			"AUTH_MODE":            mode,
			"ALLOW_ORIGINS":        c.AllowOrigins,
			"RATE_RPS":             c.RateRPS,
			"RATE_BURST":           c.RateBurst,
			"WEBHOOK_MAX_ATTEMPTS": c.WebhookMaxAttempts,
			"PROGRESS_EVERY":       s.ProgressEvery,
			"OPTIMIZE_TIMEOUT":     s.RequestTimeout.String(),
			"HAS_DATABASE_URL":     c.DatabaseURL != "",
			"HAS_REDIS_URL":        c.RedisURL != "",
		},
		"optimizer": s.Defaults,
	}
	writeJSON(w, http.StatusOK, info)
}
