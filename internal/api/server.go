// Package api implements the HTTP, GraphQL and streaming surfaces of the
// route optimization service.
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shiproute/internal/auth"
	"shiproute/internal/config"
	"shiproute/internal/opt"
	"shiproute/internal/store"
	"shiproute/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Progress *ProgressCache
	Limiter  *RateLimiter
	Log      zerolog.Logger

	// Defaults are the service-wide optimizer tunables; tenant config and
	// request fields override them per run.
	Defaults       opt.Options
	ProgressEvery  int
	RequestTimeout time.Duration
	AllowOrigins   []string
	Config         config.Config
}

// NewServer creates a Server from cfg. If DATABASE_URL is unset it uses the
// in-memory store; if REDIS_URL is unset events stay in-process.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	var s store.Store
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
		log.Info().Msg("using in-memory store")
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.DBMigrate {
			if err := sp.MigrateDir(cfg.MigrationsDir); err != nil {
				return nil, err
			}
		}
		s = sp
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis broker unavailable; using in-process broker")
		} else {
			broker = rb
		}
	}

	verifier, err := auth.NewVerifier(cfg.AuthMode, []byte(cfg.AuthHMACSecret), cfg.AuthTenantClaim, cfg.AuthRoleClaim)
	if err != nil {
		return nil, err
	}

	return &Server{
		Store:          s,
		Pub:            webhooks.NewPublisher(s, log),
		Auth:           verifier,
		Broker:         broker,
		Progress:       NewProgressCache(10 * time.Minute),
		Limiter:        NewRateLimiter(cfg.RateRPS, cfg.RateBurst),
		Log:            log,
		Defaults:       cfg.Optimizer,
		ProgressEvery:  cfg.ProgressEvery,
		RequestTimeout: cfg.RequestTimeout,
		AllowOrigins:   splitList(cfg.AllowOrigins),
		Config:         cfg,
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts, s.Log.With().Str("component", "webhooks").Logger())
}

// Close releases the broker and store connections.
func (s *Server) Close() error {
	if c, ok := s.Broker.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if c, ok := s.Store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// normalizeTenantID trims and lower-cases tenant identifiers so header and
// token spellings of the same tenant share config and subscriptions.
func (s *Server) normalizeTenantID(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
