// Package config loads process settings from the environment (optionally
// seeded from a .env file) and optimizer defaults from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shiproute/internal/opt"
)

// DefaultMaxStops bounds a request's shipments when neither MAX_STOPS nor
// the optimizer file sets maxStops. The distance matrix grows with its square.
const DefaultMaxStops = 500

type Config struct {
	Port          string
	LogLevel      string
	LogPretty     bool
	DatabaseURL   string
	DBMigrate     bool
	MigrationsDir string
	RedisURL      string

	AuthMode        string
	AuthHMACSecret  string
	AuthTenantClaim string
	AuthRoleClaim   string
	AllowOrigins    string

	RateRPS            float64
	RateBurst          int
	WebhookMaxAttempts int

	// OptimizerConfigPath names a YAML file of optimizer defaults.
	OptimizerConfigPath string
	// ProgressEvery publishes a progress event every N iterations.
	ProgressEvery  int
	RequestTimeout time.Duration
	Optimizer      opt.Options
}

// Load reads .env (if present) into the process environment, then builds
// the config from it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	return FromLookup(os.Getenv)
}

// FromLookup builds the config from getenv without touching the process env.
func FromLookup(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	c := Config{
		Port:                e.str("PORT", "8080"),
		LogLevel:            e.str("LOG_LEVEL", "info"),
		LogPretty:           e.boolean("LOG_PRETTY", false),
		DatabaseURL:         strings.TrimSpace(e.str("DATABASE_URL", "")),
		DBMigrate:           e.boolean("DB_MIGRATE", true),
		MigrationsDir:       e.str("DB_MIGRATIONS_DIR", "db/migrations"),
		RedisURL:            strings.TrimSpace(e.str("REDIS_URL", "")),
		AuthMode:            strings.ToLower(e.str("AUTH_MODE", "dev")),
		AuthHMACSecret:      e.str("AUTH_HMAC_SECRET", ""),
		AuthTenantClaim:     e.str("AUTH_TENANT_CLAIM", "tenant"),
		AuthRoleClaim:       e.str("AUTH_ROLE_CLAIM", "role"),
		AllowOrigins:        e.str("ALLOW_ORIGINS", ""),
		RateRPS:             e.float("RATE_RPS", 5),
		RateBurst:           e.integer("RATE_BURST", 10),
		WebhookMaxAttempts:  e.integer("WEBHOOK_MAX_ATTEMPTS", 10),
		OptimizerConfigPath: e.str("OPTIMIZER_CONFIG", ""),
		ProgressEvery:       e.integer("PROGRESS_EVERY", 10),
		RequestTimeout:      e.duration("OPTIMIZE_TIMEOUT", 30*time.Second),
	}
	if e.err != nil {
		return Config{}, e.err
	}

	c.Optimizer = opt.DefaultOptions()
	c.Optimizer.MaxStops = DefaultMaxStops
	if c.OptimizerConfigPath != "" {
		o, err := LoadOptimizerFile(c.OptimizerConfigPath, c.Optimizer)
		if err != nil {
			return Config{}, err
		}
		c.Optimizer = o
	}
	c.Optimizer.MaxStops = e.integer("MAX_STOPS", c.Optimizer.MaxStops)
	c.Optimizer.Workers = e.integer("OPTIMIZER_WORKERS", c.Optimizer.Workers)
	if e.err != nil {
		return Config{}, e.err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: optimizer: %w", err)
	}
	if c.ProgressEvery < 1 {
		c.ProgressEvery = 1
	}
	return c, nil
}

// LoadOptimizerFile overlays the YAML file at path onto base. Unknown keys
// are rejected.
func LoadOptimizerFile(path string, base opt.Options) (opt.Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return opt.Options{}, fmt.Errorf("config: optimizer file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	out := base
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return opt.Options{}, fmt.Errorf("config: optimizer file %s: %w", path, err)
	}
	return out, nil
}

type env struct {
	get func(string) string
	err error
}

func (e *env) str(k, d string) string {
	if v := e.get(k); v != "" {
		return v
	}
	return d
}

func (e *env) integer(k string, d int) int {
	v := e.get(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v)
		return d
	}
	return n
}

func (e *env) float(k string, d float64) float64 {
	v := e.get(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v)
		return d
	}
	return f
}

func (e *env) boolean(k string, d bool) bool {
	v := e.get(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(k, v)
		return d
	}
	return b
}

func (e *env) duration(k string, d time.Duration) time.Duration {
	v := e.get(k)
	if v == "" {
		return d
	}
	t, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v)
		return d
	}
	return t
}

func (e *env) fail(k, v string) {
	if e.err == nil {
		e.err = fmt.Errorf("config: %s: invalid value %q", k, v)
	}
}
