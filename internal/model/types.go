package model

import "shiproute/internal/opt"

// Wire types shared by the HTTP, GraphQL and webhook surfaces.

// Coordinates is a geocoded point. Both fields are pointers so a missing
// coordinate is rejected instead of decoding to 0.
type Coordinates struct {
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
}

type ShipmentIn struct {
	ID        string       `json:"id,omitempty" validate:"omitempty,max=128"`
	ToAddress *Coordinates `json:"to_address" validate:"required"`
}

// OptimizeRequest asks for one closed tour from Depot through every shipment.
// Zero tunables fall back to the tenant config, then service defaults.
type OptimizeRequest struct {
	TenantID        string       `json:"tenantId,omitempty"`
	RunID           string       `json:"runId,omitempty" validate:"omitempty,uuid"`
	Depot           *Coordinates `json:"depot" validate:"required"`
	Shipments       []ShipmentIn `json:"shipments" validate:"dive"`
	Iterations      int          `json:"iterations,omitempty" validate:"gte=0,lte=10000"`
	Ants            int          `json:"ants,omitempty" validate:"gte=0,lte=1000"`
	Alpha           *float64     `json:"alpha,omitempty" validate:"omitempty,gte=0"`
	Beta            *float64     `json:"beta,omitempty" validate:"omitempty,gte=0"`
	EvaporationRate *float64     `json:"evaporationRate,omitempty" validate:"omitempty,gte=0,lt=1"`
	DepositFactor   *float64     `json:"depositFactor,omitempty" validate:"omitempty,gt=0"`
	Seed            int64        `json:"seed,omitempty"`
}

type OptimizeResponse struct {
	Success       bool             `json:"success"`
	RunID         string           `json:"runId"`
	Route         []int            `json:"route"`
	StopOrder     []string         `json:"stopOrder"`
	Distance      float64          `json:"distance"`
	EstimatedTime string           `json:"estimatedTime"`
	EstimatedCost string           `json:"estimatedCost"`
	Optimization  opt.Optimization `json:"optimization"`
	// Partial is set when the run was cut short and Route is the best so far.
	Partial bool `json:"partial,omitempty"`
}

// OptimizerConfig is a tenant's stored override of optimizer tunables.
// Nil fields inherit the service defaults.
type OptimizerConfig struct {
	Alpha           *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty" validate:"omitempty,gte=0"`
	Beta            *float64 `json:"beta,omitempty" yaml:"beta,omitempty" validate:"omitempty,gte=0"`
	EvaporationRate *float64 `json:"evaporationRate,omitempty" yaml:"evaporationRate,omitempty" validate:"omitempty,gte=0,lt=1"`
	DepositFactor   *float64 `json:"depositFactor,omitempty" yaml:"depositFactor,omitempty" validate:"omitempty,gt=0"`
	Iterations      *int     `json:"iterations,omitempty" yaml:"iterations,omitempty" validate:"omitempty,gte=1,lte=10000"`
	Ants            *int     `json:"ants,omitempty" yaml:"ants,omitempty" validate:"omitempty,gte=1,lte=1000"`
	MaxStops        *int     `json:"maxStops,omitempty" yaml:"maxStops,omitempty" validate:"omitempty,gte=0"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,oneof=route.optimized route.optimization_failed"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Optimization event types pushed over SSE and GraphQL subscriptions.
const (
	EventStarted   = "optimization.started"
	EventProgress  = "optimization.progress"
	EventCompleted = "optimization.completed"
	EventFailed    = "optimization.failed"
)

// Webhook event types.
const (
	WebhookRouteOptimized     = "route.optimized"
	WebhookOptimizationFailed = "route.optimization_failed"
)

type OptimizationEvent struct {
	RunID        string  `json:"runId"`
	TenantID     string  `json:"tenantId,omitempty"`
	Type         string  `json:"type"`
	Iteration    int     `json:"iteration,omitempty"`
	Iterations   int     `json:"iterations,omitempty"`
	BestDistance float64 `json:"bestDistance,omitempty"`
	Stops        int     `json:"stops,omitempty"`
	Error        string  `json:"error,omitempty"`
	TS           string  `json:"ts"`
}
