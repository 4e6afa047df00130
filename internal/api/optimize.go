package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"shiproute/internal/metrics"
	"shiproute/internal/model"
	"shiproute/internal/opt"
)

// requestError carries the HTTP status a failure maps to.
type requestError struct {
	status int
	title  string
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(title string, err error) error {
	return &requestError{status: http.StatusBadRequest, title: title, err: err}
}

// problemFor maps an optimization error to a status code and problem title.
func problemFor(err error) (int, string) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status, re.title
	case errors.Is(err, opt.ErrTooManyStops):
		return http.StatusRequestEntityTooLarge, "Too many stops"
	case errors.Is(err, opt.ErrInvalidLocation):
		return http.StatusBadRequest, "Invalid location"
	case errors.Is(err, opt.ErrInvalidConfig):
		return http.StatusBadRequest, "Invalid optimizer config"
	}
	return http.StatusInternalServerError, "Optimization failed"
}

// applyConfig overlays the non-nil fields of cfg onto o. MaxStops can only
// tighten the cap already in o.
func applyConfig(o opt.Options, cfg model.OptimizerConfig) opt.Options {
	if cfg.Alpha != nil {
		o.Alpha = *cfg.Alpha
	}
	if cfg.Beta != nil {
		o.Beta = *cfg.Beta
	}
	if cfg.EvaporationRate != nil {
		o.EvaporationRate = *cfg.EvaporationRate
	}
	if cfg.DepositFactor != nil {
		o.DepositFactor = *cfg.DepositFactor
	}
	if cfg.Iterations != nil {
		o.Iterations = *cfg.Iterations
	}
	if cfg.Ants != nil {
		o.Ants = *cfg.Ants
	}
	if cfg.MaxStops != nil {
		o.MaxStops = capStops(o.MaxStops, *cfg.MaxStops)
	}
	return o
}

// capStops bounds a requested stop cap by limit. Zero means unlimited for
// both, so a zero request under a finite limit keeps the limit.
func capStops(limit, want int) int {
	if limit <= 0 {
		return want
	}
	if want <= 0 || want > limit {
		return limit
	}
	return want
}

// effectiveOptions returns service defaults merged with the tenant's stored config.
func (s *Server) effectiveOptions(ctx context.Context, tenant string) (opt.Options, error) {
	cfg, ok, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil {
		return opt.Options{}, err
	}
	if !ok {
		return s.Defaults, nil
	}
	return applyConfig(s.Defaults, cfg), nil
}

// resolveOptions layers request overrides on top of effectiveOptions.
func (s *Server) resolveOptions(ctx context.Context, tenant string, req model.OptimizeRequest) (opt.Options, error) {
	o, err := s.effectiveOptions(ctx, tenant)
	if err != nil {
		return opt.Options{}, err
	}
	over := model.OptimizerConfig{Alpha: req.Alpha, Beta: req.Beta, EvaporationRate: req.EvaporationRate, DepositFactor: req.DepositFactor}
	if req.Iterations > 0 {
		over.Iterations = &req.Iterations
	}
	if req.Ants > 0 {
		over.Ants = &req.Ants
	}
	o = applyConfig(o, over)
	if req.Seed != 0 {
		o.Seed = req.Seed
	}
	return o, nil
}

func toStops(req model.OptimizeRequest) ([]opt.Stop, opt.Location) {
	stops := make([]opt.Stop, len(req.Shipments))
	for i, sh := range req.Shipments {
		id := sh.ID
		if id == "" {
			id = fmt.Sprintf("shipment-%d", i+1)
		}
		stops[i] = opt.Stop{ID: id, Destination: toLocation(sh.ToAddress)}
	}
	var depot opt.Location
	if l := toLocation(req.Depot); l != nil {
		depot = *l
	}
	return stops, depot
}

func toLocation(c *model.Coordinates) *opt.Location {
	if c == nil || c.Longitude == nil || c.Latitude == nil {
		return nil
	}
	return &opt.Location{Longitude: *c.Longitude, Latitude: *c.Latitude}
}

// stopOrder names each route index: "depot" for 0, else the shipment ID.
func stopOrder(route []int, stops []opt.Stop) []string {
	out := make([]string, len(route))
	for i, idx := range route {
		if idx == 0 {
			out[i] = "depot"
			continue
		}
		out[i] = stops[idx-1].ID
	}
	return out
}

// publish records evt as the run's latest state and fans it out.
func (s *Server) publish(evt model.OptimizationEvent) {
	evt.TS = time.Now().UTC().Format(time.RFC3339Nano)
	s.Progress.Upsert(evt)
	s.Broker.Publish(evt.RunID, SSEEvent{Type: evt.Type, Data: evt})
}

// runOptimization validates req, runs the optimizer for tenant and reports
// progress to the broker. A run cut short by RequestTimeout returns the best
// tour so far with Partial set.
func (s *Server) runOptimization(ctx context.Context, tenant string, req model.OptimizeRequest) (model.OptimizeResponse, error) {
	if err := validateOptimizeRequest(&req); err != nil {
		metrics.ObserveOptimization("invalid", len(req.Shipments), 0, 0)
		return model.OptimizeResponse{}, badRequest("Invalid optimize request", err)
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	options, err := s.resolveOptions(ctx, tenant, req)
	if err != nil {
		return model.OptimizeResponse{}, err
	}
	stops, depot := toStops(req)
	log := s.Log.With().Str("tenant", tenant).Str("run", runID).Logger()

	every := s.ProgressEvery
	if every < 1 {
		every = 1
	}
	observer := func(p opt.Progress) {
		if p.Iteration%every != 0 && p.Iteration != p.Iterations {
			return
		}
		s.publish(model.OptimizationEvent{RunID: runID, TenantID: tenant, Type: model.EventProgress,
			Iteration: p.Iteration, Iterations: p.Iterations, BestDistance: p.BestDistance, Stops: len(stops)})
	}
	ro, err := opt.New(options, opt.WithObserver(observer), opt.WithLogger(log))
	if err != nil {
		return model.OptimizeResponse{}, err
	}

	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}
	s.publish(model.OptimizationEvent{RunID: runID, TenantID: tenant, Type: model.EventStarted, Iterations: options.Iterations, Stops: len(stops)})
	start := time.Now()
	res, runErr := ro.OptimizeRoutes(ctx, stops, depot)
	partial := runErr != nil && ctx.Err() != nil && len(res.Route) > 0
	if runErr != nil && !partial {
		status := "error"
		if code, _ := problemFor(runErr); code < http.StatusInternalServerError {
			status = "invalid"
		}
		metrics.ObserveOptimization(status, len(stops), time.Since(start), 0)
		s.publish(model.OptimizationEvent{RunID: runID, TenantID: tenant, Type: model.EventFailed, Stops: len(stops), Error: runErr.Error()})
		// webhook delivery must not depend on the caller's request
		s.Pub.Emit(context.WithoutCancel(ctx), tenant, model.WebhookOptimizationFailed, map[string]any{"runId": runID, "error": runErr.Error()})
		return model.OptimizeResponse{}, runErr
	}

	resp := model.OptimizeResponse{
		Success:       true,
		RunID:         runID,
		Route:         res.Route,
		StopOrder:     stopOrder(res.Route, stops),
		Distance:      res.Distance,
		EstimatedTime: res.EstimatedTime,
		EstimatedCost: res.EstimatedCost,
		Optimization:  res.Optimization,
		Partial:       partial,
	}
	status := "ok"
	done := model.OptimizationEvent{RunID: runID, TenantID: tenant, Type: model.EventCompleted,
		Iteration: res.Optimization.IterationsRun, Iterations: options.Iterations, BestDistance: res.Distance, Stops: len(stops)}
	if partial {
		status = "partial"
		done.Error = runErr.Error()
		log.Warn().Err(runErr).Int("iterationsRun", res.Optimization.IterationsRun).Msg("optimization cut short")
	}
	metrics.ObserveOptimization(status, len(stops), time.Since(start), res.Distance)
	s.publish(done)
	s.Pub.Emit(context.WithoutCancel(ctx), tenant, model.WebhookRouteOptimized, resp)
	return resp, nil
}
