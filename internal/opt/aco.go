// Package opt computes multi-stop delivery tours with Ant Colony Optimization.
//
// A RouteOptimizer is configured once with its tunables and is safe to share;
// every call to OptimizeRoutes builds its own distance matrix and pheromone
// table and discards them on return.
package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// Algorithm names the heuristic in result metadata.
const Algorithm = "Ant Colony Optimization"

// Options holds the optimizer tunables.
type Options struct {
	Alpha           float64 `json:"alpha" yaml:"alpha"`
	Beta            float64 `json:"beta" yaml:"beta"`
	EvaporationRate float64 `json:"evaporationRate" yaml:"evaporationRate"`
	DepositFactor   float64 `json:"depositFactor" yaml:"depositFactor"`
	Epsilon         float64 `json:"epsilon" yaml:"epsilon"`
	Iterations      int     `json:"iterations" yaml:"iterations"`
	Ants            int     `json:"ants" yaml:"ants"`
	// Workers bounds concurrent ant construction; 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
	// MaxStops rejects larger runs; 0 means unlimited.
	MaxStops int `json:"maxStops" yaml:"maxStops"`
	// Seed fixes the random streams; 0 picks a fresh seed per run.
	Seed int64 `json:"seed,omitempty" yaml:"seed"`
}

// DefaultOptions returns the stock tunables.
func DefaultOptions() Options {
	return Options{
		Alpha:           1.0,
		Beta:            2.0,
		EvaporationRate: 0.5,
		DepositFactor:   100,
		Epsilon:         0.1,
		Iterations:      100,
		Ants:            10,
	}
}

// Validate reports the first tunable outside its allowed range.
func (o Options) Validate() error {
	switch {
	case o.Iterations < 1:
		return configError("iterations must be >= 1")
	case o.Ants < 1:
		return configError("ants must be >= 1")
	case !(o.EvaporationRate >= 0 && o.EvaporationRate < 1):
		return configError("evaporationRate must be in [0,1)")
	case !(o.Alpha >= 0) || math.IsInf(o.Alpha, 0):
		return configError("alpha must be a finite number >= 0")
	case !(o.Beta >= 0) || math.IsInf(o.Beta, 0):
		return configError("beta must be a finite number >= 0")
	case !(o.DepositFactor > 0) || math.IsInf(o.DepositFactor, 0):
		return configError("depositFactor must be > 0")
	case !(o.Epsilon > 0) || math.IsInf(o.Epsilon, 0):
		return configError("epsilon must be > 0")
	case o.Workers < 0:
		return configError("workers must be >= 0")
	case o.MaxStops < 0:
		return configError("maxStops must be >= 0")
	}
	return nil
}

// RouteOptimizer holds tunables; it carries no state between runs.
type RouteOptimizer struct {
	opts     Options
	sources  SourceFactory
	seed     int64
	observer Observer
	log      zerolog.Logger
}

// Option customises a RouteOptimizer.
type Option func(*RouteOptimizer)

// WithSources injects the random streams, overriding Options.Seed.
func WithSources(f SourceFactory) Option { return func(o *RouteOptimizer) { o.sources = f } }

// WithObserver registers a per-iteration progress callback.
func WithObserver(fn Observer) Option { return func(o *RouteOptimizer) { o.observer = fn } }

// WithLogger sets the logger used for run start/finish lines.
func WithLogger(l zerolog.Logger) Option { return func(o *RouteOptimizer) { o.log = l } }

// New validates opts and builds an optimizer.
func New(opts Options, extra ...Option) (*RouteOptimizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	o := &RouteOptimizer{opts: opts, log: zerolog.Nop()}
	for _, fn := range extra {
		fn(o)
	}
	if o.sources == nil {
		o.seed = opts.Seed
		if o.seed == 0 {
			o.seed = newSeed()
		}
		o.sources = SeededSources(o.seed)
	}
	return o, nil
}

// Options returns the tunables the optimizer was built with.
func (o *RouteOptimizer) Options() Options { return o.opts }

func (o *RouteOptimizer) workers(ants int) int {
	w := o.opts.Workers
	if w == 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > ants {
		w = ants
	}
	return w
}

// Result is the outcome of one OptimizeRoutes call.
type Result struct {
	Route         []int        `json:"route"`
	Distance      float64      `json:"distance"`
	EstimatedTime string       `json:"estimatedTime"`
	EstimatedCost string       `json:"estimatedCost"`
	Optimization  Optimization `json:"optimization"`
}

// Optimization is run metadata.
type Optimization struct {
	Algorithm     string        `json:"algorithm"`
	Iterations    int           `json:"iterations"`
	Ants          int           `json:"ants"`
	IterationsRun int           `json:"iterationsRun"`
	Improvements  int           `json:"improvements"`
	Seed          int64         `json:"seed,omitempty"`
	Duration      time.Duration `json:"durationNs"`
	Improvement   Improvement   `json:"improvement"`
	Baseline      Baseline      `json:"baseline"`
}

// Improvement is the published expectation for ACO routing versus a naive
// sequential route. It is not derived from the run; see Baseline for that.
type Improvement struct {
	TimeImprovement string `json:"timeImprovement"`
	CostImprovement string `json:"costImprovement"`
	Algorithm       string `json:"algorithm"`
	Reference       string `json:"reference"`
	Basis           string `json:"basis"`
}

// Baseline compares the returned tour with the sequential tour [0,1,...,n-1,0]
// on the same matrix.
type Baseline struct {
	SequentialDistance float64 `json:"sequentialDistance"`
	SavedDistance      float64 `json:"savedDistance"`
	SavedPercent       float64 `json:"savedPercent"`
}

func publishedImprovement() Improvement {
	return Improvement{
		TimeImprovement: "~20%",
		CostImprovement: "~37%",
		Algorithm:       Algorithm,
		Reference:       "Zhang & Jia (2024)",
		Basis:           "published estimate",
	}
}

func measureBaseline(dm DistanceMatrix, best float64) Baseline {
	seq := dm.TourDistance(SequentialTour(dm.Size()))
	b := Baseline{SequentialDistance: seq, SavedDistance: seq - best}
	if seq > 0 {
		b.SavedPercent = math.Round(b.SavedDistance/seq*10000) / 100
	}
	return b
}

// OptimizeRoutes orders stops into a closed tour from depot.
//
// Stops without usable coordinates are rejected with a *ValidationError
// before any work starts. If ctx is cancelled mid-run, the best tour found so
// far is returned together with an error wrapping ctx.Err().
func (o *RouteOptimizer) OptimizeRoutes(ctx context.Context, stops []Stop, depot Location) (Result, error) {
	if o.opts.MaxStops > 0 && len(stops) > o.opts.MaxStops {
		return Result{}, fmt.Errorf("%w: %d > %d", ErrTooManyStops, len(stops), o.opts.MaxStops)
	}
	locs, err := BuildLocations(stops, depot)
	if err != nil {
		return Result{}, err
	}
	o.log.Info().Int("shipmentCount", len(stops)).
		Float64("depotLon", depot.Longitude).Float64("depotLat", depot.Latitude).
		Msg("starting route optimization")

	start := time.Now()
	dm := BuildDistanceMatrix(locs)
	best, stats, runErr := o.AntColonyOptimization(ctx, locs, dm, RunOptions{})
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return Result{}, runErr
	}

	res := Result{
		Route:         best.Path,
		Distance:      best.Distance,
		EstimatedTime: EstimateTime(best.Distance),
		EstimatedCost: EstimateCost(best.Distance),
		Optimization: Optimization{
			Algorithm:     Algorithm,
			Iterations:    o.opts.Iterations,
			Ants:          o.opts.Ants,
			IterationsRun: stats.IterationsRun,
			Improvements:  stats.Improvements,
			Seed:          o.seed,
			Duration:      time.Since(start),
			Improvement:   publishedImprovement(),
			Baseline:      measureBaseline(dm, best.Distance),
		},
	}
	ev := o.log.Info()
	if runErr != nil {
		ev = o.log.Warn().Err(runErr)
	}
	ev.Dur("duration", res.Optimization.Duration).
		Int("routeLength", len(res.Route)).
		Str("estimatedTime", res.EstimatedTime).
		Str("estimatedCost", res.EstimatedCost).
		Msg("route optimization complete")
	return res, runErr
}
