package opt

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// RunOptions sizes one colony run. Zero values fall back to the optimizer's Options.
type RunOptions struct {
	Iterations int
	Ants       int
}

// ColonyStats summarises a colony run.
type ColonyStats struct {
	IterationsRun   int       `json:"iterationsRun"`
	Improvements    int       `json:"improvements"`
	BestIteration   int       `json:"bestIteration"`
	BestByIteration []float64 `json:"bestByIteration"`
}

// Progress is reported to an Observer after each completed iteration.
type Progress struct {
	Iteration    int     `json:"iteration"`
	Iterations   int     `json:"iterations"`
	BestDistance float64 `json:"bestDistance"`
	Improved     bool    `json:"improved"`
}

// Observer is invoked between iterations on the colony goroutine.
type Observer func(Progress)

// AntColonyOptimization runs the colony over locs and dm and returns the
// best route seen across all iterations.
//
// Each iteration builds every ant against a frozen pheromone table, then
// deposits for all of that iteration's routes and evaporates once. ctx is
// only consulted between iterations; on cancellation the best route found so
// far is returned alongside the context error. The first iteration always runs.
func (o *RouteOptimizer) AntColonyOptimization(ctx context.Context, locs []Location, dm DistanceMatrix, run RunOptions) (CandidateRoute, ColonyStats, error) {
	n := len(locs)
	if n == 0 {
		return CandidateRoute{}, ColonyStats{}, ErrNoLocations
	}
	if dm.Size() != n {
		return CandidateRoute{}, ColonyStats{}, fmt.Errorf("%w: %d locations, %d rows", ErrDimensionMismatch, n, dm.Size())
	}
	iterations, ants := run.Iterations, run.Ants
	if iterations <= 0 {
		iterations = o.opts.Iterations
	}
	if ants <= 0 {
		ants = o.opts.Ants
	}

	tr := transition{alpha: o.opts.Alpha, beta: o.opts.Beta, epsilon: o.opts.Epsilon}
	trail := NewPheromoneTable(n, InitialPheromone)
	routes := make([]CandidateRoute, ants)
	best := CandidateRoute{Distance: math.Inf(1)}
	stats := ColonyStats{BestIteration: -1, BestByIteration: make([]float64, 0, iterations)}

	for iter := 0; iter < iterations; iter++ {
		if iter > 0 {
			if err := ctx.Err(); err != nil {
				return best, stats, fmt.Errorf("opt: colony stopped after %d of %d iterations: %w", iter, iterations, err)
			}
		}
		o.buildAnts(iter, dm, trail, tr, routes)

		improved := false
		for _, rt := range routes {
			if rt.Distance < best.Distance {
				best = rt
				improved = true
			}
		}
		if improved {
			stats.Improvements++
			stats.BestIteration = iter
		}

		for _, rt := range routes {
			trail.Deposit(rt.Path, o.depositAmount(rt.Distance))
		}
		trail.Evaporate(o.opts.EvaporationRate)

		stats.IterationsRun++
		stats.BestByIteration = append(stats.BestByIteration, best.Distance)
		if o.observer != nil {
			o.observer(Progress{Iteration: iter + 1, Iterations: iterations, BestDistance: best.Distance, Improved: improved})
		}
	}
	return best, stats, nil
}

// buildAnts fills routes[a] for every ant. The pheromone table is read-only
// until every ant has finished.
func (o *RouteOptimizer) buildAnts(iter int, dm DistanceMatrix, trail *PheromoneTable, tr transition, routes []CandidateRoute) {
	workers := o.workers(len(routes))
	if workers <= 1 {
		for a := range routes {
			routes[a] = constructRoute(dm, trail, tr, o.sources(iter, a))
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for a := range routes {
		g.Go(func() error {
			routes[a] = constructRoute(dm, trail, tr, o.sources(iter, a))
			return nil
		})
	}
	_ = g.Wait()
}

// depositAmount is DepositFactor / distance. A zero-length tour (every point
// coincident) deposits as if its length were Epsilon.
func (o *RouteOptimizer) depositAmount(distance float64) float64 {
	if distance <= 0 {
		distance = o.opts.Epsilon
	}
	return o.opts.DepositFactor / distance
}
