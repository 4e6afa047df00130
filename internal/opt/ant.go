package opt

import "math"

// CandidateRoute is a closed tour through every location, starting and
// ending at the depot, with its accumulated distance.
type CandidateRoute struct {
	Path     []int   `json:"path"`
	Distance float64 `json:"distance"`
}

// transition carries the selection-rule exponents for one run.
type transition struct {
	alpha   float64
	beta    float64
	epsilon float64
}

func (tr transition) weight(trail, dist float64) float64 {
	return math.Pow(trail, tr.alpha) * math.Pow(1/(dist+tr.epsilon), tr.beta)
}

// constructRoute builds one ant's tour. It only reads dm and trail.
func constructRoute(dm DistanceMatrix, trail *PheromoneTable, tr transition, rng Source) CandidateRoute {
	n := dm.Size()
	path := make([]int, 1, n+1)
	unvisited := make([]int, 0, n)
	for i := 1; i < n; i++ {
		unvisited = append(unvisited, i)
	}
	weights := make([]float64, len(unvisited))

	cur, total := 0, 0.0
	for len(unvisited) > 0 {
		k := selectNext(cur, unvisited, weights[:len(unvisited)], dm, trail, tr, rng)
		next := unvisited[k]
		total += dm[cur][next]
		path = append(path, next)
		// keep candidates in ascending index order
		unvisited = append(unvisited[:k], unvisited[k+1:]...)
		cur = next
	}
	if n > 0 {
		total += dm[cur][0]
	}
	path = append(path, 0)
	return CandidateRoute{Path: path, Distance: total}
}

// selectNext draws the next stop by roulette wheel and returns its position
// in candidates. When rounding leaves nothing selected, the first candidate
// is taken.
func selectNext(cur int, candidates []int, weights []float64, dm DistanceMatrix, trail *PheromoneTable, tr transition, rng Source) int {
	total := 0.0
	for i, next := range candidates {
		w := tr.weight(trail.Get(cur, next), dm[cur][next])
		weights[i] = w
		total += w
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return 0
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return i
		}
	}
	return 0
}
