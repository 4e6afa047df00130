package opt

// InitialPheromone is the trail strength of an unexplored but plausible edge.
const InitialPheromone = 1.0

// PheromoneTable stores a trail strength per directed edge (i, j).
// It is owned by one run and never shared across runs.
type PheromoneTable struct {
	n     int
	trail []float64
}

// NewPheromoneTable returns an n×n table with every ordered pair, self pairs
// included, set to initial.
func NewPheromoneTable(n int, initial float64) *PheromoneTable {
	t := &PheromoneTable{n: n, trail: make([]float64, n*n)}
	t.Reset(initial)
	return t
}

// Reset writes v to every edge.
func (t *PheromoneTable) Reset(v float64) {
	for i := range t.trail {
		t.trail[i] = v
	}
}

// Size returns the number of locations the table covers.
func (t *PheromoneTable) Size() int { return t.n }

// Get returns the trail on (i, j), or InitialPheromone for edges outside the table.
func (t *PheromoneTable) Get(i, j int) float64 {
	if i < 0 || j < 0 || i >= t.n || j >= t.n {
		return InitialPheromone
	}
	return t.trail[i*t.n+j]
}

// Set overwrites the trail on (i, j). Out-of-range edges are ignored.
func (t *PheromoneTable) Set(i, j int, v float64) {
	if i < 0 || j < 0 || i >= t.n || j >= t.n {
		return
	}
	t.trail[i*t.n+j] = v
}

// Deposit adds amount to every directed edge along path.
func (t *PheromoneTable) Deposit(path []int, amount float64) {
	for k := 0; k+1 < len(path); k++ {
		from, to := path[k], path[k+1]
		t.Set(from, to, t.Get(from, to)+amount)
	}
}

// Evaporate multiplies every edge by (1 - rate). rate must lie in [0,1).
func (t *PheromoneTable) Evaporate(rate float64) {
	keep := 1 - rate
	for i := range t.trail {
		t.trail[i] *= keep
	}
}
