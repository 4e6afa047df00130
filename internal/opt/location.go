package opt

import "math"

// MilesPerDegree scales planar coordinate deltas into approximate miles.
const MilesPerDegree = 69.0

// Location is a point on the plan; the depot is always index 0.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Stop is one shipment destination to visit.
type Stop struct {
	ID          string
	Destination *Location
}

func (l Location) validate() string {
	switch {
	case math.IsNaN(l.Longitude) || math.IsInf(l.Longitude, 0):
		return "longitude is not a finite number"
	case math.IsNaN(l.Latitude) || math.IsInf(l.Latitude, 0):
		return "latitude is not a finite number"
	case l.Longitude < -180 || l.Longitude > 180:
		return "longitude out of range [-180,180]"
	case l.Latitude < -90 || l.Latitude > 90:
		return "latitude out of range [-90,90]"
	}
	return ""
}

// BuildLocations returns [depot, stop destinations...] or a *ValidationError
// for the first stop without usable coordinates. Missing destinations are
// rejected rather than defaulted to (0,0).
func BuildLocations(stops []Stop, depot Location) ([]Location, error) {
	if reason := depot.validate(); reason != "" {
		return nil, &ValidationError{Index: 0, Reason: reason}
	}
	locs := make([]Location, 0, len(stops)+1)
	locs = append(locs, depot)
	for i, s := range stops {
		idx := i + 1
		if s.Destination == nil {
			return nil, &ValidationError{Index: idx, StopID: s.ID, Reason: "missing destination coordinates"}
		}
		if reason := s.Destination.validate(); reason != "" {
			return nil, &ValidationError{Index: idx, StopID: s.ID, Reason: reason}
		}
		locs = append(locs, *s.Destination)
	}
	return locs, nil
}

// DistanceMatrix holds pairwise distances between location indices.
type DistanceMatrix [][]float64

// Distance approximates travel distance from planar coordinate differences.
// It is not a geodesic or road-network distance.
func Distance(a, b Location) float64 {
	dx := b.Longitude - a.Longitude
	dy := b.Latitude - a.Latitude
	return math.Sqrt(dx*dx+dy*dy) * MilesPerDegree
}

// BuildDistanceMatrix computes the upper triangle and mirrors it, so the
// result is symmetric with an exactly zero diagonal.
func BuildDistanceMatrix(locs []Location) DistanceMatrix {
	n := len(locs)
	backing := make([]float64, n*n)
	m := make(DistanceMatrix, n)
	for i := range m {
		m[i] = backing[i*n : (i+1)*n : (i+1)*n]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Distance(locs[i], locs[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// Size returns the number of locations covered by the matrix.
func (m DistanceMatrix) Size() int { return len(m) }

// TourDistance sums consecutive legs of path.
func (m DistanceMatrix) TourDistance(path []int) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		total += m[path[i]][path[i+1]]
	}
	return total
}

// SequentialTour is the naive visiting order [0,1,...,n-1,0].
func SequentialTour(n int) []int {
	if n <= 0 {
		return nil
	}
	path := make([]int, 0, n+1)
	for i := 0; i < n; i++ {
		path = append(path, i)
	}
	return append(path, 0)
}
