package opt

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptLoc(lon, lat float64) *Location { return &Location{Longitude: lon, Latitude: lat} }

func TestBuildDistanceMatrixProperties(t *testing.T) {
	locs := []Location{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {-3.5, 2.25}, {0, 0}}
	m := BuildDistanceMatrix(locs)
	require.Equal(t, len(locs), m.Size())
	for i := range m {
		require.Len(t, m[i], len(locs))
		require.Zero(t, m[i][i], "diagonal must be exactly zero")
		for j := range m[i] {
			require.GreaterOrEqual(t, m[i][j], 0.0)
			require.Equal(t, m[i][j], m[j][i], "asymmetric at (%d,%d)", i, j)
		}
	}
	require.InDelta(t, 69.0, m[0][1], 1e-9)
	require.InDelta(t, 69.0*math.Sqrt(5), m[2][3], 1e-9)
	// coincident points
	require.Zero(t, m[0][5])
}

func TestBuildDistanceMatrixEmptyAndSingle(t *testing.T) {
	require.Equal(t, 0, BuildDistanceMatrix(nil).Size())
	m := BuildDistanceMatrix([]Location{{10, 10}})
	require.Equal(t, DistanceMatrix{{0}}, m)
}

func TestBuildLocationsRejectsMissingCoordinates(t *testing.T) {
	stops := []Stop{
		{ID: "s1", Destination: ptLoc(1, 1)},
		{ID: "s2"},
	}
	_, err := BuildLocations(stops, Location{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidLocation))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, 2, ve.Index)
	require.Equal(t, "s2", ve.StopID)
}

func TestBuildLocationsRejectsBadValues(t *testing.T) {
	cases := map[string]Location{
		"nan lon":   {Longitude: math.NaN()},
		"inf lat":   {Latitude: math.Inf(1)},
		"lon range": {Longitude: 181},
		"lat range": {Latitude: -90.5},
	}
	for name, loc := range cases {
		t.Run(name, func(t *testing.T) {
			l := loc
			_, err := BuildLocations([]Stop{{ID: "x", Destination: &l}}, Location{})
			require.ErrorIs(t, err, ErrInvalidLocation)
		})
	}

	_, err := BuildLocations(nil, Location{Longitude: math.NaN()})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Zero(t, ve.Index)
	require.Contains(t, ve.Error(), "depot")
}

func TestBuildLocationsOrder(t *testing.T) {
	depot := Location{Longitude: -122.4, Latitude: 37.7}
	locs, err := BuildLocations([]Stop{{Destination: ptLoc(1, 2)}, {Destination: ptLoc(3, 4)}}, depot)
	require.NoError(t, err)
	require.Equal(t, []Location{depot, {1, 2}, {3, 4}}, locs)
}

func TestTourDistanceAndSequentialTour(t *testing.T) {
	require.Nil(t, SequentialTour(0))
	require.Equal(t, []int{0, 0}, SequentialTour(1))
	require.Equal(t, []int{0, 1, 2, 3, 0}, SequentialTour(4))

	m := BuildDistanceMatrix([]Location{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	require.InDelta(t, 4*69.0, m.TourDistance(SequentialTour(4)), 1e-9)
	require.Zero(t, m.TourDistance([]int{2}))
}
