package opt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLocation is wrapped by every *ValidationError.
	ErrInvalidLocation = errors.New("opt: invalid location")
	// ErrInvalidConfig reports tunables outside their allowed ranges.
	ErrInvalidConfig = errors.New("opt: invalid optimizer config")
	// ErrTooManyStops is returned when a run exceeds Options.MaxStops.
	ErrTooManyStops = errors.New("opt: too many stops")
	// ErrNoLocations is returned by the colony loop for an empty location list.
	ErrNoLocations = errors.New("opt: no locations")
	// ErrDimensionMismatch reports a distance matrix that does not match the location list.
	ErrDimensionMismatch = errors.New("opt: distance matrix dimension mismatch")
)

// ValidationError describes a location rejected before optimization begins.
// Index is the location index (0 is the depot).
type ValidationError struct {
	Index  int
	StopID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index == 0 {
		return fmt.Sprintf("opt: depot: %s", e.Reason)
	}
	if e.StopID != "" {
		return fmt.Sprintf("opt: stop %d (%s): %s", e.Index, e.StopID, e.Reason)
	}
	return fmt.Sprintf("opt: stop %d: %s", e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidLocation }

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
