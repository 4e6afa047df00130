// Package integrations defines how external feeds supply stops to optimize.
package integrations

import (
	"context"
	"errors"
	"fmt"

	"shiproute/internal/opt"
)

// StopSource loads the shipments for one optimization from an external feed.
type StopSource interface {
	Name() string
	LoadStops(ctx context.Context) (StopBatch, error)
}

// StopBatch is what a source produced. Depot is nil when the feed carries none.
type StopBatch struct {
	Depot *opt.Location
	Stops []opt.Stop
}

// ErrBadRow is wrapped by every *RowError.
var ErrBadRow = errors.New("integrations: bad row")

// RowError reports a feed row that cannot become a stop. Line is 1-based and
// counts the header.
type RowError struct {
	Source string
	Line   int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", e.Source, e.Line, e.Reason)
}

func (e *RowError) Unwrap() error { return ErrBadRow }
