package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOptimization(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	before := testutil.ToFloat64(Optimizations.WithLabelValues("ok"))
	ObserveOptimization("ok", 4, 20*time.Millisecond, 123.4)
	if got := testutil.ToFloat64(Optimizations.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("ok counter: want %v got %v", before+1, got)
	}

	inv := testutil.ToFloat64(Optimizations.WithLabelValues("invalid"))
	ObserveOptimization("invalid", 2, 0, 0)
	if got := testutil.ToFloat64(Optimizations.WithLabelValues("invalid")); got != inv+1 {
		t.Fatalf("invalid counter: want %v got %v", inv+1, got)
	}

	if n, err := testutil.GatherAndCount(Registry, "route_optimization_duration_seconds"); err != nil || n != 1 {
		t.Fatalf("duration histogram: n=%d err=%v", n, err)
	}
}
