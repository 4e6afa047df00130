// Command routeopt optimizes a delivery tour from a CSV stop file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"

	"shiproute/internal/integrations"
	"shiproute/internal/integrations/csvfile"
	"shiproute/internal/logging"
	"shiproute/internal/opt"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "routeopt:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("routeopt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	d := opt.DefaultOptions()
	var (
		stopsPath = fs.String("stops", "", "CSV file with id,longitude,latitude rows (a row with id \"depot\" sets the depot)")
		depotLon  = fs.Float64("depot-lon", 0, "depot longitude, overrides the CSV depot row")
		depotLat  = fs.Float64("depot-lat", 0, "depot latitude, overrides the CSV depot row")
		asJSON    = fs.Bool("json", false, "print the full result as JSON")
		verbose   = fs.BoolP("verbose", "v", false, "log optimizer progress to stderr")
		o         = d
	)
	fs.IntVar(&o.Iterations, "iterations", d.Iterations, "colony iterations")
	fs.IntVar(&o.Ants, "ants", d.Ants, "ants per iteration")
	fs.Float64Var(&o.Alpha, "alpha", d.Alpha, "pheromone influence")
	fs.Float64Var(&o.Beta, "beta", d.Beta, "distance influence")
	fs.Float64Var(&o.EvaporationRate, "evaporation", d.EvaporationRate, "pheromone evaporation rate in [0,1)")
	fs.Float64Var(&o.DepositFactor, "deposit", d.DepositFactor, "pheromone deposit factor")
	fs.Int64Var(&o.Seed, "seed", 0, "random seed; 0 picks one")
	fs.IntVar(&o.Workers, "workers", 0, "concurrent ants; 0 means GOMAXPROCS")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stopsPath == "" {
		return fmt.Errorf("--stops is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var src integrations.StopSource = csvfile.Adapter{Path: *stopsPath}
	batch, err := src.LoadStops(ctx)
	if err != nil {
		return err
	}
	depot, err := resolveDepot(batch.Depot, fs.Changed("depot-lon"), fs.Changed("depot-lat"), *depotLon, *depotLat)
	if err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(stderr, level, true)
	extra := []opt.Option{opt.WithLogger(logger)}
	if *verbose {
		extra = append(extra, opt.WithObserver(func(p opt.Progress) {
			if p.Improved {
				logger.Debug().Int("iteration", p.Iteration).Float64("best", p.BestDistance).Msg("improved")
			}
		}))
	}
	ro, err := opt.New(o, extra...)
	if err != nil {
		return err
	}
	res, err := ro.OptimizeRoutes(ctx, batch.Stops, depot)
	if err != nil && len(res.Route) == 0 {
		return err
	}
	if err != nil {
		logger.Warn().Err(err).Msg("interrupted; printing best tour so far")
	}
	return printResult(stdout, res, batch.Stops, *asJSON)
}

func printResult(w io.Writer, res opt.Result, stops []opt.Stop, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for i, idx := range res.Route {
		label := "depot"
		if idx > 0 {
			label = stops[idx-1].ID
			if label == "" {
				label = fmt.Sprintf("#%d", idx)
			}
		}
		fmt.Fprintf(w, "%3d  %s\n", i, label)
	}
	fmt.Fprintf(w, "distance: %.2f\n", res.Distance)
	fmt.Fprintf(w, "time:     %s\n", res.EstimatedTime)
	fmt.Fprintf(w, "cost:     %s\n", res.EstimatedCost)
	b := res.Optimization.Baseline
	fmt.Fprintf(w, "vs. sequential order: %.2f saved (%.1f%%)\n", b.SavedDistance, b.SavedPercent)
	return nil
}

// resolveDepot overlays the depot flags onto the file's depot row. Without a
// row both flags are required; the depot never defaults to (0,0).
func resolveDepot(row *opt.Location, lonSet, latSet bool, lon, lat float64) (opt.Location, error) {
	if row == nil && !(lonSet && latSet) {
		if lonSet || latSet {
			return opt.Location{}, fmt.Errorf("--depot-lon and --depot-lat must be given together when the stops file has no depot row")
		}
		return opt.Location{}, fmt.Errorf("no depot: add a depot row to the stops file or pass --depot-lon and --depot-lat")
	}
	var depot opt.Location
	if row != nil {
		depot = *row
	}
	if lonSet {
		depot.Longitude = lon
	}
	if latSet {
		depot.Latitude = lat
	}
	return depot, nil
}
