// Package csvfile reads stops from CSV with an id,longitude,latitude header.
// A row whose id is "depot" sets the depot instead of adding a stop.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"shiproute/internal/integrations"
	"shiproute/internal/opt"
)

const name = "csv-file"

// Adapter is a StopSource backed by a CSV file on disk.
type Adapter struct {
	Path string
}

func (a Adapter) Name() string { return name }

func (a Adapter) LoadStops(ctx context.Context) (integrations.StopBatch, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return integrations.StopBatch{}, err
	}
	defer f.Close()
	return Parse(ctx, f)
}

var _ integrations.StopSource = Adapter{}

// Parse reads a stop feed from r. Columns are matched by header name, case
// insensitively, so extra columns are allowed.
func Parse(ctx context.Context, r io.Reader) (integrations.StopBatch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return integrations.StopBatch{}, &integrations.RowError{Source: name, Line: 1, Reason: "missing header"}
	}
	if err != nil {
		return integrations.StopBatch{}, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idIdx, hasID := col["id"]
	lonIdx, hasLon := col["longitude"]
	latIdx, hasLat := col["latitude"]
	if !hasLon || !hasLat {
		return integrations.StopBatch{}, &integrations.RowError{Source: name, Line: 1, Reason: "header needs longitude and latitude columns"}
	}

	var batch integrations.StopBatch
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return integrations.StopBatch{}, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return batch, nil
		}
		if err != nil {
			return integrations.StopBatch{}, err
		}
		line++
		field := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		id := ""
		if hasID {
			id = field(idIdx)
		}
		lon, err := coord(field(lonIdx))
		if err != nil {
			return integrations.StopBatch{}, &integrations.RowError{Source: name, Line: line, Reason: "longitude: " + err.Error()}
		}
		lat, err := coord(field(latIdx))
		if err != nil {
			return integrations.StopBatch{}, &integrations.RowError{Source: name, Line: line, Reason: "latitude: " + err.Error()}
		}
		loc := &opt.Location{Longitude: lon, Latitude: lat}
		if strings.EqualFold(id, "depot") {
			batch.Depot = loc
			continue
		}
		batch.Stops = append(batch.Stops, opt.Stop{ID: id, Destination: loc})
	}
}

func coord(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("missing")
	}
	return strconv.ParseFloat(s, 64)
}
