package csvfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shiproute/internal/integrations"
)

func TestParse(t *testing.T) {
	in := "ID, Latitude, Longitude, note\n" +
		"depot,40.74,-73.98,\n" +
		"a,40.73,-73.99,front door\n" +
		"b,40.78,-73.95\n"
	batch, err := Parse(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if batch.Depot == nil || batch.Depot.Longitude != -73.98 || batch.Depot.Latitude != 40.74 {
		t.Fatalf("depot %+v", batch.Depot)
	}
	if len(batch.Stops) != 2 || batch.Stops[0].ID != "a" || batch.Stops[1].Destination.Latitude != 40.78 {
		t.Fatalf("stops %+v", batch.Stops)
	}
}

func TestParseRejectsBlankCoordinates(t *testing.T) {
	in := "id,longitude,latitude\na,1,2\nb,,2\n"
	_, err := Parse(context.Background(), strings.NewReader(in))
	var re *integrations.RowError
	if !errors.As(err, &re) || re.Line != 3 || !errors.Is(err, integrations.ErrBadRow) {
		t.Fatalf("want row error on line 3, got %v", err)
	}
	if !strings.Contains(err.Error(), "longitude: missing") {
		t.Fatalf("message %q", err)
	}
}

func TestParseBadHeader(t *testing.T) {
	for _, in := range []string{"", "id,lat,lng\n1,2,3\n"} {
		_, err := Parse(context.Background(), strings.NewReader(in))
		if !errors.Is(err, integrations.ErrBadRow) {
			t.Fatalf("%q: got %v", in, err)
		}
	}
}

func TestAdapterLoadStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.csv")
	if err := os.WriteFile(path, []byte("longitude,latitude\n1,0\n2,0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	a := Adapter{Path: path}
	batch, err := a.LoadStops(context.Background())
	if err != nil || len(batch.Stops) != 2 || batch.Depot != nil || a.Name() != "csv-file" {
		t.Fatalf("batch %+v err=%v", batch, err)
	}
	if _, err := (Adapter{Path: filepath.Join(t.TempDir(), "missing.csv")}).LoadStops(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
}
