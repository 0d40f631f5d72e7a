package catalog

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"terrain-build/core/area"
	"terrain-build/core/build"
	"terrain-build/core/elevation"
	"terrain-build/core/geometry"
	"terrain-build/core/source"
	"terrain-build/internal/config"
	"terrain-build/internal/errors"
)

func newCatalog(t *testing.T) (*build.Registry, *Catalog) {
	t.Helper()
	a := area.New(geometry.Pt(0, 0), 5, 9)
	reg, cat, err := New(Options{
		Roads:     config.DefaultRoadTypes(),
		Elevation: elevation.GridSource{Grid: a.NewGrid()},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return reg, cat
}

func TestNew(t *testing.T) {
	reg, cat := newCatalog(t)

	if reg.Len() != 8 {
		t.Errorf("registered %d kinds, want 8", reg.Len())
	}
	stats := cat.Stats()
	if diff := cmp.Diff(Stats{Total: 8, Layers: 4, Roots: 5}, stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}

	order, err := cat.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	position := make(map[build.Kind]int)
	for i, kind := range order {
		position[kind] = i
	}
	for _, entry := range cat.Entries() {
		for _, dep := range entry.DependsOn {
			if position[dep] > position[entry.Kind] {
				t.Errorf("%s ordered before its dependency %s", entry.Kind, dep)
			}
		}
	}
}

func TestPolygonLayers(t *testing.T) {
	reg, _ := newCatalog(t)
	bc := build.NewContext(reg,
		build.WithArea(area.New(geometry.Pt(0, 0), 5, 9)),
		build.WithSource(source.NewMemorySource()),
	)
	defer bc.Close()

	layers, err := build.OfType[geometry.PolygonLayer](context.Background(), bc)
	if err != nil {
		t.Fatalf("OfType: %v", err)
	}
	var names []string
	for _, l := range layers {
		names = append(names, l.LayerName())
	}
	if diff := cmp.Diff([]string{"buildings", "forest_edges", "forests", "lakes"}, names); diff != "" {
		t.Errorf("layers mismatch (-want +got):\n%s", diff)
	}
	if bc.State(elevation.Key.Kind()) != build.Unstarted {
		t.Error("elevation was built although it is not a layer")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	reg, cat := newCatalog(t)
	cat.Add(Entry{Kind: "Roads", Layer: true})
	cat.Add(Entry{Kind: "Ghost", DependsOn: []build.Kind{"Ghost"}})
	cat.Add(Entry{Kind: "Orphan", DependsOn: []build.Kind{"Nowhere"}})

	err := cat.Validate(reg, DefaultValidationRules())
	if !errors.IsType(err, errors.TypeConfig) {
		t.Fatalf("expected a config error, got %v", err)
	}
	var domainErr *errors.Error
	if !asError(err, &domainErr) {
		t.Fatalf("not a domain error: %v", err)
	}
	// Ghost: unregistered, self dependency, cycle; Orphan: unregistered, unknown dependency; Roads: layer flag
	if got := len(multierr.Errors(domainErr.Cause)); got != 6 {
		t.Errorf("got %d problems, want 6: %v", got, domainErr.Cause)
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}
