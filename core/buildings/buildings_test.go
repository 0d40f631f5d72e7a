package buildings

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"terrain-build/core/area"
	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/source"
)

func square(x0, y0, size float64) *geometry.Polygon {
	return geometry.NewPolygon([]geometry.Point{
		geometry.Pt(x0, y0), geometry.Pt(x0+size, y0), geometry.Pt(x0+size, y0+size), geometry.Pt(x0, y0+size),
	})
}

func TestBuilder(t *testing.T) {
	src := source.NewMemorySource(
		source.Feature{ID: "barn", Category: source.CategoryBuilding, Polygon: square(10, 10, 10)},
		source.Feature{ID: "shed", Category: source.CategoryBuilding, Polygon: square(35, 35, 10)},
		source.Feature{ID: "far", Category: source.CategoryBuilding, Polygon: square(100, 100, 10)},
		source.Feature{ID: "unsurveyed", Category: source.CategoryBuilding},
		source.Feature{ID: "wood", Category: source.CategoryForest, Polygon: square(0, 0, 40)},
	)

	reg := build.NewRegistry()
	build.MustRegister(reg, Key, Builder{})
	recorder := progress.NewRecorder("build")
	bc := build.NewContext(reg,
		build.WithArea(area.New(geometry.Pt(0, 0), 5, 9)),
		build.WithSource(src),
		build.WithProgress(recorder),
	)
	defer bc.Close()

	data, err := build.Get(context.Background(), bc, Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	type footprint struct {
		ID   string
		Area float64
	}
	var got []footprint
	for _, b := range data.Buildings {
		got = append(got, footprint{b.ID, b.Polygon.Area()})
	}
	// the area spans 0 to 40, so the shed keeps a 5 x 5 corner
	want := []footprint{{"barn", 100}, {"shed", 25}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("footprints mismatch (-want +got):\n%s", diff)
	}
	if data.LayerName() != "buildings" || len(data.LayerPolygons()) != 2 {
		t.Errorf("layer %s with %d polygons", data.LayerName(), len(data.LayerPolygons()))
	}

	step, ok := recorder.Step("build.Buildings.Footprints")
	if !ok {
		t.Fatalf("no footprint step in %v", recorder.Scopes())
	}
	if diff := cmp.Diff(progress.StepRecord{Total: 4, Done: 4, Closed: true}, step); diff != "" {
		t.Errorf("step mismatch (-want +got):\n%s", diff)
	}
}
